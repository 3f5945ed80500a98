package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/aristath/ftql/internal/clientdata"
	"github.com/aristath/ftql/internal/config"
	"github.com/aristath/ftql/internal/events"
	historicalhandlers "github.com/aristath/ftql/internal/modules/historical/handlers"
	"github.com/aristath/ftql/internal/modules/universe"
	"github.com/aristath/ftql/internal/modules/weights"
	weightshandlers "github.com/aristath/ftql/internal/modules/weights/handlers"
	"github.com/aristath/ftql/internal/reliability"
	"github.com/aristath/ftql/internal/scheduler"
	"github.com/aristath/ftql/internal/server"
	"github.com/rs/zerolog"
)

const (
	runTimeout      = 30 * time.Minute
	shutdownTimeout = 30 * time.Second
)

type scheduledJob struct {
	spec string
	job  scheduler.Job
}

func serveCommand(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	runOnStart := fs.Bool("run-on-start", false, "compute weights immediately instead of waiting for the schedule")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := wire(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	bus := events.NewBus(log)
	a.service.SetEventEmitter(bus)
	a.service.SetBaseContext(ctx)

	weightsJob := weights.NewJob(a.service, runTimeout, log)
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	jobs := []scheduledJob{
		{cfg.Schedule, weightsJob},
		{"15 */6 * * *", clientdata.NewCleanupJob(a.clientData, log)},
		{"0 3 * * *", reliability.NewDailyMaintenanceJob(a.databases, a.history, retention, cfg.DataDir, log)},
		{"0 4 * * SUN", reliability.NewWeeklyMaintenanceJob(a.databases, log)},
	}
	if registry, err := a.tokenRegistry(); err == nil {
		jobs = append(jobs, scheduledJob{"30 0 * * *", universe.NewTokenRefreshJob(registry, a.source, bus)})
	} else {
		log.Warn().Err(err).Msg("Token registry refresh disabled")
	}

	sched := scheduler.New(log)
	sched.SetEventEmitter(bus)
	for _, j := range jobs {
		if err := sched.AddJob(j.spec, j.job); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Origins:   cfg.CORSOrigins,
		Databases: a.databases,
		EventBus:  bus,
		Jobs:      sched,
		Modules: []server.RouteRegistrar{
			weightshandlers.NewHandler(a.runs, a.service, log),
			historicalhandlers.NewHandler(a.history, cfg.Timeframe, log),
		},
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info().Int("port", cfg.Port).Str("schedule", cfg.Schedule).Msg("Server started")

	if *runOnStart {
		go func() {
			_ = sched.RunNow(weightsJob)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
