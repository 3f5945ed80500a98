package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/ftql/internal/clientdata"
	"github.com/aristath/ftql/internal/clients/birdeye"
	"github.com/aristath/ftql/internal/clients/geckoterminal"
	"github.com/aristath/ftql/internal/config"
	"github.com/aristath/ftql/internal/database"
	"github.com/aristath/ftql/internal/metrics"
	"github.com/aristath/ftql/internal/modules/historical"
	"github.com/aristath/ftql/internal/modules/optimization"
	"github.com/aristath/ftql/internal/modules/universe"
	"github.com/aristath/ftql/internal/modules/weights"
	"github.com/aristath/ftql/internal/reliability"
	"github.com/rs/zerolog"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	databases map[string]*database.DB

	clientData *clientdata.Repository
	history    *historical.HistoryRepository
	feed       *historical.FeedService
	runs       *weights.RunRepository
	service    *weights.Service
	source     universe.Source
}

// wire opens the databases and builds the run pipeline. offline runs on stored
// candles only.
func wire(ctx context.Context, cfg *config.Config, log zerolog.Logger, offline bool) (*app, error) {
	a := &app{
		cfg:       cfg,
		log:       log,
		databases: make(map[string]*database.DB),
		source: universe.Source{
			Inline:  cfg.Whitelist,
			Path:    cfg.WhitelistPath,
			Exclude: cfg.Exclude,
		},
	}

	for _, name := range []string{database.NameHistory, database.NameRuns, database.NameClientData} {
		db, err := database.Open(cfg.DataDir, name)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open %s database: %w", name, err)
		}
		a.databases[name] = db
	}

	a.clientData = clientdata.NewRepository(a.databases[database.NameClientData].Conn())
	a.history = historical.NewHistoryRepository(a.databases[database.NameHistory].Conn(), log)
	a.runs = weights.NewRunRepository(a.databases[database.NameRuns].Conn(), log)

	gecko := geckoterminal.NewClient(cfg.GeckoTerminal.BaseURL, cfg.GeckoTerminal.RequestsPerMinute, a.clientData, log)
	a.feed = historical.NewFeedService(gecko, a.history, historical.FeedConfig{
		Network:     cfg.Network,
		Timeframe:   cfg.Timeframe,
		Aggregate:   cfg.Aggregate,
		Limit:       cfg.CandleLimit,
		Parallelism: cfg.FetchParallelism,
	}, log)

	solver, err := optimization.NewSolver(cfg.Solver)
	if err != nil {
		a.close()
		return nil, err
	}
	engine := optimization.NewEngine(solver, log)
	engine.SetStepObserver(metrics.ObserveSolve)

	mode, err := historical.ParseRelativesMode(cfg.Relatives)
	if err != nil {
		a.close()
		return nil, err
	}
	period, err := historical.Period(cfg.Timeframe, cfg.Aggregate)
	if err != nil {
		a.close()
		return nil, err
	}
	location, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("invalid report timezone %q: %w", cfg.ReportTimezone, err)
	}

	exporter := weights.NewExporter(cfg.ReportDir(), location, log)
	a.service = weights.NewService(a.source, a.feed, engine, a.runs, exporter, weights.Settings{
		Epsilon:     cfg.Epsilon,
		Relatives:   mode,
		CashSymbol:  cfg.CashSymbol,
		Period:      period,
		SkipRefresh: offline,
	}, log)

	if cfg.R2.Enabled() {
		r2, err := reliability.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.SecretAccessKey, cfg.R2.Bucket, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.service.SetPublisher(reliability.NewReportPublisher(r2, log))
		log.Info().Str("bucket", cfg.R2.Bucket).Msg("Report publishing enabled")
	}

	return a, nil
}

// tokenRegistry builds the Birdeye-backed registry, which needs an API key.
func (a *app) tokenRegistry() (*universe.TokenRegistry, error) {
	if a.cfg.Birdeye.APIKey == "" {
		return nil, fmt.Errorf("BIRDEYE_API_KEY is required to refresh %s", a.cfg.TokensPath)
	}
	client := birdeye.NewClient(a.cfg.Birdeye.BaseURL, a.cfg.Birdeye.APIKey, a.clientData, a.log)
	return universe.NewTokenRegistry(client, a.cfg.TokensPath, a.log), nil
}

func (a *app) close() {
	for name, db := range a.databases {
		if err := db.Close(); err != nil {
			a.log.Error().Err(err).Str("database", name).Msg("Failed to close database")
		}
	}
}
