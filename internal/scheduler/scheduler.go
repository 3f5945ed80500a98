// Package scheduler runs the service's periodic jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/ftql/internal/events"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// EventEmitter publishes job lifecycle events.
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Parser accepts standard five-field specs, an optional leading seconds field
// and descriptors such as @hourly or @every 30s.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	emitter EventEmitter
	entries map[string]cron.EntryID
	log     zerolog.Logger
}

// New creates a new scheduler. A job still running when its next activation
// arrives skips that activation.
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cronLog := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		entries: make(map[string]cron.EntryID),
		log:     log,
	}
}

// SetEventEmitter enables job lifecycle events.
func (s *Scheduler) SetEventEmitter(e EventEmitter) {
	s.emitter = e
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 9 * * MON-FRI"    - 9 AM weekdays
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("job %s is already registered", job.Name())
	}

	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	s.entries[job.Name()] = id

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

// NextRun returns the next activation of a registered job. It is zero until
// the scheduler has started.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// JobNames returns the names of the registered jobs, sorted.
func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) execute(job Job) error {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	s.emit(&events.JobStatusData{JobName: job.Name(), Status: "started", Timestamp: start})

	err := job.Run()
	duration := time.Since(start).Seconds()
	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
		s.emit(&events.JobStatusData{
			JobName:   job.Name(),
			Status:    "failed",
			Error:     err.Error(),
			Duration:  duration,
			Timestamp: time.Now(),
		})
		return err
	}

	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
	s.emit(&events.JobStatusData{JobName: job.Name(), Status: "completed", Duration: duration, Timestamp: time.Now()})
	return nil
}

func (s *Scheduler) emit(data events.EventData) {
	if s.emitter != nil {
		s.emitter.Emit("scheduler", data)
	}
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
