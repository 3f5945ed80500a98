package universe

import (
	"context"
	"time"

	"github.com/aristath/ftql/internal/events"
)

// EventEmitter publishes registry events.
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// TokenRefreshJob refreshes tokens.json from the whitelist on a schedule.
type TokenRefreshJob struct {
	registry *TokenRegistry
	source   Source
	emitter  EventEmitter
	timeout  time.Duration
}

// NewTokenRefreshJob creates the scheduled registry refresh. emitter may be nil.
func NewTokenRefreshJob(registry *TokenRegistry, source Source, emitter EventEmitter) *TokenRefreshJob {
	return &TokenRefreshJob{
		registry: registry,
		source:   source,
		emitter:  emitter,
		timeout:  2 * time.Minute,
	}
}

// Name returns the job name
func (j *TokenRefreshJob) Name() string {
	return "token_registry_refresh"
}

// Run executes one refresh.
func (j *TokenRefreshJob) Run() error {
	whitelist, err := j.source.Whitelist()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.registry.Refresh(ctx, whitelist)
	if err != nil {
		return err
	}
	if j.emitter != nil {
		j.emitter.Emit("universe", &events.TokensRefreshedData{Tokens: report.Tokens, Missing: report.Missing})
	}
	return nil
}
