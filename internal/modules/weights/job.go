package weights

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Job runs the weights pipeline from the scheduler.
type Job struct {
	service *Service
	timeout time.Duration
	log     zerolog.Logger
}

// NewJob creates the scheduled weights job. A non-positive timeout means none.
func NewJob(service *Service, timeout time.Duration, log zerolog.Logger) *Job {
	return &Job{
		service: service,
		timeout: timeout,
		log:     log.With().Str("job", "ftql_weights").Logger(),
	}
}

// Name returns the job name
func (j *Job) Name() string {
	return "ftql_weights"
}

// Run executes one weight run. A run already in progress is not an error.
func (j *Job) Run() error {
	ctx := j.service.baseCtx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	_, err := j.service.Run(ctx, TriggerSchedule)
	if errors.Is(err, ErrRunInProgress) {
		j.log.Info().Msg("Previous run still executing, skipping")
		return nil
	}
	return err
}
