// Package schedule runs the orchestrator's background cron jobs -- the
// periodic reconciliation sweep chief among them (§4.7) -- independent of
// the connection-triggered reconciliation Supervisor.Run already performs
// on every reconnect. A long-lived connection that never drops would
// otherwise never get re-reconciled.
//
// Grounded on aristath-sentinel/trader-go/internal/scheduler/scheduler.go's
// cron.Cron + zerolog.Logger pairing; this package keeps that pairing
// self-contained rather than threading zerolog through the rest of the
// tree, which logs through pkg/observability.Logger instead.
package schedule

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler wraps a cron.Cron, logging each job's outcome with zerolog.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a Scheduler. log is typically built with
// zerolog.New(os.Stderr).With().Timestamp().Logger() by the caller.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "schedule").Logger(),
	}
}

// Start starts the underlying cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for running jobs to finish, then stops the scheduler.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job on the given cron schedule (standard 6-field
// seconds-first cron syntax, or an @every/@hourly-style descriptor).
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")
		if err := job.Run(context.Background()); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Msg("job completed")
	})
	return err
}
