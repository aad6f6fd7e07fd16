package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of periodic work.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	ctx  context.Context
	stop context.CancelFunc
}

// NewScheduler creates a UTC scheduler. Panicking jobs are recovered and a job
// still running when its next tick fires is skipped.
func NewScheduler(log zerolog.Logger) *Scheduler {
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:  log,
		ctx:  ctx,
		stop: cancel,
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}
	_, err := s.cron.AddFunc(job.Spec, func() {
		s.runOnce(job)
	})
	if err != nil {
		return fmt.Errorf("could not schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	s.log.Info().Str("job", job.Name).Str("spec", job.Spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) runOnce(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := time.Now()
	log := s.log.With().Str("job", job.Name).Logger()
	log.Info().Msg("job started")

	if err := job.Run(ctx); err != nil {
		log.Error().Err(err).Dur("took", time.Since(started)).Msg("job failed")
		return
	}
	log.Info().Dur("took", time.Since(started)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stop()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
