// Package scheduler runs scrape batches on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled scrape cycle.
type Job func(ctx context.Context) error

// Config controls when Job runs.
type Config struct {
	// Spec is a standard 5-field cron expression or a descriptor such as "@every 6h".
	Spec string
	// RunOnStart triggers one cycle immediately on Start.
	RunOnStart bool
}

// Scheduler wraps robfig/cron. Cycles never overlap: a tick that fires while
// the previous cycle is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	job    Job
	logger *zap.Logger

	running sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	entry   cron.EntryID
}

// New validates the spec and prepares a Scheduler.
func New(cfg Config, job Job, logger *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduled job is required")
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{logger: logger.Sugar()})),
		cfg:    cfg,
		job:    job,
		logger: logger,
	}, nil
}

// Start registers the job and starts the cron loop. Cycles receive a context
// derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	entry, err := s.cron.AddFunc(s.cfg.Spec, func() { s.cycle(runCtx, "cron") })
	if err != nil {
		cancel()
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cancel = cancel
	s.entry = entry
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec))

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.cycle(runCtx, "startup")
		}()
	}
	return nil
}

// Next reports the next cron activation, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop cancels running cycles and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) cycle(ctx context.Context, trigger string) {
	logger := s.logger.With(zap.String("trigger", trigger))
	if !s.running.TryLock() {
		logger.Warn("previous scrape cycle still running, skipping")
		return
	}
	defer s.running.Unlock()
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	logger.Info("scrape cycle started")
	if err := s.job(ctx); err != nil {
		logger.Error("scrape cycle failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	logger.Info("scrape cycle complete", zap.Duration("duration", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
