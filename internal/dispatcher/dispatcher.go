// Package dispatcher runs several scrape sessions side by side and joins them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-job-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// Batch is the work of one session: a query list plus its global options.
type Batch struct {
	Name    string
	Queries []scraper.QuerySpec
	Global  scraper.Options
}

// Runner is one session-owning orchestrator; *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, queries []scraper.QuerySpec, global scraper.Options) error
	Close() error
}

// Factory opens a fresh session for the batch at index.
type Factory func(ctx context.Context, index int, batch Batch) (Runner, error)

// Config bounds concurrency.
type Config struct {
	// MaxConcurrent caps simultaneously open sessions; zero means one per batch.
	MaxConcurrent int
}

// Dispatcher fans batches out to their own sessions.
type Dispatcher struct {
	factory Factory
	cfg     Config
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(factory Factory, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{factory: factory, cfg: cfg, logger: logger}
}

// RunSessions runs every batch on its own session and waits for all of them,
// closing each session afterwards. A failing batch does not stop the others.
// The result joins the per-batch errors.
func (d *Dispatcher) RunSessions(ctx context.Context, batches []Batch) error {
	if d.factory == nil {
		return fmt.Errorf("session factory is required")
	}
	errs := make([]error, len(batches))
	var g errgroup.Group
	if d.cfg.MaxConcurrent > 0 {
		g.SetLimit(d.cfg.MaxConcurrent)
	}
	for i, batch := range batches {
		g.Go(func() error {
			if err := d.runBatch(ctx, i, batch); err != nil {
				errs[i] = fmt.Errorf("session %s: %w", batchName(i, batch), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) runBatch(ctx context.Context, index int, batch Batch) (err error) {
	logger := d.logger.With(zap.String("session", batchName(index, batch)))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("not started: %w", ctxErr)
	}
	runner, err := d.factory(ctx, index, batch)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	metrics.IncActiveSessions()
	start := time.Now()
	defer func() {
		metrics.DecActiveSessions()
		metrics.ObserveRun(runStatus(err), time.Since(start))
	}()

	logger.Info("session started", zap.Int("queries", len(batch.Queries)))
	runErr := runner.Run(ctx, batch.Queries, batch.Global)
	closeErr := runner.Close()
	err = errors.Join(runErr, closeErr)
	if err != nil {
		logger.Warn("session finished with errors", zap.Error(err))
		return err
	}
	logger.Info("session finished", zap.Duration("duration", time.Since(start)))
	return nil
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return string(scraper.RunStatusSucceeded)
	case errors.Is(err, context.Canceled), errors.Is(err, scraper.ErrSessionClosed):
		return string(scraper.RunStatusCancelled)
	default:
		return string(scraper.RunStatusFailed)
	}
}

func batchName(index int, batch Batch) string {
	if batch.Name != "" {
		return batch.Name
	}
	return fmt.Sprintf("#%d", index)
}
