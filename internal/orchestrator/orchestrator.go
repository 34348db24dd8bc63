// Package orchestrator executes job queries against a single automation session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// ResolvedFunc is invoked once per query after its options are resolved and
// before any page of that query is fetched.
type ResolvedFunc func(index int, spec scraper.QuerySpec, eff scraper.EffectiveOptions)

// Config carries optional collaborators.
type Config struct {
	IDs        scraper.IDGenerator
	Clock      scraper.Clock
	OnResolved ResolvedFunc
}

// Orchestrator owns one Session and runs query batches on it serially.
type Orchestrator struct {
	session   scraper.Session
	extractor scraper.PageExtractor
	emitter   events.Emitter
	cfg       Config
	logger    *zap.Logger

	runMu    sync.Mutex
	counters scraper.Metrics
	runSeq   atomic.Int64

	sessionCtx    context.Context
	cancelSession context.CancelFunc
	closed        atomic.Bool
	closeOnce     sync.Once
}

// New constructs an Orchestrator. The orchestrator takes ownership of session
// and releases it on Close.
func New(
	session scraper.Session,
	extractor scraper.PageExtractor,
	emitter events.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = events.NewBus(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		session:       session,
		extractor:     extractor,
		emitter:       emitter,
		cfg:           cfg,
		logger:        logger,
		sessionCtx:    ctx,
		cancelSession: cancel,
	}
}

// Metrics returns the session-wide counters accumulated so far.
func (o *Orchestrator) Metrics() scraper.Metrics {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.counters
}

// Closed reports whether Close has been called.
func (o *Orchestrator) Closed() bool {
	return o.closed.Load()
}

// Run executes queries in order. Every started Run emits exactly one end event,
// after all other events of the run. Run returns *scraper.InvalidOptionError
// when any query is malformed (no page is fetched in that case),
// *scraper.SessionError when the session failed or was cancelled, and
// scraper.ErrSessionClosed without emitting anything when called after Close.
// Concurrent calls are serialized.
func (o *Orchestrator) Run(ctx context.Context, queries []scraper.QuerySpec, global scraper.Options) error {
	if o.closed.Load() {
		return scraper.ErrSessionClosed
	}
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.closed.Load() {
		return scraper.ErrSessionClosed
	}

	r := &run{o: o, id: o.newRunID()}
	logger := o.logger.With(zap.String("run_id", r.id))
	start := o.now()
	logger.Info("run started", zap.Int("queries", len(queries)))
	defer func() {
		r.emit(events.Event{Kind: events.KindEnd})
		logger.Info("run finished",
			zap.Duration("duration", o.now().Sub(start)),
			zap.Int("processed", o.counters.Processed),
			zap.Int("failed", o.counters.Failed),
			zap.Int("missed", o.counters.Missed),
		)
	}()

	resolved, err := o.resolveAll(queries, global)
	if err != nil {
		logger.Warn("invalid query options", zap.Error(err))
		r.emitError(err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopForward := forwardCancel(o.sessionCtx, cancel)
	defer stopForward()

	for i, spec := range queries {
		if err := r.runQuery(runCtx, spec, resolved[i]); err != nil {
			logger.Error("run aborted", zap.String("query", spec.Query), zap.Error(err))
			r.emitError(err)
			return err
		}
	}
	return nil
}

// Close releases the session. It cancels any in-flight Run, which then ends
// with a *scraper.SessionError. Calling Close more than once is a no-op.
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		o.cancelSession()
		if o.session == nil {
			return
		}
		if cerr := o.session.Close(); cerr != nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	})
	return err
}

func (o *Orchestrator) resolveAll(queries []scraper.QuerySpec, global scraper.Options) ([]scraper.EffectiveOptions, error) {
	out := make([]scraper.EffectiveOptions, len(queries))
	for i, spec := range queries {
		eff, err := scraper.ResolveQuery(global, spec)
		if err != nil {
			return nil, err
		}
		out[i] = eff
	}
	for i, spec := range queries {
		if o.cfg.OnResolved != nil {
			o.cfg.OnResolved(i, spec, out[i])
		}
	}
	return out, nil
}

func (o *Orchestrator) newRunID() string {
	if o.cfg.IDs != nil {
		if id, err := o.cfg.IDs.NewID(); err == nil {
			return id
		}
	}
	return "run-" + strconv.FormatInt(o.runSeq.Add(1), 10)
}

func (o *Orchestrator) now() time.Time {
	if o.cfg.Clock != nil {
		return o.cfg.Clock.Now()
	}
	return time.Now().UTC()
}

// fatal normalizes err into the *scraper.SessionError returned from Run.
func (o *Orchestrator) fatal(ctx context.Context, err error) error {
	var sessErr *scraper.SessionError
	if errors.As(err, &sessErr) {
		return sessErr
	}
	if o.closed.Load() {
		return &scraper.SessionError{Err: scraper.ErrSessionClosed}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &scraper.SessionError{Err: ctxErr}
	}
	return &scraper.SessionError{Err: err}
}

// forwardCancel cancels when parent finishes; the returned func stops forwarding.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
