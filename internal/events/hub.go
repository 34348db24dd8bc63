package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 500
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropReportEvery       = 5 * time.Second
)

// HubConfig tunes how a Hub batches events for its sinks. Zero values select
// the defaults.
type HubConfig struct {
	// BufferSize is the number of events queued between Emit and the sinks.
	BufferSize int
	// MaxBatchEvents flushes a batch as soon as it holds this many events.
	MaxBatchEvents int
	// MaxBatchWait bounds how long the first event of a batch waits for company.
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration
	// DropOnFull makes Emit discard events instead of waiting for queue space.
	DropOnFull bool
	// BaseContext is the parent of every sink call.
	BaseContext context.Context
	Logger      *zap.Logger
}

func (c HubConfig) withDefaults() HubConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub hands events to sinks in emission order from its own goroutine, so a
// slow database or broker never stalls a scrape. Register Hub.Emit on a Bus.
// A batch is flushed when it is full, when MaxBatchWait has passed since its
// first event, or right after an end event.
type Hub struct {
	cfg    HubConfig
	sinks  []Sink
	logger *zap.Logger

	queue chan Event
	stop  chan struct{}
	done  chan struct{}

	drops    dropReporter
	closed   atomic.Bool
	stopOnce sync.Once
	closeCtx context.Context
}

// NewHub starts a Hub delivering to sinks. Nil sinks are ignored.
func NewHub(cfg HubConfig, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:    cfg,
		logger: cfg.Logger,
		queue:  make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		drops:  dropReporter{every: dropReportEvery},
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.loop()
	return h
}

// Emit queues evt. Events failing Validate are discarded, as is everything
// emitted after Close. With DropOnFull a full queue drops the event and the
// number of drops is logged periodically; otherwise Emit waits for space.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid event", zap.Error(err))
		return
	}
	if !h.cfg.DropOnFull {
		select {
		case h.queue <- evt:
		case <-h.done:
		}
		return
	}
	select {
	case h.queue <- evt:
	default:
		if n, report := h.drops.record(time.Now()); report {
			h.logger.Warn("event queue full, events dropped", zap.Int64("dropped", n))
		}
	}
}

// Close stops intake, delivers what is still queued, closes the sinks and
// waits for all of that or for ctx. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) loop() {
	defer close(h.done)

	var (
		pending []Event
		timer   *time.Timer
		expired <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, expired = nil, nil
		}
		h.deliver(pending)
		pending = nil
	}

	for {
		select {
		case evt := <-h.queue:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents || evt.Kind == KindEnd {
				flush()
			} else if timer == nil {
				timer = time.NewTimer(h.cfg.MaxBatchWait)
				expired = timer.C
			}
		case <-expired:
			timer, expired = nil, nil
			flush()
		case <-h.stop:
			if timer != nil {
				timer.Stop()
			}
			h.drain(pending)
			return
		}
	}
}

// drain delivers pending plus everything left in the queue, then closes sinks.
func (h *Hub) drain(pending []Event) {
	for {
		select {
		case evt := <-h.queue:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				h.deliver(pending)
				pending = nil
			}
		default:
			h.deliver(pending)
			h.closeSinks()
			return
		}
	}
}

// deliver hands batch to every sink in registration order.
func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		err := sink.Consume(ctx, batch)
		cancel()
		if err != nil {
			h.logger.Warn("event sink failed",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("event sink close failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
}

// dropReporter counts dropped events and says when the count is due for a log
// line, at most once per interval.
type dropReporter struct {
	every time.Duration

	mu       sync.Mutex
	count    int64
	reported time.Time
}

// record counts one drop. When a report is due it returns the drops since the
// previous report and resets the count.
func (d *dropReporter) record(now time.Time) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	if !d.reported.IsZero() && now.Sub(d.reported) < d.every {
		return 0, false
	}
	n := d.count
	d.count = 0
	d.reported = now
	return n, true
}
