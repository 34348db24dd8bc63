package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// Handler observes a single event.
type Handler func(Event)

type subscription struct {
	handler Handler
}

// Bus delivers events synchronously to registered handlers, in registration
// order, on the emitting goroutine. A panicking handler is recovered and
// logged; the remaining handlers still run. Bus is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]*subscription
	logger   *zap.Logger
	panics   atomic.Int64
}

// NewBus constructs an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[Kind][]*subscription),
		logger:   logger,
	}
}

// On registers h for events of the given kind and returns a function that
// removes the registration. Calling the returned function more than once is a no-op.
func (b *Bus) On(kind Kind, h Handler) func() {
	return b.subscribe([]Kind{kind}, h)
}

// OnAll registers h for every event kind.
func (b *Bus) OnAll(h Handler) func() {
	return b.subscribe(Kinds, h)
}

// OnData registers a handler for scraped job records.
func (b *Bus) OnData(fn func(scraper.JobRecord)) func() {
	return b.On(KindData, func(evt Event) { fn(evt.Job) })
}

// OnMetrics registers a handler for per-page metrics.
func (b *Bus) OnMetrics(fn func(scraper.PageMetrics)) func() {
	return b.On(KindMetrics, func(evt Event) { fn(evt.Metrics) })
}

// OnError registers a handler for reported errors.
func (b *Bus) OnError(fn func(error)) func() {
	return b.On(KindError, func(evt Event) { fn(evt.Err) })
}

// OnEnd registers a handler for the terminal event of each run.
func (b *Bus) OnEnd(fn func()) func() {
	return b.On(KindEnd, func(Event) { fn() })
}

func (b *Bus) subscribe(kinds []Kind, h Handler) func() {
	if h == nil {
		return func() {}
	}
	sub := &subscription{handler: h}
	b.mu.Lock()
	for _, kind := range kinds {
		b.handlers[kind] = append(b.handlers[kind], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, kind := range kinds {
				b.handlers[kind] = removeSubscription(b.handlers[kind], sub)
			}
		})
	}
}

// Emit delivers evt to every handler registered for its kind.
func (b *Bus) Emit(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := append([]*subscription(nil), b.handlers[evt.Kind]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		b.deliver(sub, evt)
	}
}

// HandlerPanics reports how many handler invocations panicked so far.
func (b *Bus) HandlerPanics() int64 {
	return b.panics.Load()
}

func (b *Bus) deliver(sub *subscription, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.panics.Add(1)
			b.logger.Error("event handler panicked",
				zap.String("kind", string(evt.Kind)),
				zap.String("run_id", evt.RunID),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	sub.handler(evt)
}

func removeSubscription(subs []*subscription, target *subscription) []*subscription {
	out := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
