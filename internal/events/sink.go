package events

import "context"

// Sink consumes batches of events forwarded by a Hub. Implementations must be
// safe for repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; both Bus and Hub satisfy it so the
// orchestrator stays agnostic about how events are delivered.
type Emitter interface {
	Emit(evt Event)
}
