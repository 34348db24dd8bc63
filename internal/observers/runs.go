package observers

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// RunSink mirrors the event stream into a scraper.RunStore: records, latest
// counters and error counts. Terminal status is set by whoever owns the run.
type RunSink struct {
	store scraper.RunStore
}

// NewRunSink constructs a RunSink.
func NewRunSink(store scraper.RunStore) *RunSink {
	return &RunSink{store: store}
}

// Consume applies every event to the store. Events of unknown runs are skipped.
func (s *RunSink) Consume(ctx context.Context, batch []events.Event) error {
	for _, evt := range batch {
		var err error
		switch evt.Kind {
		case events.KindData:
			err = s.store.AppendJob(ctx, evt.RunID, evt.Job)
		case events.KindMetrics:
			err = s.store.RecordMetrics(ctx, evt.RunID, evt.Metrics.Metrics)
		case events.KindError:
			err = s.store.RecordError(ctx, evt.RunID)
		}
		if errors.Is(err, scraper.ErrRunNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("record %s event of run %s: %w", evt.Kind, evt.RunID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *RunSink) Close(context.Context) error {
	return nil
}
