package observers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// StoreSink persists data events through a scraper.JobStore, one SaveJobs call
// per run present in a batch.
type StoreSink struct {
	store  scraper.JobStore
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided store.
func NewStoreSink(store scraper.JobStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Consume groups records by run, keeping batch order, and saves them.
func (s *StoreSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	var order []string
	byRun := make(map[string][]scraper.JobRecord)
	for _, evt := range batch {
		if evt.Kind != events.KindData {
			continue
		}
		if _, ok := byRun[evt.RunID]; !ok {
			order = append(order, evt.RunID)
		}
		byRun[evt.RunID] = append(byRun[evt.RunID], evt.Job)
	}
	for _, runID := range order {
		if err := s.store.SaveJobs(ctx, runID, byRun[runID]); err != nil {
			return fmt.Errorf("save jobs for run %s: %w", runID, err)
		}
		s.logger.Debug("jobs saved", zap.String("run_id", runID), zap.Int("count", len(byRun[runID])))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
