package observers

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
)

// LogSink writes one structured line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.logEvent(evt)
	}
	return nil
}

func (s *LogSink) logEvent(evt events.Event) {
	logger := s.logger.With(zap.String("run_id", evt.RunID), zap.Time("ts", evt.TS))
	switch evt.Kind {
	case events.KindData:
		logger.Info("job",
			zap.String("job_id", evt.Job.JobID),
			zap.String("query", evt.Job.Query),
			zap.String("location", evt.Job.Location),
			zap.String("title", evt.Job.Title),
			zap.String("company", evt.Job.Company),
			zap.String("place", evt.Job.Place),
			zap.String("date", evt.Job.Date),
			zap.String("link", evt.Job.Link),
			zap.String("apply_link", evt.Job.ApplyLink),
			zap.Strings("insights", evt.Job.Insights),
			zap.Int("description_len", len(evt.Job.Description)),
		)
	case events.KindMetrics:
		logger.Info("metrics",
			zap.String("query", evt.Metrics.Query),
			zap.String("location", evt.Metrics.Location),
			zap.Int("page", evt.Metrics.Page),
			zap.Int("processed", evt.Metrics.Processed),
			zap.Int("failed", evt.Metrics.Failed),
			zap.Int("missed", evt.Metrics.Missed),
		)
	case events.KindError:
		logger.Warn("scrape error", zap.Error(evt.Err))
	case events.KindEnd:
		logger.Info("run ended")
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
