package observers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// JobMessage is the payload published for every scraped record.
type JobMessage struct {
	RunID     string            `json:"run_id"`
	ScrapedAt time.Time         `json:"scraped_at"`
	Job       scraper.JobRecord `json:"job"`
}

// PublishSink publishes each data event to a topic.
type PublishSink struct {
	publisher scraper.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink constructs a PublishSink.
func NewPublishSink(publisher scraper.Publisher, topic string, logger *zap.Logger) (*PublishSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}, nil
}

// Consume publishes records in batch order and returns all failures joined.
func (s *PublishSink) Consume(ctx context.Context, batch []events.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Kind != events.KindData {
			continue
		}
		msg := JobMessage{RunID: evt.RunID, ScrapedAt: evt.TS, Job: evt.Job}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish job %s: %w", evt.Job.JobID, err))
			continue
		}
		s.logger.Debug("job published", zap.String("job_id", evt.Job.JobID), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
