package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// Kind names the type of an Event.
type Kind string

// Event kinds exposed to observers. This is the whole output contract of a run.
const (
	KindData    Kind = "data"
	KindMetrics Kind = "metrics"
	KindError   Kind = "error"
	KindEnd     Kind = "end"
)

// Kinds lists every event kind in a stable order.
var Kinds = []Kind{KindData, KindMetrics, KindError, KindEnd}

// Event is one notification emitted during a run.
type Event struct {
	Kind Kind
	// RunID identifies the Run call that produced the event.
	RunID string
	// TS is the time the event was emitted.
	TS time.Time
	// Job is set for KindData.
	Job scraper.JobRecord
	// Metrics is set for KindMetrics.
	Metrics scraper.PageMetrics
	// Err is set for KindError.
	Err error
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindData:
		if e.Job.JobID == "" {
			return errors.New("data event requires a job id")
		}
	case KindError:
		if e.Err == nil {
			return errors.New("error event requires an error")
		}
	case KindMetrics, KindEnd:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
