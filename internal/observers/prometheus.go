package observers

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// PrometheusSink turns the event stream into scrape counters.
type PrometheusSink struct {
	records   prometheus.Counter
	pages     prometheus.Counter
	errors    *prometheus.CounterVec
	runsEnded prometheus.Counter
	session   *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_job_records_total",
			Help: "Job records delivered to observers.",
		}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Result pages finished, including failed ones.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Reported errors partitioned by type.",
		}, []string{"type"}),
		runsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_runs_ended_total",
			Help: "Runs that emitted their end event.",
		}),
		session: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scraper_session_jobs",
			Help: "Session counters as last reported by a metrics event.",
		}, []string{"state"}),
	}
	for _, collector := range []prometheus.Collector{s.records, s.pages, s.errors, s.runsEnded, s.session} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register scraper collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case events.KindData:
			s.records.Inc()
		case events.KindMetrics:
			s.pages.Inc()
			s.session.WithLabelValues("processed").Set(float64(evt.Metrics.Processed))
			s.session.WithLabelValues("failed").Set(float64(evt.Metrics.Failed))
			s.session.WithLabelValues("missed").Set(float64(evt.Metrics.Missed))
		case events.KindError:
			s.errors.WithLabelValues(errorType(evt.Err)).Inc()
		case events.KindEnd:
			s.runsEnded.Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func errorType(err error) string {
	var (
		optErr  *scraper.InvalidOptionError
		extErr  *scraper.ExtractionError
		sessErr *scraper.SessionError
	)
	switch {
	case errors.As(err, &sessErr), errors.Is(err, scraper.ErrSessionClosed):
		return "session"
	case errors.As(err, &optErr):
		return "invalid_option"
	case errors.As(err, &extErr) && extErr.JobID != "":
		return "job"
	case errors.As(err, &extErr):
		return "page"
	default:
		return "other"
	}
}
