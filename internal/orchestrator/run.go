package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// run holds the state of a single Run call. It is only touched while the
// orchestrator's run mutex is held.
type run struct {
	o  *Orchestrator
	id string
}

func (r *run) emit(evt events.Event) {
	evt.RunID = r.id
	evt.TS = r.o.now()
	r.o.emitter.Emit(evt)
}

func (r *run) emitError(err error) {
	r.emit(events.Event{Kind: events.KindError, Err: err})
}

func (r *run) emitMetrics(query, location string, page int) {
	r.emit(events.Event{Kind: events.KindMetrics, Metrics: scraper.PageMetrics{
		Metrics:  r.o.counters,
		Query:    query,
		Location: location,
		Page:     page,
	}})
}

func (r *run) runQuery(ctx context.Context, spec scraper.QuerySpec, eff scraper.EffectiveOptions) error {
	for _, location := range eff.Locations {
		if err := r.runLocation(ctx, spec.Query, location, eff); err != nil {
			return err
		}
	}
	return nil
}

// runLocation paginates one (query, location) pair until limit distinct jobs
// were emitted or the extractor reports no further pages. Only fatal errors
// are returned.
func (r *run) runLocation(ctx context.Context, query, location string, eff scraper.EffectiveOptions) error {
	logger := r.o.logger.With(
		zap.String("run_id", r.id),
		zap.String("query", query),
		zap.String("location", location),
	)
	seen := make(map[string]struct{}, eff.Limit)
	emitted := 0
	for page := 0; emitted < eff.Limit; page++ {
		if err := ctx.Err(); err != nil {
			return r.o.fatal(ctx, err)
		}
		req := scraper.PageRequest{Query: query, Location: location, Page: page, Max: eff.Limit - emitted, Options: eff}
		res, err := r.o.extractor.ExtractPage(ctx, r.o.session, req)
		if err != nil {
			if scraper.IsFatal(err) || ctx.Err() != nil {
				return r.o.fatal(ctx, err)
			}
			r.o.counters.Failed++
			logger.Warn("page extraction failed", zap.Int("page", page), zap.Error(err))
			r.emitError(asExtractionError(err, query, location, page, ""))
			r.emitMetrics(query, location, page)
			return nil
		}

		for _, entry := range res.Entries {
			if emitted >= eff.Limit {
				break
			}
			if entry.Err != nil {
				if scraper.IsFatal(entry.Err) {
					return r.o.fatal(ctx, entry.Err)
				}
				r.o.counters.Failed++
				logger.Debug("job extraction failed", zap.Int("page", page), zap.Error(entry.Err))
				r.emitError(asExtractionError(entry.Err, query, location, page, entry.Job.JobID))
				continue
			}
			job := entry.Job
			if _, dup := seen[job.JobID]; dup || job.JobID == "" {
				r.o.counters.Missed++
				continue
			}
			seen[job.JobID] = struct{}{}
			if job.Query == "" {
				job.Query = query
			}
			if job.Location == "" {
				job.Location = location
			}
			r.o.counters.Processed++
			emitted++
			r.emit(events.Event{Kind: events.KindData, Job: job})
		}
		r.emitMetrics(query, location, page)
		logger.Debug("page processed",
			zap.Int("page", page),
			zap.Int("entries", len(res.Entries)),
			zap.Int("emitted", emitted),
		)
		if !res.HasMore || len(res.Entries) == 0 {
			break
		}
	}
	return nil
}

func asExtractionError(err error, query, location string, page int, jobID string) error {
	var extErr *scraper.ExtractionError
	if errors.As(err, &extErr) {
		return extErr
	}
	return &scraper.ExtractionError{Query: query, Location: location, Page: page, JobID: jobID, Err: err}
}
