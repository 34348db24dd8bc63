// Package linkedin extracts job records from LinkedIn's public guest job pages.
package linkedin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// Config controls where pages are loaded from.
type Config struct {
	BaseURL string
}

// Extractor implements scraper.PageExtractor for LinkedIn guest pages. It is
// stateless and may be shared across sessions.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// ExtractPage loads one search result page and, for each card on it, the job's
// detail page. Once req.Max jobs were extracted the remaining cards are left
// alone. A failed detail page yields an entry carrying an
// *scraper.ExtractionError; a failed search page fails the whole call.
func (e *Extractor) ExtractPage(ctx context.Context, session scraper.Session, req scraper.PageRequest) (scraper.PageResult, error) {
	searchURL := SearchURL(e.cfg.BaseURL, req)
	doc, err := session.Navigate(ctx, searchURL)
	if err != nil {
		return scraper.PageResult{}, fmt.Errorf("load search page: %w", err)
	}
	cards, err := parseCards(doc.HTML)
	if err != nil {
		return scraper.PageResult{}, err
	}
	e.logger.Debug("search page parsed",
		zap.String("query", req.Query),
		zap.String("location", req.Location),
		zap.Int("page", req.Page),
		zap.Int("cards", len(cards)),
	)

	result := scraper.PageResult{
		Entries: make([]scraper.PageEntry, 0, len(cards)),
		HasMore: len(cards) >= PageSize && (req.Page+1)*PageSize < maxStart,
	}
	extracted := 0
	for _, job := range cards {
		if req.Max > 0 && extracted >= req.Max {
			break
		}
		if err := ctx.Err(); err != nil {
			return scraper.PageResult{}, fmt.Errorf("extract page: %w", err)
		}
		job.Query = req.Query
		job.Location = req.Location
		if job.JobID == "" {
			result.Entries = append(result.Entries, scraper.PageEntry{Job: job, Err: e.extractionErr(req, "", errors.New("card has no job id"))})
			continue
		}
		enriched, err := e.enrich(ctx, session, req, job)
		if err != nil {
			if scraper.IsFatal(err) {
				result.Entries = append(result.Entries, scraper.PageEntry{Job: job, Err: err})
				return result, nil
			}
			err = e.extractionErr(req, job.JobID, err)
		} else {
			extracted++
		}
		result.Entries = append(result.Entries, scraper.PageEntry{Job: enriched, Err: err})
	}
	return result, nil
}

func (e *Extractor) enrich(ctx context.Context, session scraper.Session, req scraper.PageRequest, job scraper.JobRecord) (scraper.JobRecord, error) {
	detailURL := DetailURL(e.cfg.BaseURL, job.JobID)
	doc, err := session.Navigate(ctx, detailURL)
	if err != nil {
		return job, fmt.Errorf("load detail page: %w", err)
	}

	describer := req.Options.Description
	if describer == nil {
		describer = SelectorDescription{Selector: DefaultDescriptionSelector}
	}
	link := job.Link
	if link == "" {
		link = detailURL
	}
	desc, err := describer.ExtractDescription(scraper.DetailPage{JobID: job.JobID, Link: link, HTML: doc.HTML})
	if err != nil {
		return job, fmt.Errorf("extract description: %w", err)
	}
	job.Description = desc.Text
	job.DescriptionHTML = desc.HTML

	info, err := parseDetail(doc.HTML)
	if err != nil {
		return job, err
	}
	job.Insights = append(job.Insights, info.criteria...)
	if req.Options.ApplyLink {
		job.ApplyLink = info.applyLink
	}
	return job, nil
}

func (e *Extractor) extractionErr(req scraper.PageRequest, jobID string, err error) error {
	return &scraper.ExtractionError{
		Query:    req.Query,
		Location: req.Location,
		Page:     req.Page,
		JobID:    jobID,
		Err:      err,
	}
}
