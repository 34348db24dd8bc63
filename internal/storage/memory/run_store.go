package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// RunStore keeps run bookkeeping and scraped records in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]scraper.Run
	jobs map[string][]scraper.JobRecord
	now  func() time.Time
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]scraper.Run),
		jobs: make(map[string][]scraper.JobRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun stores a new run in queued status.
func (s *RunStore) CreateRun(_ context.Context, run scraper.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.Status == "" {
		run.Status = scraper.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	run.Queries = append([]string(nil), run.Queries...)
	s.runs[run.ID] = run
	return nil
}

// MarkRunning moves a queued run to running.
func (s *RunStore) MarkRunning(_ context.Context, runID string) error {
	return s.update(runID, func(run *scraper.Run) {
		if run.Status.Terminal() {
			return
		}
		run.Status = scraper.RunStatusRunning
		if run.StartedAt == nil {
			run.StartedAt = pointerTime(s.now())
		}
	})
}

// AppendJob records one scraped job for the run.
func (s *RunStore) AppendJob(_ context.Context, runID string, job scraper.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("append job to %s: %w", runID, scraper.ErrRunNotFound)
	}
	job.Insights = append([]string(nil), job.Insights...)
	s.jobs[runID] = append(s.jobs[runID], job)
	run.Jobs++
	s.runs[runID] = run
	return nil
}

// RecordMetrics stores the latest counters reported for the run.
func (s *RunStore) RecordMetrics(_ context.Context, runID string, metrics scraper.Metrics) error {
	return s.update(runID, func(run *scraper.Run) {
		run.Metrics = metrics
	})
}

// RecordError counts one reported error.
func (s *RunStore) RecordError(_ context.Context, runID string) error {
	return s.update(runID, func(run *scraper.Run) {
		run.Errors++
	})
}

// FinishRun moves the run to a terminal status. A run that is already
// terminal keeps its first terminal status.
func (s *RunStore) FinishRun(_ context.Context, runID string, status scraper.RunStatus, errText string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	return s.update(runID, func(run *scraper.Run) {
		if run.Status.Terminal() {
			return
		}
		run.Status = status
		run.ErrorText = errText
		run.FinishedAt = pointerTime(s.now())
	})
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (scraper.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return scraper.Run{}, scraper.ErrRunNotFound
	}
	run.Queries = append([]string(nil), run.Queries...)
	return run, nil
}

// ListJobs returns the records scraped by the run in emission order.
func (s *RunStore) ListJobs(_ context.Context, runID string) ([]scraper.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, scraper.ErrRunNotFound
	}
	return append([]scraper.JobRecord(nil), s.jobs[runID]...), nil
}

func (s *RunStore) update(runID string, fn func(*scraper.Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return scraper.ErrRunNotFound
	}
	fn(&run)
	s.runs[runID] = run
	return nil
}

func pointerTime(t time.Time) *time.Time {
	return &t
}
