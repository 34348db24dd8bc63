// Package csv exports scraped job records to a CSV file when a run ends.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// Header is the column layout of exported files.
var Header = []string{
	"run_id",
	"query",
	"location",
	"job_id",
	"title",
	"company",
	"company_link",
	"company_img_link",
	"place",
	"date",
	"link",
	"apply_link",
	"insights",
	"description",
}

// Collector buffers the records of each run and appends them to Path when
// the run's end event arrives. A new file starts with a header row.
type Collector struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string][]scraper.JobRecord
	err     error
}

// NewCollector creates a Collector writing to path.
func NewCollector(path string, logger *zap.Logger) (*Collector, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("csv path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{path: path, logger: logger, pending: make(map[string][]scraper.JobRecord)}, nil
}

// Attach registers the collector on bus and returns the unsubscribe func.
func (c *Collector) Attach(bus *events.Bus) func() {
	offData := bus.On(events.KindData, c.Handle)
	offEnd := bus.On(events.KindEnd, c.Handle)
	return func() {
		offData()
		offEnd()
	}
}

// Handle consumes one event.
func (c *Collector) Handle(evt events.Event) {
	switch evt.Kind {
	case events.KindData:
		c.mu.Lock()
		c.pending[evt.RunID] = append(c.pending[evt.RunID], evt.Job)
		c.mu.Unlock()
	case events.KindEnd:
		if err := c.flushRun(evt.RunID); err != nil {
			c.logger.Error("csv export failed", zap.String("run_id", evt.RunID), zap.String("path", c.path), zap.Error(err))
		}
	}
}

// Err returns every write failure seen so far.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Collector) flushRun(runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := c.pending[runID]
	delete(c.pending, runID)
	if err := c.appendRecords(runID, records); err != nil {
		c.err = errors.Join(c.err, err)
		return err
	}
	c.logger.Info("csv export written", zap.String("run_id", runID), zap.Int("rows", len(records)), zap.String("path", c.path))
	return nil
}

func (c *Collector) appendRecords(runID string, records []scraper.JobRecord) (err error) {
	if dir := filepath.Dir(c.path); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("create export directory: %w", mkErr)
		}
	}
	writeHeader := false
	info, statErr := os.Stat(c.path)
	switch {
	case os.IsNotExist(statErr):
		writeHeader = true
	case statErr != nil:
		return fmt.Errorf("stat export file: %w", statErr)
	case info.Size() == 0:
		writeHeader = true
	}

	// #nosec G304 -- the export path comes from operator configuration.
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close export file: %w", cerr)
		}
	}()
	return WriteRecords(f, runID, records, writeHeader)
}

// WriteRecords writes records as CSV rows, optionally preceded by Header.
func WriteRecords(w io.Writer, runID string, records []scraper.JobRecord, header bool) error {
	writer := csv.NewWriter(w)
	if header {
		if err := writer.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, rec := range records {
		if err := writer.Write(row(runID, rec)); err != nil {
			return fmt.Errorf("write job %s: %w", rec.JobID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(runID string, rec scraper.JobRecord) []string {
	return []string{
		runID,
		rec.Query,
		rec.Location,
		rec.JobID,
		rec.Title,
		rec.Company,
		rec.CompanyLink,
		rec.CompanyImgLink,
		rec.Place,
		rec.Date,
		rec.Link,
		rec.ApplyLink,
		strings.Join(rec.Insights, " | "),
		rec.Description,
	}
}
