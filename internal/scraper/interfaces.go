package scraper

import (
	"context"
	"io"
	"time"
)

// Document is a rendered page as captured by a Session.
type Document struct {
	URL        string
	StatusCode int
	HTML       []byte
}

// Session is one automation resource (a browser, or an HTTP client standing in
// for one). Implementations return *SessionError when the resource itself is
// no longer usable; ordinary navigation failures are returned as plain errors.
type Session interface {
	Navigate(ctx context.Context, url string) (Document, error)
	Close() error
}

// PageRequest identifies one result page of a query/location pair.
type PageRequest struct {
	Query    string
	Location string
	// Page is zero-based.
	Page int
	// Max caps the number of jobs the extractor should produce for this page.
	// Zero means no cap.
	Max     int
	Options EffectiveOptions
}

// PageEntry is one job found on a result page. Exactly one of Job or Err is meaningful.
type PageEntry struct {
	Job JobRecord
	Err error
}

// PageResult is everything extracted from one result page, in page order.
type PageResult struct {
	Entries []PageEntry
	HasMore bool
}

// PageExtractor turns one rendered result page into job records.
type PageExtractor interface {
	ExtractPage(ctx context.Context, session Session, req PageRequest) (PageResult, error)
}

// DetailPage is the execution context handed to a DescriptionExtractor: the
// rendered detail page of a single job.
type DetailPage struct {
	JobID string
	Link  string
	HTML  []byte
}

// Description is what a DescriptionExtractor returns.
type Description struct {
	Text string
	HTML string
}

// DescriptionExtractor pulls the job description out of a detail page. It must
// not retain the page after returning.
type DescriptionExtractor interface {
	ExtractDescription(page DetailPage) (Description, error)
}

// DescriptionFunc adapts a plain function to DescriptionExtractor.
type DescriptionFunc func(page DetailPage) (Description, error)

// ExtractDescription calls f.
func (f DescriptionFunc) ExtractDescription(page DetailPage) (Description, error) {
	return f(page)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes job notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// RunStore tracks submitted runs and the records they produced.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	MarkRunning(ctx context.Context, runID string) error
	AppendJob(ctx context.Context, runID string, job JobRecord) error
	RecordMetrics(ctx context.Context, runID string, metrics Metrics) error
	RecordError(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, runID string, status RunStatus, errText string) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListJobs(ctx context.Context, runID string) ([]JobRecord, error)
}

// JobStore persists scraped job records.
type JobStore interface {
	SaveJobs(ctx context.Context, runID string, jobs []JobRecord) error
}
