package scraper

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by operations attempted after the session was closed.
var ErrSessionClosed = errors.New("scraper session closed")

// InvalidOptionError reports a malformed QuerySpec or option set.
type InvalidOptionError struct {
	Query  string
	Field  string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("invalid option %s for query %q: %s", e.Field, e.Query, e.Reason)
	}
	return fmt.Sprintf("invalid option %s: %s", e.Field, e.Reason)
}

// ExtractionError reports a page or a single job that failed to yield data.
// It is never fatal to a run.
type ExtractionError struct {
	Query    string
	Location string
	Page     int
	// JobID is empty for page-level failures.
	JobID string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("extract job %s (query %q, location %q, page %d): %v",
			e.JobID, e.Query, e.Location, e.Page, e.Err)
	}
	return fmt.Sprintf("extract page %d (query %q, location %q): %v", e.Page, e.Query, e.Location, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// SessionError reports that the automation resource became unusable. It aborts
// the remaining queries of a run.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session failed: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the current run.
func IsFatal(err error) bool {
	var sessErr *SessionError
	return errors.As(err, &sessErr) || errors.Is(err, ErrSessionClosed)
}

// ErrRunNotFound is returned by RunStore lookups for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")
