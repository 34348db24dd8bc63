// Package system provides the wall clock used to stamp events.
package system

import "time"

// Clock implements scraper.Clock. Timestamps are UTC, truncated to Precision
// when it is positive.
type Clock struct {
	Precision time.Duration
}

// New creates a Clock with millisecond precision, matching the JSON event encoding.
func New() *Clock {
	return &Clock{Precision: time.Millisecond}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c != nil && c.Precision > 0 {
		now = now.Truncate(c.Precision)
	}
	return now
}
