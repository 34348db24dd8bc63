// Package uuid generates run IDs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run IDs with an optional prefix.
type Generator struct {
	prefix string
}

// New creates a Generator. IDs look like "<prefix><uuid7>".
func New(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns a fresh run ID.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}

// Fixed always returns the same ID. It lets a caller that allocated a run ID
// up front hand it to an orchestrator.
type Fixed string

// NewID returns f.
func (f Fixed) NewID() (string, error) {
	if f == "" {
		return "", fmt.Errorf("fixed id is empty")
	}
	return string(f), nil
}
