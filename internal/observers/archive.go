package observers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// ArchiveSink writes each record's description HTML to a BlobStore under
// <prefix>/<run_id>/<sha256>.html. Records without HTML are skipped.
type ArchiveSink struct {
	blobs  scraper.BlobStore
	hasher scraper.Hasher
	prefix string
	logger *zap.Logger
}

// NewArchiveSink constructs an ArchiveSink.
func NewArchiveSink(blobs scraper.BlobStore, hasher scraper.Hasher, prefix string, logger *zap.Logger) (*ArchiveSink, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{blobs: blobs, hasher: hasher, prefix: prefix, logger: logger}, nil
}

// Consume archives every description in the batch. A failed upload does not
// stop the remaining ones; all failures are returned together.
func (s *ArchiveSink) Consume(ctx context.Context, batch []events.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Kind != events.KindData || evt.Job.DescriptionHTML == "" {
			continue
		}
		html := []byte(evt.Job.DescriptionHTML)
		digest, err := s.hasher.Hash(html)
		if err != nil {
			errs = append(errs, fmt.Errorf("hash description of job %s: %w", evt.Job.JobID, err))
			continue
		}
		objectPath := ObjectPath(s.prefix, evt.RunID, digest)
		uri, err := s.blobs.PutObject(ctx, objectPath, "text/html; charset=utf-8", bytes.NewReader(html))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive description of job %s: %w", evt.Job.JobID, err))
			continue
		}
		s.logger.Debug("description archived",
			zap.String("run_id", evt.RunID),
			zap.String("job_id", evt.Job.JobID),
			zap.String("uri", uri),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}

// ObjectPath returns the blob path used for a description digest.
func ObjectPath(prefix, runID, digest string) string {
	return path.Join(prefix, runID, digest+".html")
}
