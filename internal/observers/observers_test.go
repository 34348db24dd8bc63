package observers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/realtime-job-scraper/internal/events"
	"github.com/JakeFAU/realtime-job-scraper/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/realtime-job-scraper/internal/publisher/memory"
	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
	"github.com/JakeFAU/realtime-job-scraper/internal/storage/memory"
)

var baseTS = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func dataEvent(runID, jobID, html string) events.Event {
	return events.Event{
		Kind:  events.KindData,
		RunID: runID,
		TS:    baseTS,
		Job:   scraper.JobRecord{JobID: jobID, Title: "Engineer " + jobID, DescriptionHTML: html},
	}
}

func sampleBatch() []events.Event {
	return []events.Event{
		dataEvent("run-1", "1", "<p>one</p>"),
		dataEvent("run-1", "2", ""),
		{Kind: events.KindMetrics, RunID: "run-1", TS: baseTS, Metrics: scraper.PageMetrics{
			Metrics: scraper.Metrics{Processed: 2, Failed: 1, Missed: 3}, Query: "Engineer", Page: 0,
		}},
		{Kind: events.KindError, RunID: "run-1", TS: baseTS, Err: &scraper.ExtractionError{JobID: "9", Err: errors.New("timeout")}},
		{Kind: events.KindError, RunID: "run-1", TS: baseTS, Err: &scraper.SessionError{Err: scraper.ErrSessionClosed}},
		{Kind: events.KindEnd, RunID: "run-1", TS: baseTS},
	}
}

func TestLogSinkLogsEveryEvent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 6)
	require.Equal(t, "job", entries[0].Message)
	require.Equal(t, "1", entries[0].ContextMap()["job_id"])
	require.Equal(t, "metrics", entries[2].Message)
	require.Equal(t, int64(3), entries[2].ContextMap()["missed"])
	require.Equal(t, zap.WarnLevel, entries[3].Level)
	require.Equal(t, "run ended", entries[5].Message)
	require.Equal(t, "run-1", entries[5].ContextMap()["run_id"])
}

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))

	require.InDelta(t, 2.0, testutil.ToFloat64(sink.records), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pages), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.errors.WithLabelValues("job")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.errors.WithLabelValues("session")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsEnded), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(sink.session.WithLabelValues("missed")), 1e-9)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "duplicate registration must fail")
}

func TestErrorType(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"session":        scraper.ErrSessionClosed,
		"invalid_option": &scraper.InvalidOptionError{Field: "limit"},
		"page":           &scraper.ExtractionError{Page: 2, Err: errors.New("x")},
		"job":            fmt.Errorf("wrapped: %w", &scraper.ExtractionError{JobID: "1", Err: errors.New("x")}),
		"other":          errors.New("boom"),
	}
	for want, err := range cases {
		require.Equal(t, want, errorType(err), "error %v", err)
	}
}

type fakeJobStore struct {
	calls []savedBatch
	err   error
}

type savedBatch struct {
	runID string
	ids   []string
}

func (f *fakeJobStore) SaveJobs(_ context.Context, runID string, jobs []scraper.JobRecord) error {
	if f.err != nil {
		return f.err
	}
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.JobID)
	}
	f.calls = append(f.calls, savedBatch{runID: runID, ids: ids})
	return nil
}

func TestStoreSinkGroupsByRun(t *testing.T) {
	t.Parallel()

	store := &fakeJobStore{}
	sink := NewStoreSink(store, nil)
	batch := append(sampleBatch(), dataEvent("run-2", "5", ""), dataEvent("run-1", "3", ""))
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, []savedBatch{
		{runID: "run-1", ids: []string{"1", "2", "3"}},
		{runID: "run-2", ids: []string{"5"}},
	}, store.calls)

	failing := NewStoreSink(&fakeJobStore{err: errors.New("db down")}, nil)
	require.ErrorContains(t, failing.Consume(context.Background(), batch), "db down")
	require.NoError(t, (*StoreSink)(nil).Consume(context.Background(), batch))
}

func TestArchiveSinkWritesContentAddressedPaths(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	hasher := sha256.New()
	sink, err := NewArchiveSink(blobs, hasher, "descriptions", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))

	digest, err := hasher.Hash([]byte("<p>one</p>"))
	require.NoError(t, err)
	want := "descriptions/run-1/" + digest + ".html"
	require.Equal(t, []string{want}, blobs.Paths())
	data, contentType, ok := blobs.Object(want)
	require.True(t, ok)
	require.Equal(t, "<p>one</p>", string(data))
	require.Contains(t, contentType, "text/html")

	_, err = NewArchiveSink(nil, hasher, "", nil)
	require.Error(t, err)
	_, err = NewArchiveSink(blobs, nil, "", nil)
	require.Error(t, err)
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket gone")
}

func TestArchiveSinkReportsEveryFailure(t *testing.T) {
	t.Parallel()

	sink, err := NewArchiveSink(failingBlobs{}, sha256.New(), "", nil)
	require.NoError(t, err)
	batch := []events.Event{dataEvent("r", "1", "<a/>"), dataEvent("r", "2", "<b/>")}
	err = sink.Consume(context.Background(), batch)
	require.ErrorContains(t, err, "job 1")
	require.ErrorContains(t, err, "job 2")
}

func TestPublishSinkPublishesRecords(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	sink, err := NewPublishSink(pub, "jobs", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), sampleBatch()))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "jobs", msgs[0].Topic)
	require.JSONEq(t, `{"run_id":"run-1","scraped_at":"2026-10-15T12:00:00Z","job":{
		"query":"","location":"","job_id":"1","title":"Engineer 1","place":"","date":"","link":"",
		"insights":null,"description":"","description_html":"<p>one</p>"}}`, string(msgs[0].Data))

	_, err = NewPublishSink(nil, "jobs", nil)
	require.Error(t, err)
}

func TestRunSinkMirrorsEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewRunStore()
	require.NoError(t, store.CreateRun(ctx, scraper.Run{ID: "run-1"}))
	sink := NewRunSink(store)

	batch := append(sampleBatch(), dataEvent("unknown-run", "8", ""))
	require.NoError(t, sink.Consume(ctx, batch))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 2, run.Jobs)
	require.Equal(t, 2, run.Errors)
	require.Equal(t, scraper.Metrics{Processed: 2, Failed: 1, Missed: 3}, run.Metrics)
	jobs, err := store.ListJobs(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}
