package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(dataEvent("1"))
	hub.Emit(dataEvent("2"))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(dataEvent("1"))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubFlushesOnEnd(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(dataEvent("1"))
	hub.Emit(Event{Kind: KindEnd, TS: time.Now()})
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2 && b[0][1].Kind == KindEnd
	}, time.Second, 5*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains buffered events and closes sinks.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(dataEvent("1"))
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.Equal(t, 1, sink.Closed())

	hub.Emit(dataEvent("2"))
	require.Len(t, sink.Batches(), 1)
}

func TestHubPreservesOrderAcrossBatches(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{MaxBatchEvents: 3, MaxBatchWait: time.Minute}, sink)
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, id := range ids {
		hub.Emit(dataEvent(id))
	}
	require.NoError(t, hub.Close(context.Background()))

	var got []string
	for _, batch := range sink.Batches() {
		for _, evt := range batch {
			got = append(got, evt.Job.JobID)
		}
	}
	require.Equal(t, ids, got)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{MaxBatchEvents: 1}, sink)
	hub.Emit(Event{Kind: KindData, TS: time.Now()})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestHubDropOnFullNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    HubConfig{DropOnFull: true},
		queue:  make(chan Event),
		logger: zap.NewNop(),
		drops:  dropReporter{every: time.Hour},
	}
	start := time.Now()
	hub.Emit(dataEvent("1"))
	hub.Emit(dataEvent("2"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestDropReporterBatchesReports(t *testing.T) {
	t.Parallel()

	d := dropReporter{every: time.Second}
	now := time.Unix(100, 0)

	n, report := d.record(now)
	require.True(t, report)
	require.EqualValues(t, 1, n)

	_, report = d.record(now.Add(200 * time.Millisecond))
	require.False(t, report)
	_, report = d.record(now.Add(500 * time.Millisecond))
	require.False(t, report)

	n, report = d.record(now.Add(2 * time.Second))
	require.True(t, report)
	require.EqualValues(t, 3, n)
}

func TestHubBatchWaitStartsAtFirstEvent(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{MaxBatchEvents: 100, MaxBatchWait: 100 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(dataEvent("1"))
	stop := time.After(300 * time.Millisecond)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for emitting := true; emitting; {
		select {
		case <-ticker.C:
			hub.Emit(dataEvent("more"))
		case <-stop:
			emitting = false
		}
	}
	require.NotEmpty(t, sink.Batches())
}

func dataEvent(id string) Event {
	return Event{Kind: KindData, RunID: "run-1", TS: time.Now(), Job: scraper.JobRecord{JobID: id}}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  int
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubSink) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}
