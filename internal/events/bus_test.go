package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var order []string
	bus.On(KindData, func(Event) { order = append(order, "first") })
	bus.OnData(func(job scraper.JobRecord) { order = append(order, "second:"+job.JobID) })
	bus.OnAll(func(evt Event) { order = append(order, "all:"+string(evt.Kind)) })

	bus.Emit(Event{Kind: KindData, TS: time.Now(), Job: scraper.JobRecord{JobID: "42"}})
	require.Equal(t, []string{"first", "second:42", "all:data"}, order)
}

func TestBusTypedHandlers(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	var (
		gotMetrics scraper.PageMetrics
		gotErr     error
		ends       int
	)
	bus.OnMetrics(func(m scraper.PageMetrics) { gotMetrics = m })
	bus.OnError(func(err error) { gotErr = err })
	bus.OnEnd(func() { ends++ })

	boom := errors.New("boom")
	bus.Emit(Event{Kind: KindMetrics, TS: time.Now(), Metrics: scraper.PageMetrics{Metrics: scraper.Metrics{Processed: 3}}})
	bus.Emit(Event{Kind: KindError, TS: time.Now(), Err: boom})
	bus.Emit(Event{Kind: KindEnd, TS: time.Now()})

	require.Equal(t, 3, gotMetrics.Processed)
	require.ErrorIs(t, gotErr, boom)
	require.Equal(t, 1, ends)
}

func TestBusRecoversFromPanickingHandler(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	delivered := 0
	bus.OnEnd(func() { panic("observer bug") })
	bus.OnEnd(func() { delivered++ })

	require.NotPanics(t, func() {
		bus.Emit(Event{Kind: KindEnd, TS: time.Now()})
	})
	require.Equal(t, 1, delivered)
	require.EqualValues(t, 1, bus.HandlerPanics())
}

func TestBusUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	calls := 0
	off := bus.OnAll(func(Event) { calls++ })

	bus.Emit(Event{Kind: KindEnd, TS: time.Now()})
	off()
	off()
	bus.Emit(Event{Kind: KindEnd, TS: time.Now()})
	bus.Emit(Event{Kind: KindError, TS: time.Now(), Err: errors.New("x")})

	require.Equal(t, 1, calls)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	require.NoError(t, Event{Kind: KindEnd, TS: now}.Validate())
	require.Error(t, Event{Kind: KindEnd}.Validate())
	require.Error(t, Event{Kind: KindData, TS: now}.Validate())
	require.Error(t, Event{Kind: KindError, TS: now}.Validate())
	require.Error(t, Event{Kind: "progress", TS: now}.Validate())
}
