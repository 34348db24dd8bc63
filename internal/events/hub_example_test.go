package events

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit wires a Hub behind a Bus and flushes it via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(HubConfig{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)
	bus := NewBus(nil)
	bus.OnAll(hub.Emit)

	bus.Emit(Event{Kind: KindData, TS: time.Unix(0, 0), Job: scraper.JobRecord{JobID: "3701"}})
	bus.Emit(Event{Kind: KindEnd, TS: time.Unix(1, 0)})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 2
}
