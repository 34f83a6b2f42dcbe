package jobs

import (
	"sync"
	"testing"
	"time"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeJobLog, Message: "1"})
	bus.Publish(Event{Type: EventTypeJobLog, Message: "2"})
	bus.Publish(Event{Type: EventTypeJobLog, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[1].Seq != 3 {
		t.Fatalf("last seq = %d, want 3", events[1].Seq)
	}
}

// TestEventBusSubscribeDeliversInOrder checks ordered fan-out to a subscriber.
func TestEventBusSubscribeDeliversInOrder(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{Message: "before"})

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(JobProgress("task-1", "", "job-1", float64(i*10)))
	}

	for i := 0; i < 5; i++ {
		select {
		case event := <-ch:
			if event.ProgressPct != float64(i*10) {
				t.Fatalf("event %d progress = %v", i, event.ProgressPct)
			}
			if event.Seq != int64(i+2) {
				t.Fatalf("event %d seq = %d", i, event.Seq)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

// TestEventBusUnsubscribeClosesChannel checks teardown never blocks publishers.
func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(10)
	ch, unsubscribe := bus.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(Event{Message: "flood"})
		}
	}()

	time.Sleep(20 * time.Millisecond)
	unsubscribe()
	unsubscribe()
	wg.Wait()

	drained := 0
	for range ch {
		drained++
	}
	if drained > subscriberBuffer {
		t.Fatalf("drained %d events, want at most %d", drained, subscriberBuffer)
	}
}

// TestEventBusCloseUnsubscribesAll checks bus shutdown closes every receiver.
func TestEventBusCloseUnsubscribesAll(t *testing.T) {
	bus := NewEventBus(10)
	first, _ := bus.Subscribe()
	second, _ := bus.Subscribe()
	bus.Close()

	if _, ok := <-first; ok {
		t.Fatal("first channel should be closed")
	}
	if _, ok := <-second; ok {
		t.Fatal("second channel should be closed")
	}
}
