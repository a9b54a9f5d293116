package hooks

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesEmittedEvent(t *testing.T) {
	b := New()
	ch, id := b.Subscribe(10)
	defer b.Unsubscribe(id)

	b.Emit(Event{Type: EventRoundStart, DebateID: "deb-1", Round: 1})

	select {
	case ev := <-ch:
		if ev.Type != EventRoundStart || ev.DebateID != "deb-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, id := b.Subscribe(10)
	b.Unsubscribe(id)

	b.Emit(Event{Type: EventRoundStart})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed, got a delivered event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestEmitNeverBlocksOnFullBuffer(t *testing.T) {
	b := New()
	_, id := b.Subscribe(1)
	defer b.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Emit(Event{Type: EventAgentStart})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber buffer")
	}
}

func TestConcurrentEmitIsSafe(t *testing.T) {
	b := New()
	ch, id := b.Subscribe(1000)
	defer b.Unsubscribe(id)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.Emit(Event{Type: EventContributionCreated})
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("concurrent emits did not complete in time")
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count == 0 {
				t.Fatal("expected at least some events delivered")
			}
			return
		}
	}
}
