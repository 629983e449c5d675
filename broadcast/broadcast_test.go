package broadcast_test

import (
	"sync"
	"testing"

	"github.com/tailored-agentic-units/polyglot/broadcast"
)

func TestHub_PublishFanOut(t *testing.T) {
	h := broadcast.New[string]()
	defer h.Close()

	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.Publish("busy")
	h.Publish("idle")

	for _, sub := range []*broadcast.Subscription[string]{a, b} {
		for _, want := range []string{"busy", "idle"} {
			if got := <-sub.C(); got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		}
	}

	snap := h.Metrics().Snapshot()
	if snap.Published != 2 {
		t.Errorf("Published = %d, want 2", snap.Published)
	}
	if snap.Delivered != 4 {
		t.Errorf("Delivered = %d, want 4", snap.Delivered)
	}
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := broadcast.New[int]()
	defer h.Close()

	slow := h.Subscribe(1)
	fast := h.Subscribe(8)

	for i := range 3 {
		h.Publish(i)
	}

	if got := slow.Dropped(); got != 2 {
		t.Errorf("slow.Dropped() = %d, want 2", got)
	}
	if got := fast.Dropped(); got != 0 {
		t.Errorf("fast.Dropped() = %d, want 0", got)
	}
	if got := <-slow.C(); got != 0 {
		t.Errorf("slow received %d, want 0", got)
	}
	if got := h.Metrics().Snapshot().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestSubscription_Close(t *testing.T) {
	h := broadcast.New[int]()
	defer h.Close()

	sub := h.Subscribe(1)
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}

	sub.Close()
	sub.Close()

	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed")
	}
	h.Publish(1)
	if got := h.Metrics().Snapshot().Subscribers; got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}
}

func TestHub_Close(t *testing.T) {
	h := broadcast.New[int]()
	sub := h.Subscribe(1)

	h.Close()
	h.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("subscription channel should be closed")
	}

	h.Publish(1)
	if got := h.Metrics().Snapshot().Published; got != 0 {
		t.Errorf("Published = %d, want 0 after close", got)
	}

	late := h.Subscribe(1)
	if _, ok := <-late.C(); ok {
		t.Error("subscribing to a closed hub should yield a closed channel")
	}
	sub.Close()
}

func TestHub_ConcurrentPublish(t *testing.T) {
	h := broadcast.New[int]()
	defer h.Close()
	sub := h.Subscribe(1000)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				h.Publish(i*50 + j)
			}
		}()
	}
	wg.Wait()

	if got := len(sub.C()); got != 500 {
		t.Errorf("queued = %d, want 500", got)
	}
}
