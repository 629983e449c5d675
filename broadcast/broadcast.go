// Package broadcast fans values out to any number of subscribers. Publishing
// never blocks: a subscriber whose buffer is full misses the value and the
// drop is counted.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// Subscription receives published values on C until it is closed.
type Subscription[T any] struct {
	hub     *Hub[T]
	channel chan T
	closed  atomic.Int32
	dropped atomic.Int64
}

// C returns the receive channel. It is closed when the subscription or the
// hub is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.channel
}

// Dropped returns how many values this subscriber missed.
func (s *Subscription[T]) Dropped() int64 {
	return s.dropped.Load()
}

// Close detaches the subscription from its hub. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.remove(s)
}

func (s *Subscription[T]) close() {
	if s.closed.CompareAndSwap(0, 1) {
		close(s.channel)
	}
}

// Hub distributes values to subscribers. The zero value is not usable;
// call New.
type Hub[T any] struct {
	mu      sync.RWMutex
	subs    map[*Subscription[T]]struct{}
	closed  bool
	metrics *Metrics
}

// New creates an empty hub.
func New[T any]() *Hub[T] {
	return &Hub[T]{
		subs:    make(map[*Subscription[T]]struct{}),
		metrics: NewMetrics(),
	}
}

// Subscribe registers a subscriber with the given buffer size. Subscribing
// to a closed hub returns a subscription whose channel is already closed.
func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	s := &Subscription[T]{hub: h, channel: make(chan T, max(buffer, 0))}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.subs[s] = struct{}{}
	h.metrics.RecordSubscriber(1)
	return s
}

// Publish offers v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	h.metrics.RecordPublished(1)
	for s := range h.subs {
		select {
		case s.channel <- v:
			h.metrics.RecordDelivered(1)
		default:
			s.dropped.Add(1)
			h.metrics.RecordDropped(1)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Metrics returns the hub's counters.
func (h *Hub[T]) Metrics() *Metrics {
	return h.metrics
}

// Close closes every subscription. Later publishes are discarded.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.metrics.RecordSubscriber(-int64(len(h.subs)))
	for s := range h.subs {
		s.close()
		delete(h.subs, s)
	}
}

func (h *Hub[T]) remove(s *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		h.metrics.RecordSubscriber(-1)
	}
	s.close()
}
