package broadcast

import "sync/atomic"

type MetricsSnapshot struct {
	Subscribers int64
	Published   int64
	Delivered   int64
	Dropped     int64
}

type Metrics struct {
	subscribers atomic.Int64
	published   atomic.Int64
	delivered   atomic.Int64
	dropped     atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordSubscriber(delta int64) {
	m.subscribers.Add(delta)
}

func (m *Metrics) RecordPublished(delta int64) {
	m.published.Add(delta)
}

func (m *Metrics) RecordDelivered(delta int64) {
	m.delivered.Add(delta)
}

func (m *Metrics) RecordDropped(delta int64) {
	m.dropped.Add(delta)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Subscribers: m.subscribers.Load(),
		Published:   m.published.Load(),
		Delivered:   m.delivered.Load(),
		Dropped:     m.dropped.Load(),
	}
}
