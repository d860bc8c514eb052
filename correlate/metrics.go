package correlate

import "sync/atomic"

type MetricsSnapshot struct {
	Pending    int64
	Registered int64
	Resolved   int64
	Unexpected int64
	Forgotten  int64
	Failed     int64
}

type Metrics struct {
	pending    atomic.Int64
	registered atomic.Int64
	resolved   atomic.Int64
	unexpected atomic.Int64
	forgotten  atomic.Int64
	failed     atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordRegistered() {
	m.registered.Add(1)
	m.pending.Add(1)
}

func (m *Metrics) RecordResolved() {
	m.resolved.Add(1)
	m.pending.Add(-1)
}

func (m *Metrics) RecordForgotten() {
	m.forgotten.Add(1)
	m.pending.Add(-1)
}

func (m *Metrics) RecordFailed(n int) {
	m.failed.Add(int64(n))
	m.pending.Add(-int64(n))
}

func (m *Metrics) RecordUnexpected() {
	m.unexpected.Add(1)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Pending:    m.pending.Load(),
		Registered: m.registered.Load(),
		Resolved:   m.resolved.Load(),
		Unexpected: m.unexpected.Load(),
		Forgotten:  m.forgotten.Load(),
		Failed:     m.failed.Load(),
	}
}
