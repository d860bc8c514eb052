package dispatch

import "sync/atomic"

type MetricsSnapshot struct {
	Submitted int64
	Handled   int64
	Faults    int64
}

type Metrics struct {
	submitted atomic.Int64
	handled   atomic.Int64
	faults    atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordSubmitted() { m.submitted.Add(1) }
func (m *Metrics) RecordHandled()   { m.handled.Add(1) }
func (m *Metrics) RecordFault()     { m.faults.Add(1) }

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Submitted: m.submitted.Load(),
		Handled:   m.handled.Load(),
		Faults:    m.faults.Load(),
	}
}
