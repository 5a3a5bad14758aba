package pool

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of one source's pool, modeled on
// the teacher's PoolStats shape, generalized from a single SQL
// connection pool to one named connection source.
type Stats struct {
	Source                string
	ActiveConnections     int32
	IdleConnections       int32
	TotalConnections      int32
	ConnectionsCreated    int64
	ConnectionsDestroyed  int64
	ConnectionWaitTime    time.Duration
	AcquireCount          int64
	AcquireErrors         int64
	ValidationFailures    int64
}

// sourceMetrics accumulates counters for one named source.
type sourceMetrics struct {
	active               atomic.Int32
	idle                 atomic.Int32
	created              atomic.Int64
	destroyed            atomic.Int64
	connectionWaitTimeNs atomic.Int64
	acquireCount         atomic.Int64
	acquireErrors        atomic.Int64
	validationFailures   atomic.Int64
}

func newSourceMetrics() *sourceMetrics {
	return &sourceMetrics{}
}

func (m *sourceMetrics) recordAcquire(wait time.Duration) {
	m.acquireCount.Add(1)
	m.connectionWaitTimeNs.Add(wait.Nanoseconds())
}

func (m *sourceMetrics) recordAcquireError() {
	m.acquireErrors.Add(1)
}

func (m *sourceMetrics) recordCreated() {
	m.created.Add(1)
}

func (m *sourceMetrics) recordDestroyed() {
	m.destroyed.Add(1)
}

func (m *sourceMetrics) recordValidationFailure() {
	m.validationFailures.Add(1)
}

func (m *sourceMetrics) snapshot(name string, active, idle, total int32) Stats {
	return Stats{
		Source:               name,
		ActiveConnections:    active,
		IdleConnections:      idle,
		TotalConnections:     total,
		ConnectionsCreated:   m.created.Load(),
		ConnectionsDestroyed: m.destroyed.Load(),
		ConnectionWaitTime:   time.Duration(m.connectionWaitTimeNs.Load()),
		AcquireCount:         m.acquireCount.Load(),
		AcquireErrors:        m.acquireErrors.Load(),
		ValidationFailures:   m.validationFailures.Load(),
	}
}
