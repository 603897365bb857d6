// Package metrics holds the engine's in-process counters. Counters are
// plain atomics so the hot verification path pays one increment, no locks
// and no allocation.
package metrics

import "sync/atomic"

// ID identifies one counter.
type ID uint16

const (
	VerifyOK ID = iota
	VerifyInvalid
	VerifyIntegrityFailure
	IssueOK
	IssueQuotaRejected
	RevokeOK
	RateLimitDenied
	RateLimitFailOpen
	AliasFallbackScan
	LazyEviction
	SessionPruned

	idCount
)

// Metrics is a fixed-size set of atomic counters. A nil *Metrics is a
// valid no-op receiver so callers never need nil checks.
type Metrics struct {
	counters [idCount]atomic.Uint64
}

// New returns an enabled metrics set.
func New() *Metrics {
	return &Metrics{}
}

// Inc increments one counter.
func (m *Metrics) Inc(id ID) {
	if m == nil || id >= idCount {
		return
	}
	m.counters[id].Add(1)
}

// Get returns the current value of one counter.
func (m *Metrics) Get(id ID) uint64 {
	if m == nil || id >= idCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() map[ID]uint64 {
	out := make(map[ID]uint64, idCount)
	if m == nil {
		return out
	}
	for i := ID(0); i < idCount; i++ {
		out[i] = m.counters[i].Load()
	}
	return out
}
