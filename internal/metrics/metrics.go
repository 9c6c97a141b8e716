// Package metrics defines the counters the image cache and loader report.
package metrics

import "sync/atomic"

// Interface receives cache and loader observations.
type Interface interface {
	IncHit()
	IncMiss()
	IncInsert()
	IncRejected()
	AddEvicted(n int)
	SetBytes(n int64)
	IncFetch()
	IncCoalesced()
}

// Noop discards every observation.
type Noop struct{}

func (Noop) IncHit()          {}
func (Noop) IncMiss()         {}
func (Noop) IncInsert()       {}
func (Noop) IncRejected()     {}
func (Noop) AddEvicted(_ int) {}
func (Noop) SetBytes(_ int64) {}
func (Noop) IncFetch()        {}
func (Noop) IncCoalesced()    {}

// Simple keeps counters in atomics so they can be read from tests and the
// status endpoint.
type Simple struct {
	Hits      atomic.Uint64
	Misses    atomic.Uint64
	Inserts   atomic.Uint64
	Rejected  atomic.Uint64
	Evicted   atomic.Uint64
	Bytes     atomic.Int64
	Fetches   atomic.Uint64
	Coalesced atomic.Uint64
}

func NewSimple() *Simple { return &Simple{} }

func (m *Simple) IncHit()      { m.Hits.Add(1) }
func (m *Simple) IncMiss()     { m.Misses.Add(1) }
func (m *Simple) IncInsert()   { m.Inserts.Add(1) }
func (m *Simple) IncRejected() { m.Rejected.Add(1) }

func (m *Simple) AddEvicted(n int) {
	if n > 0 {
		m.Evicted.Add(uint64(n))
	}
}

func (m *Simple) SetBytes(n int64) {
	if n >= 0 {
		m.Bytes.Store(n)
	}
}

func (m *Simple) IncFetch()     { m.Fetches.Add(1) }
func (m *Simple) IncCoalesced() { m.Coalesced.Add(1) }

// Snapshot is a point-in-time copy of Simple's counters.
type Snapshot struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Inserts   uint64 `json:"inserts"`
	Rejected  uint64 `json:"rejected"`
	Evicted   uint64 `json:"evicted"`
	Bytes     int64  `json:"bytes"`
	Fetches   uint64 `json:"fetches"`
	Coalesced uint64 `json:"coalesced"`
}

func (m *Simple) Snapshot() Snapshot {
	return Snapshot{
		Hits:      m.Hits.Load(),
		Misses:    m.Misses.Load(),
		Inserts:   m.Inserts.Load(),
		Rejected:  m.Rejected.Load(),
		Evicted:   m.Evicted.Load(),
		Bytes:     m.Bytes.Load(),
		Fetches:   m.Fetches.Load(),
		Coalesced: m.Coalesced.Load(),
	}
}
