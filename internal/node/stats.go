package node

import (
	"sync/atomic"
	"time"
)

// Stats tracks per-node counters surfaced through QueryGraph (spec §3
// NodeInstance, §8 scenario 1).
type Stats struct {
	packetsIn    atomic.Uint64
	packetsOut   atomic.Uint64
	errors       atomic.Uint64
	lastActivity atomic.Int64 // unix nanos
}

// Snapshot is an immutable copy of Stats for reporting.
type Snapshot struct {
	PacketsIn    uint64
	PacketsOut   uint64
	Errors       uint64
	LastActivity time.Time
}

func (s *Stats) recordIn() {
	s.packetsIn.Add(1)
	s.touch()
}

func (s *Stats) recordOut(n int) {
	if n > 0 {
		s.packetsOut.Add(uint64(n))
	}
	s.touch()
}

func (s *Stats) recordError() { s.errors.Add(1) }

func (s *Stats) touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	ns := s.lastActivity.Load()
	var t time.Time
	if ns != 0 {
		t = time.Unix(0, ns)
	}
	return Snapshot{
		PacketsIn:    s.packetsIn.Load(),
		PacketsOut:   s.packetsOut.Load(),
		Errors:       s.errors.Load(),
		LastActivity: t,
	}
}
