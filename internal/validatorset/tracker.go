package validatorset

import (
	"sync"
	"time"

	"github.com/gxchain/gxcd/pkg/types"
)

// LivenessStats holds in-memory liveness statistics for a single validator.
// Stats reset on node restart — they inform monitoring/RPC only and never
// affect consensus.
type LivenessStats struct {
	Address       types.Address
	LastHeartbeat time.Time
	LastBlock     time.Time
	BlockCount    uint64
	MissedCount   uint64
}

// Tracker tracks validator liveness via heartbeats and block production.
type Tracker struct {
	mu                sync.RWMutex
	stats             map[types.Address]*LivenessStats
	heartbeatInterval time.Duration
}

// NewTracker creates a tracker with the expected heartbeat interval.
func NewTracker(heartbeatInterval time.Duration) *Tracker {
	return &Tracker{
		stats:             make(map[types.Address]*LivenessStats),
		heartbeatInterval: heartbeatInterval,
	}
}

// RecordHeartbeat records a heartbeat from the given validator.
func (t *Tracker) RecordHeartbeat(addr types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.getOrCreate(addr).LastHeartbeat = time.Now()
}

// RecordBlock records that a validator produced a block.
func (t *Tracker) RecordBlock(addr types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.getOrCreate(addr)
	s.LastBlock = time.Now()
	s.BlockCount++
}

// RecordMiss records that a validator was selected but did not produce in time.
func (t *Tracker) RecordMiss(addr types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.getOrCreate(addr).MissedCount++
}

// IsOnline reports whether the validator's last heartbeat is within 2x the
// expected interval.
func (t *Tracker) IsOnline(addr types.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.stats[addr]
	if !ok || s.LastHeartbeat.IsZero() {
		return false
	}
	return time.Since(s.LastHeartbeat) <= 2*t.heartbeatInterval
}

// GetStats returns a copy of stats for a specific validator, or nil if untracked.
func (t *Tracker) GetStats(addr types.Address) *LivenessStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.stats[addr]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// GetAllStats returns copies of all tracked validator stats.
func (t *Tracker) GetAllStats() []*LivenessStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*LivenessStats, 0, len(t.stats))
	for _, s := range t.stats {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

func (t *Tracker) getOrCreate(addr types.Address) *LivenessStats {
	s, ok := t.stats[addr]
	if !ok {
		s = &LivenessStats{Address: addr}
		t.stats[addr] = s
	}
	return s
}
