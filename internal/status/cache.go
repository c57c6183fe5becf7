// Package status retains the most recent agent status so that late consumers
// can read current state without waiting for the next push.
package status

import (
	"sync/atomic"
	"time"

	"github.com/rickgao/agentlink/internal/protocol"
)

// Snapshot is the latest status frame plus the local time it arrived.
type Snapshot struct {
	Status     protocol.Status `json:"status"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Empty is returned by Read before any status has been recorded.
var Empty = Snapshot{}

// IsEmpty reports whether s is the Empty sentinel.
func (s Snapshot) IsEmpty() bool {
	return s.ReceivedAt.IsZero()
}

// Cache holds only the latest snapshot; no history is kept.
type Cache struct {
	latest atomic.Pointer[Snapshot]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Record replaces the cached snapshot.
func (c *Cache) Record(s protocol.Status) Snapshot {
	snap := &Snapshot{
		Status:     s.Clone(),
		ReceivedAt: time.Now(),
	}
	c.latest.Store(snap)
	return snap.clone()
}

// Read returns the latest snapshot, or Empty.
func (c *Cache) Read() Snapshot {
	if snap := c.latest.Load(); snap != nil {
		return snap.clone()
	}
	return Empty
}

// clone copies the snapshot so callers never share the cached pointees.
func (s *Snapshot) clone() Snapshot {
	return Snapshot{Status: s.Status.Clone(), ReceivedAt: s.ReceivedAt}
}
