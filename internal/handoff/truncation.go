package handoff

import (
	"github.com/google/uuid"
	"github.com/pairdb/hintmgr/internal/codec"
	"github.com/pairdb/hintmgr/internal/model"
)

// truncationCache memoizes codec.TruncationTracker lookups across a single
// page, so each column family's truncation time is fetched from the tracker
// at most once per drainPage call instead of once per row.
type truncationCache struct {
	tracker codec.TruncationTracker
	times   map[uuid.UUID]int64
	absent  map[uuid.UUID]bool
}

func newTruncationCache(tracker codec.TruncationTracker) *truncationCache {
	return &truncationCache{tracker: tracker, times: make(map[uuid.UUID]int64), absent: make(map[uuid.UUID]bool)}
}

// snapshot returns the truncatedAt map codec.StripTruncated expects,
// populated only for the column families m references. A cache with no
// tracker wired returns nil, so StripTruncated strips nothing.
func (c *truncationCache) snapshot(m *model.Mutation) map[string]int64 {
	if c.tracker == nil {
		return nil
	}
	out := make(map[string]int64, len(m.ColumnFamilies))
	for _, cf := range m.ColumnFamilies {
		if c.absent[cf.ID] {
			continue
		}
		ts, ok := c.times[cf.ID]
		if !ok {
			ts, ok = c.tracker.TruncatedAt(cf.ID)
			if !ok {
				c.absent[cf.ID] = true
				continue
			}
			c.times[cf.ID] = ts
		}
		out[cf.ID.String()] = ts
	}
	return out
}
