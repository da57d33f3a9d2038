package merge

import (
	"time"

	"room-sync/internal/models"
)

// Tombstones remembers deletions per entity type so that stale copies of a
// deleted record cannot be re-inserted by a lagging device. Not safe for
// concurrent use on its own; the owning room's lock serializes access.
type Tombstones struct {
	deleted map[models.EntityType]map[string]int64
}

func NewTombstones() *Tombstones {
	return &Tombstones{deleted: make(map[models.EntityType]map[string]int64)}
}

// RecordDeletion stores the deletion stamp for id. Tombstones never move
// backward: an earlier stamp for an already-deleted id is ignored.
func (t *Tombstones) RecordDeletion(et models.EntityType, id string, when int64) {
	m, ok := t.deleted[et]
	if !ok {
		m = make(map[string]int64)
		t.deleted[et] = m
	}
	if cur, ok := m[id]; !ok || when > cur {
		m[id] = when
	}
}

// DeletedAt returns the deletion stamp for id, if any.
func (t *Tombstones) DeletedAt(et models.EntityType, id string) (int64, bool) {
	ts, ok := t.deleted[et][id]
	return ts, ok
}

// IsDeletedAfter reports whether id carries a tombstone stamped at or after
// ts. A record written strictly after its tombstone resurrects past it.
func (t *Tombstones) IsDeletedAfter(et models.EntityType, id string, ts int64) bool {
	when, ok := t.deleted[et][id]
	return ok && when >= ts
}

// GC drops tombstones stamped more than ttl before now (a millisecond
// stamp) and returns how many were removed.
func (t *Tombstones) GC(now int64, ttl time.Duration) int {
	cutoff := now - ttl.Milliseconds()
	removed := 0
	for et, m := range t.deleted {
		for id, when := range m {
			if when < cutoff {
				delete(m, id)
				removed++
			}
		}
		if len(m) == 0 {
			delete(t.deleted, et)
		}
	}
	return removed
}

// Len reports the number of live tombstones across all entity types.
func (t *Tombstones) Len() int {
	n := 0
	for _, m := range t.deleted {
		n += len(m)
	}
	return n
}
