package merge

import "room-sync/internal/models"

// Record is the slice of a synced record the merge cares about: a stable id
// and a millisecond last-write stamp.
type Record interface {
	Key() string
	Version() int64
}

// DeadFunc reports whether a record with the given id and stamp is
// suppressed by a tombstone.
type DeadFunc func(id string, ts int64) bool

// Records merges two collections of the same entity type under
// last-write-wins. For every id in either input the record with the larger
// stamp survives; on an equal stamp the remote (incoming) record wins, which
// keeps a replayed push idempotent. Survivors whose id is tombstoned at or
// after their own stamp are dropped. The result keeps first-seen id order;
// order carries no meaning, collections are sets keyed by id.
func Records[T Record](local, remote []T, dead DeadFunc) []T {
	byID := make(map[string]T, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))

	for _, rec := range local {
		cur, ok := byID[rec.Key()]
		if !ok {
			order = append(order, rec.Key())
			byID[rec.Key()] = rec
			continue
		}
		if rec.Version() > cur.Version() {
			byID[rec.Key()] = rec
		}
	}
	for _, rec := range remote {
		cur, ok := byID[rec.Key()]
		if !ok {
			order = append(order, rec.Key())
			byID[rec.Key()] = rec
			continue
		}
		if rec.Version() >= cur.Version() {
			byID[rec.Key()] = rec
		}
	}

	out := make([]T, 0, len(order))
	for _, id := range order {
		rec := byID[id]
		if dead != nil && dead(id, rec.Version()) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Collections merges remote into local one entity type at a time, honoring
// tombstones in t (which may be nil). Entity types absent from the remote
// payload (nil slice) are left untouched.
func Collections(local, remote models.Collections, t *Tombstones) models.Collections {
	dead := func(et models.EntityType) DeadFunc {
		if t == nil {
			return nil
		}
		return func(id string, ts int64) bool {
			return t.IsDeletedAfter(et, id, ts)
		}
	}
	out := local
	if remote.Customers != nil {
		out.Customers = Records(local.Customers, remote.Customers, dead(models.EntityCustomers))
	}
	if remote.Sales != nil {
		out.Sales = Records(local.Sales, remote.Sales, dead(models.EntitySales))
	}
	if remote.Expenses != nil {
		out.Expenses = Records(local.Expenses, remote.Expenses, dead(models.EntityExpenses))
	}
	return out
}
