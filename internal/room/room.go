package room

import (
	"sync"
	"time"

	"room-sync/internal/merge"
	"room-sync/internal/models"
)

// Member is a connected device from the room's point of view: something
// with an identity that can receive one message. Implemented by the ws
// client and by test fakes.
type Member interface {
	ID() string
	Send(msg any) error
}

// Room owns the merged collections and tombstones for one shared code. A
// single mutex serializes every mutation so concurrent pushes cannot
// interleave their read-modify-write of the collections.
type Room struct {
	Code string

	mu         sync.Mutex
	data       models.Collections
	tombs      *merge.Tombstones
	members    map[string]Member
	lastUpdate int64
	emptySince time.Time
}

func New(code string) *Room {
	return &Room{
		Code:    code,
		tombs:   merge.NewTombstones(),
		members: make(map[string]Member),
		// Born empty: a room created but never joined is still subject
		// to the grace-period sweep.
		emptySince: time.Now(),
	}
}

// Seed installs persisted state into a freshly created room. Later seeds
// merge rather than overwrite, so a seed racing a first push loses nothing.
func (r *Room) Seed(data models.Collections) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = merge.Collections(r.data, data, r.tombs)
}

func (r *Room) AddMember(m Member) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID()] = m
	r.emptySince = time.Time{}
	return len(r.members)
}

func (r *Room) RemoveMember(id string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
	if len(r.members) == 0 && r.emptySince.IsZero() {
		r.emptySince = now
	}
	return len(r.members)
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members returns a snapshot of the member set so broadcasts can run
// without holding the room lock.
func (r *Room) Members() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Snapshot returns a deep copy of the merged collections, the member count
// and the last-update stamp in one consistent read.
func (r *Room) Snapshot() (models.Collections, int, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Clone(), len(r.members), r.lastUpdate
}

// MergeUpdate folds an inbound payload into the room under last-write-wins
// and returns the consolidated snapshot to broadcast, with the member count
// and stamp from the same consistent read. now advances the room's
// last-update stamp.
func (r *Room) MergeUpdate(in models.Collections, now int64) (models.Collections, int, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = merge.Collections(r.data, in, r.tombs)
	r.lastUpdate = now
	return r.data.Clone(), len(r.members), r.lastUpdate
}

// Delete records a tombstone stamped when and strips any live record with
// that id. The strip is unconditional: a delete always wins locally, the
// tombstone settles later disputes.
func (r *Room) Delete(et models.EntityType, id string, when, now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tombs.RecordDeletion(et, id, when)
	switch et {
	case models.EntityCustomers:
		r.data.Customers = dropID(r.data.Customers, id)
	case models.EntitySales:
		r.data.Sales = dropID(r.data.Sales, id)
	case models.EntityExpenses:
		r.data.Expenses = dropID(r.data.Expenses, id)
	}
	r.lastUpdate = now
}

func (r *Room) GCTombstones(now int64, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tombs.GC(now, ttl)
}

func (r *Room) TombstoneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tombs.Len()
}

func (r *Room) LastUpdate() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// expiredEmpty reports whether the room has been memberless for at least
// grace. With grace 0 any empty room qualifies.
func (r *Room) expiredEmpty(now time.Time, grace time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) != 0 || r.emptySince.IsZero() {
		return false
	}
	return !now.Before(r.emptySince.Add(grace))
}

func dropID[T merge.Record](recs []T, id string) []T {
	out := recs[:0]
	for _, rec := range recs {
		if rec.Key() != id {
			out = append(out, rec)
		}
	}
	return out
}
