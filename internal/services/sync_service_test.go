package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"room-sync/internal/logging"
	"room-sync/internal/models"
	"room-sync/internal/room"
)

type fakeSession struct {
	id       string
	room     string
	failSend bool

	mu   sync.Mutex
	msgs []any
}

func (f *fakeSession) ID() string       { return f.id }
func (f *fakeSession) Room() string     { return f.room }
func (f *fakeSession) SetRoom(c string) { f.room = c }

func (f *fakeSession) Send(msg any) error {
	if f.failSend {
		return errors.New("broken pipe")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSession) ofType(t string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, m := range f.msgs {
		switch v := m.(type) {
		case models.Sync:
			if v.Type == t {
				out = append(out, v)
			}
		case models.MemberJoined:
			if v.Type == t {
				out = append(out, v)
			}
		case models.MemberLeft:
			if v.Type == t {
				out = append(out, v)
			}
		case models.ItemDeleted:
			if v.Type == t {
				out = append(out, v)
			}
		}
	}
	return out
}

func (f *fakeSession) lastSync(t *testing.T) models.Sync {
	t.Helper()
	syncs := f.ofType(models.TypeSync)
	if len(syncs) == 0 {
		t.Fatalf("session %s received no sync message", f.id)
	}
	return syncs[len(syncs)-1].(models.Sync)
}

type fakeStore struct {
	mu       sync.Mutex
	loaded   map[string]models.Collections
	saves    []models.Collections
	deletes  []string
	failSave bool
	done     chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{loaded: make(map[string]models.Collections), done: make(chan string, 16)}
}

func (f *fakeStore) LoadRoomState(code string) (models.Collections, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[code], nil
}

func (f *fakeStore) SaveRoomState(code string, data models.Collections) error {
	f.mu.Lock()
	fail := f.failSave
	if !fail {
		f.saves = append(f.saves, data)
	}
	f.mu.Unlock()
	f.done <- "save"
	if fail {
		return errors.New("disk on fire")
	}
	return nil
}

func (f *fakeStore) MarkDeleted(code string, et models.EntityType, id string, when int64) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, string(et)+"/"+id)
	f.mu.Unlock()
	f.done <- "delete"
	return nil
}

func (f *fakeStore) wait(t *testing.T) string {
	t.Helper()
	select {
	case op := <-f.done:
		return op
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for persistence call")
		return ""
	}
}

func newTestService(grace time.Duration, store Store) *SyncService {
	svc := NewSyncService(room.NewRegistry(grace), store, logging.New("error"), 24*time.Hour)
	base := time.UnixMilli(1_000_000)
	svc.SetClock(func() time.Time { return base })
	return svc
}

func TestJoinEmptyRoomThenPeer(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	y := &fakeSession{id: "y"}

	svc.HandleJoin(x, "R1", "tablet")
	syncMsg := x.lastSync(t)
	if syncMsg.MemberCount != 1 {
		t.Errorf("joiner should see memberCount 1, got %d", syncMsg.MemberCount)
	}
	if len(syncMsg.Data.Customers)+len(syncMsg.Data.Sales)+len(syncMsg.Data.Expenses) != 0 {
		t.Errorf("empty room should sync empty collections, got %+v", syncMsg.Data)
	}
	if got := x.ofType(models.TypeMemberJoined); len(got) != 0 {
		t.Errorf("joiner must not be notified of its own join: %v", got)
	}

	svc.HandleJoin(y, "R1", "")
	if syncMsg := y.lastSync(t); syncMsg.MemberCount != 2 {
		t.Errorf("second joiner should see memberCount 2, got %d", syncMsg.MemberCount)
	}
	joined := x.ofType(models.TypeMemberJoined)
	if len(joined) != 1 || joined[0].(models.MemberJoined).MemberCount != 2 {
		t.Errorf("peer should get member-joined{2}, got %v", joined)
	}
}

func TestUpdateBroadcastIncludesSender(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	y := &fakeSession{id: "y"}
	svc.HandleJoin(x, "R1", "")
	svc.HandleJoin(y, "R1", "")

	svc.HandleUpdate(x, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana", LastUpdated: 100}},
	})

	for _, sess := range []*fakeSession{x, y} {
		syncMsg := sess.lastSync(t)
		if len(syncMsg.Data.Customers) != 1 || syncMsg.Data.Customers[0].Name != "Ana" {
			t.Errorf("session %s: expected Ana in sync, got %+v", sess.id, syncMsg.Data.Customers)
		}
	}
}

func TestStaleUpdateConverges(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	y := &fakeSession{id: "y"}
	svc.HandleJoin(x, "R1", "")
	svc.HandleJoin(y, "R1", "")

	svc.HandleUpdate(x, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana", LastUpdated: 100}},
	})
	svc.HandleUpdate(y, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana Silva", LastUpdated: 50}},
	})

	for _, sess := range []*fakeSession{x, y} {
		syncMsg := sess.lastSync(t)
		if syncMsg.Data.Customers[0].Name != "Ana" {
			t.Errorf("session %s: stale push must lose, got %q", sess.id, syncMsg.Data.Customers[0].Name)
		}
	}
}

func TestDeleteTombstoneAndResurrection(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	y := &fakeSession{id: "y"}
	svc.HandleJoin(x, "R1", "")
	svc.HandleJoin(y, "R1", "")

	svc.HandleUpdate(x, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana", LastUpdated: 100}},
	})
	svc.HandleDelete(x, models.EntityCustomers, "c1", 150)

	for _, sess := range []*fakeSession{x, y} {
		dels := sess.ofType(models.TypeItemDeleted)
		if len(dels) != 1 {
			t.Fatalf("session %s: expected one item-deleted, got %v", sess.id, dels)
		}
		del := dels[0].(models.ItemDeleted)
		if del.EntityType != models.EntityCustomers || del.ID != "c1" {
			t.Errorf("session %s: wrong item-deleted payload: %+v", sess.id, del)
		}
	}

	// Stale re-push is suppressed by the tombstone.
	svc.HandleUpdate(y, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana", LastUpdated: 120}},
	})
	if syncMsg := x.lastSync(t); len(syncMsg.Data.Customers) != 0 {
		t.Errorf("stale re-push should stay deleted, got %+v", syncMsg.Data.Customers)
	}

	// A strictly newer write resurrects.
	svc.HandleUpdate(y, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana v2", LastUpdated: 200}},
	})
	if syncMsg := x.lastSync(t); len(syncMsg.Data.Customers) != 1 {
		t.Errorf("newer write should resurrect, got %+v", syncMsg.Data.Customers)
	}
}

func TestDisconnectNotifiesAndRemovesEmptyRoom(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	y := &fakeSession{id: "y"}
	svc.HandleJoin(x, "R1", "")
	svc.HandleJoin(y, "R1", "")

	svc.HandleDisconnect(y)
	left := x.ofType(models.TypeMemberLeft)
	if len(left) != 1 || left[0].(models.MemberLeft).MemberCount != 1 {
		t.Fatalf("expected member-left{1}, got %v", left)
	}
	if y.Room() != "" {
		t.Errorf("disconnected session still points at room %q", y.Room())
	}

	svc.HandleDisconnect(x)
	if svc.Registry().Has("R1") {
		t.Fatal("empty room should be removed immediately with zero grace")
	}

	// Disconnecting twice is harmless.
	svc.HandleDisconnect(x)
}

func TestDisconnectWithGraceKeepsRoom(t *testing.T) {
	svc := newTestService(time.Hour, nil)
	x := &fakeSession{id: "x"}
	svc.HandleJoin(x, "R1", "")
	svc.HandleUpdate(x, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana", LastUpdated: 100}},
	})
	svc.HandleDisconnect(x)

	if !svc.Registry().Has("R1") {
		t.Fatal("room should survive the grace period")
	}

	// Rejoining inside the grace window finds the state intact.
	svc.HandleJoin(x, "R1", "")
	if syncMsg := x.lastSync(t); len(syncMsg.Data.Customers) != 1 {
		t.Fatalf("rejoin should catch up on kept state, got %+v", syncMsg.Data)
	}
}

func TestJoinSwitchesRooms(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	y := &fakeSession{id: "y"}
	svc.HandleJoin(x, "R1", "")
	svc.HandleJoin(y, "R1", "")

	svc.HandleJoin(x, "R2", "")
	if x.Room() != "R2" {
		t.Fatalf("expected room R2, got %q", x.Room())
	}
	left := y.ofType(models.TypeMemberLeft)
	if len(left) != 1 || left[0].(models.MemberLeft).MemberCount != 1 {
		t.Fatalf("old peer should get member-left{1}, got %v", left)
	}
	if syncMsg := x.lastSync(t); syncMsg.MemberCount != 1 {
		t.Fatalf("expected fresh sync for R2 with memberCount 1, got %+v", syncMsg)
	}
}

func TestUpdateWithoutRoomDropped(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	svc.HandleUpdate(x, models.Collections{Customers: []models.Customer{{ID: "c1", LastUpdated: 1}}})
	svc.HandleDelete(x, models.EntityCustomers, "c1", 1)
	if len(x.msgs) != 0 {
		t.Fatalf("events before join must be dropped, got %v", x.msgs)
	}
}

func TestJoinLoadsPersistedState(t *testing.T) {
	store := newFakeStore()
	store.loaded["R1"] = models.Collections{
		Sales: []models.Sale{{ID: "s1", Amount: 12.5, LastUpdated: 100}},
	}
	svc := newTestService(0, store)
	x := &fakeSession{id: "x"}

	svc.HandleJoin(x, "R1", "")
	syncMsg := x.lastSync(t)
	if len(syncMsg.Data.Sales) != 1 || syncMsg.Data.Sales[0].ID != "s1" {
		t.Fatalf("expected persisted sale in catch-up, got %+v", syncMsg.Data)
	}
}

func TestUpdatePersistsOutsideTheHotPath(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(0, store)
	x := &fakeSession{id: "x"}
	svc.HandleJoin(x, "R1", "")

	svc.HandleUpdate(x, models.Collections{
		Expenses: []models.Expense{{ID: "e1", Description: "flour", Amount: 30, LastUpdated: 100}},
	})
	store.wait(t)
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.saves) != 1 || len(store.saves[0].Expenses) != 1 {
		t.Fatalf("expected one save with the expense, got %+v", store.saves)
	}
}

func TestDeleteMarksPersistedTombstone(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(0, store)
	x := &fakeSession{id: "x"}
	svc.HandleJoin(x, "R1", "")

	svc.HandleDelete(x, models.EntitySales, "s9", 500)
	store.wait(t)
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.deletes) != 1 || store.deletes[0] != "sales/s9" {
		t.Fatalf("expected sales/s9 marked deleted, got %v", store.deletes)
	}
}

func TestPersistenceFailureDoesNotTouchState(t *testing.T) {
	store := newFakeStore()
	store.failSave = true
	svc := newTestService(0, store)
	x := &fakeSession{id: "x"}
	svc.HandleJoin(x, "R1", "")

	svc.HandleUpdate(x, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana", LastUpdated: 100}},
	})
	store.wait(t)

	data, _, _ := svc.Registry().Get("R1").Snapshot()
	if len(data.Customers) != 1 {
		t.Fatal("failed persistence must not reverse the in-memory merge")
	}
}

func TestBrokenPeerIsSkipped(t *testing.T) {
	svc := newTestService(0, nil)
	x := &fakeSession{id: "x"}
	y := &fakeSession{id: "y", failSend: true}
	svc.HandleJoin(x, "R1", "")
	svc.HandleJoin(y, "R1", "")

	svc.HandleUpdate(x, models.Collections{
		Customers: []models.Customer{{ID: "c1", Name: "Ana", LastUpdated: 100}},
	})
	if syncMsg := x.lastSync(t); len(syncMsg.Data.Customers) != 1 {
		t.Fatal("healthy peer should still receive the broadcast")
	}
}

func TestSweepRoomsUsesServiceClock(t *testing.T) {
	svc := newTestService(time.Hour, nil)
	x := &fakeSession{id: "x"}
	svc.HandleJoin(x, "R1", "")
	svc.HandleDisconnect(x)

	if n := svc.SweepRooms(); n != 0 {
		t.Fatalf("sweep before grace expiry removed %d room(s)", n)
	}
	later := time.UnixMilli(1_000_000).Add(2 * time.Hour)
	svc.SetClock(func() time.Time { return later })
	if n := svc.SweepRooms(); n != 1 {
		t.Fatalf("sweep after grace expiry should reclaim the room, got %d", n)
	}
}

func TestCollectTombstones(t *testing.T) {
	svc := newTestService(time.Hour, nil)
	x := &fakeSession{id: "x"}
	svc.HandleJoin(x, "R1", "")

	now := time.UnixMilli(1_000_000)
	svc.HandleDelete(x, models.EntityCustomers, "old", now.Add(-25*time.Hour).UnixMilli())
	svc.HandleDelete(x, models.EntityCustomers, "fresh", now.Add(-time.Minute).UnixMilli())

	if n := svc.CollectTombstones(); n != 1 {
		t.Fatalf("expected 1 collected tombstone, got %d", n)
	}
}
