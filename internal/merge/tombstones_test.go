package merge

import (
	"testing"
	"time"

	"room-sync/internal/models"
)

func TestTombstonesNeverMoveBackward(t *testing.T) {
	tombs := NewTombstones()
	tombs.RecordDeletion(models.EntitySales, "s1", 200)
	tombs.RecordDeletion(models.EntitySales, "s1", 100)

	when, ok := tombs.DeletedAt(models.EntitySales, "s1")
	if !ok || when != 200 {
		t.Fatalf("expected tombstone to stay at 200, got %d (ok=%v)", when, ok)
	}

	tombs.RecordDeletion(models.EntitySales, "s1", 300)
	if when, _ := tombs.DeletedAt(models.EntitySales, "s1"); when != 300 {
		t.Fatalf("expected tombstone to advance to 300, got %d", when)
	}
}

func TestTombstonesIsDeletedAfterBoundary(t *testing.T) {
	tombs := NewTombstones()
	tombs.RecordDeletion(models.EntityExpenses, "e1", 100)

	if !tombs.IsDeletedAfter(models.EntityExpenses, "e1", 100) {
		t.Error("equal stamp should count as deleted")
	}
	if !tombs.IsDeletedAfter(models.EntityExpenses, "e1", 50) {
		t.Error("older stamp should count as deleted")
	}
	if tombs.IsDeletedAfter(models.EntityExpenses, "e1", 101) {
		t.Error("newer stamp should not count as deleted")
	}
	if tombs.IsDeletedAfter(models.EntityExpenses, "other", 0) {
		t.Error("unknown id should not count as deleted")
	}
	if tombs.IsDeletedAfter(models.EntityCustomers, "e1", 0) {
		t.Error("tombstones must be scoped per entity type")
	}
}

func TestTombstonesGC(t *testing.T) {
	now := time.Now().UnixMilli()
	ttl := 24 * time.Hour
	tombs := NewTombstones()
	tombs.RecordDeletion(models.EntityCustomers, "old", now-(25*time.Hour).Milliseconds())
	tombs.RecordDeletion(models.EntityCustomers, "fresh", now-1000)
	tombs.RecordDeletion(models.EntitySales, "ancient", 1)

	removed := tombs.GC(now, ttl)
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, ok := tombs.DeletedAt(models.EntityCustomers, "old"); ok {
		t.Error("expired tombstone survived GC")
	}
	if _, ok := tombs.DeletedAt(models.EntityCustomers, "fresh"); !ok {
		t.Error("fresh tombstone removed by GC")
	}
	if tombs.Len() != 1 {
		t.Errorf("expected 1 live tombstone, got %d", tombs.Len())
	}

	if removed := tombs.GC(now, ttl); removed != 0 {
		t.Errorf("second GC should remove nothing, got %d", removed)
	}
}
