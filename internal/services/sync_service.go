package services

import (
	"time"

	"room-sync/internal/logging"
	"room-sync/internal/models"
	"room-sync/internal/room"
)

// Session is one connected device as the coordinator sees it. The room code
// is the single source of truth for membership at the moment an operation
// executes; a join racing a disconnect resolves through it.
type Session interface {
	room.Member
	Room() string
	SetRoom(code string)
}

// Store is the persistence collaborator. It is a durability side channel:
// its failures are logged and never reverse an in-memory merge.
type Store interface {
	LoadRoomState(code string) (models.Collections, error)
	SaveRoomState(code string, data models.Collections) error
	MarkDeleted(code string, et models.EntityType, id string, when int64) error
}

// SyncService is the protocol brain: it applies inbound events to room
// state through the merge engine and fans the consolidated result out to
// the room's sessions.
type SyncService struct {
	registry *room.Registry
	store    Store
	log      *logging.Logger
	tombTTL  time.Duration
	now      func() time.Time
}

func NewSyncService(registry *room.Registry, store Store, log *logging.Logger, tombTTL time.Duration) *SyncService {
	return &SyncService{
		registry: registry,
		store:    store,
		log:      log,
		tombTTL:  tombTTL,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (s *SyncService) SetClock(now func() time.Time) { s.now = now }

func (s *SyncService) Registry() *room.Registry { return s.registry }

// HandleJoin moves sess into the room named by code, creating it on first
// use. The joiner gets the full merged state; its new peers get a
// member-joined notice. Joining the room the session already occupies just
// re-sends the catch-up snapshot.
func (s *SyncService) HandleJoin(sess Session, code, deviceMeta string) {
	if code == "" {
		s.log.Warnf("join without room code from session %s", sess.ID())
		return
	}
	if prev := sess.Room(); prev != "" && prev != code {
		s.leaveRoom(sess, prev)
	}

	rm, created := s.registry.GetOrCreate(code)
	if created && s.store != nil {
		data, err := s.store.LoadRoomState(code)
		if err != nil {
			s.log.Errorf("load room %s: %v", code, err)
		} else {
			rm.Seed(data)
		}
	}

	count := rm.AddMember(sess)
	sess.SetRoom(code)

	data, _, ts := rm.Snapshot()
	s.send(sess, models.NewSync(data, count, ts))
	s.broadcast(rm, models.NewMemberJoined(count), sess.ID())

	if deviceMeta != "" {
		s.log.Infof("session %s (%s) joined room %s, %d member(s)", sess.ID(), deviceMeta, code, count)
	} else {
		s.log.Infof("session %s joined room %s, %d member(s)", sess.ID(), code, count)
	}
}

// HandleUpdate merges a pushed payload into the session's room and
// broadcasts the consolidated state of all three collections to every
// member, the sender included: the sender's echo passes through the
// authoritative merge, so it converges even when its push was superseded.
func (s *SyncService) HandleUpdate(sess Session, in models.Collections) {
	rm := s.joinedRoom(sess)
	if rm == nil {
		return
	}
	snap, count, ts := rm.MergeUpdate(in, s.now().UnixMilli())
	s.broadcast(rm, models.NewSync(snap, count, ts), "")

	if s.store != nil {
		go s.persist(rm.Code, snap)
	}
}

// HandleDelete records a tombstone and strips the record, then tells every
// member which item went away. A delete for an id nobody has is a no-op
// broadcast, not an error: deletions are idempotent.
func (s *SyncService) HandleDelete(sess Session, et models.EntityType, id string, when int64) {
	rm := s.joinedRoom(sess)
	if rm == nil {
		return
	}
	if when == 0 {
		when = s.now().UnixMilli()
	}
	rm.Delete(et, id, when, s.now().UnixMilli())
	s.broadcast(rm, models.NewItemDeleted(et, id), "")

	if s.store != nil {
		code := rm.Code
		go func() {
			if err := s.store.MarkDeleted(code, et, id, when); err != nil {
				s.log.Errorf("mark deleted %s/%s in room %s: %v", et, id, code, err)
			}
		}()
	}
}

// HandleDisconnect removes the session from its room, if it had one.
func (s *SyncService) HandleDisconnect(sess Session) {
	code := sess.Room()
	if code == "" {
		return
	}
	sess.SetRoom("")
	s.leaveRoom(sess, code)
}

// SweepRooms reclaims rooms that stayed empty past the grace period.
func (s *SyncService) SweepRooms() int {
	return s.registry.Sweep(s.now())
}

// CollectTombstones garbage-collects expired tombstones in every room.
func (s *SyncService) CollectTombstones() int {
	now := s.now().UnixMilli()
	removed := 0
	for _, rm := range s.registry.Rooms() {
		removed += rm.GCTombstones(now, s.tombTTL)
	}
	return removed
}

func (s *SyncService) joinedRoom(sess Session) *room.Room {
	code := sess.Room()
	if code == "" {
		s.log.Warnf("dropped event from session %s: not in a room", sess.ID())
		return nil
	}
	rm := s.registry.Get(code)
	if rm == nil {
		s.log.Warnf("dropped event from session %s: room %s is gone", sess.ID(), code)
	}
	return rm
}

func (s *SyncService) leaveRoom(sess Session, code string) {
	rm := s.registry.Get(code)
	if rm == nil {
		return
	}
	count := rm.RemoveMember(sess.ID(), s.now())
	s.broadcast(rm, models.NewMemberLeft(count), "")
	s.log.Infof("session %s left room %s, %d member(s) remain", sess.ID(), code, count)
	if count == 0 && s.registry.Grace() == 0 {
		s.registry.Remove(code)
	}
}

// broadcast sends msg to every member of rm except the one named by skip.
// Failed sends are skipped, not retried; the next sync covers the gap.
func (s *SyncService) broadcast(rm *room.Room, msg any, skip string) {
	for _, m := range rm.Members() {
		if m.ID() == skip {
			continue
		}
		s.send(m, msg)
	}
}

func (s *SyncService) send(m room.Member, msg any) {
	if err := m.Send(msg); err != nil {
		s.log.Debugf("send to session %s failed: %v", m.ID(), err)
	}
}

func (s *SyncService) persist(code string, snap models.Collections) {
	if err := s.store.SaveRoomState(code, snap); err != nil {
		s.log.Errorf("persist room %s: %v", code, err)
	}
}
