package room

import (
	"crypto/rand"
	"sync"
	"time"
)

// Registry is the exclusive owner of the code -> room mapping. Sessions
// keep only the room code and resolve it here on every operation, so a
// removed room can never be reached through a stale pointer.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	grace time.Duration
}

// NewRegistry creates a registry whose empty rooms survive for grace before
// the sweep reclaims them. Grace 0 means empty rooms are reclaimed as soon
// as Remove or Sweep sees them.
func NewRegistry(grace time.Duration) *Registry {
	return &Registry{rooms: make(map[string]*Room), grace: grace}
}

func (g *Registry) Grace() time.Duration { return g.grace }

// GetOrCreate returns the room for code, creating an empty one on first
// use. created tells the caller whether persisted state should be loaded.
func (g *Registry) GetOrCreate(code string) (rm *Room, created bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rm, ok := g.rooms[code]; ok {
		return rm, false
	}
	rm = New(code)
	g.rooms[code] = rm
	return rm, true
}

func (g *Registry) Get(code string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[code]
}

func (g *Registry) Has(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.rooms[code]
	return ok
}

// Remove drops the room for code if it is still empty at this moment.
// Emptiness is re-checked here, not when the removal was scheduled, so a
// join that raced a pending removal keeps its room. Removing an unknown
// code is a no-op.
func (g *Registry) Remove(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rm, ok := g.rooms[code]
	if !ok {
		return
	}
	if rm.MemberCount() != 0 {
		return
	}
	delete(g.rooms, code)
}

// Sweep removes every room that has been empty for at least the grace
// period and returns how many were reclaimed.
func (g *Registry) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for code, rm := range g.rooms {
		if rm.expiredEmpty(now, g.grace) {
			delete(g.rooms, code)
			removed++
		}
	}
	return removed
}

// Rooms returns a snapshot of all live rooms.
func (g *Registry) Rooms() []*Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		out = append(out, rm)
	}
	return out
}

// Stats reports room and member totals for the health endpoint.
func (g *Registry) Stats() (rooms, members int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, rm := range g.rooms {
		members += rm.MemberCount()
	}
	return len(g.rooms), members
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewCode returns a 6-character shareable room code. Ambiguous characters
// (0/O, 1/I) are left out of the alphabet.
func NewCode() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
