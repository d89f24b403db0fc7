// Package rooms is the server-wide room directory: explicit
// CREATE_ROOM/JOIN_ROOM-driven lookup and lifecycle, not automatic
// matchmaking (there is no "find me any open room" operation here).
package rooms

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vectorrace/racecore/internal/game"
)

// Registry is the set of rooms currently live on a server.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*game.Room
}

// NewRegistry builds an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*game.Room),
	}
}

// Create allocates a new room with a random id and the given display
// name.
func (r *Registry) Create(name string) *game.Room {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	room := game.NewRoom(id, name)
	r.rooms[id] = room
	return room
}

// Get looks up a room by id.
func (r *Registry) Get(id string) (*game.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Remove deletes a room from the registry, e.g. once its last member
// leaves and it was never started.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
}

// RemoveIfEmpty removes the room if it currently has no members.
// Returns true if the room was removed.
func (r *Registry) RemoveIfEmpty(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return false
	}
	if !room.IsEmpty() {
		return false
	}
	delete(r.rooms, id)
	return true
}

// List returns the wire-facing summary for every room, for LIST_ROOMS.
func (r *Registry) List() []game.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]game.RoomSummary, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.Summary())
	}
	return out
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
