// Package game implements the room model: membership, host election,
// spawn slot assignment, and the position/rotation cache for a game
// room's members.
package game

import (
	"log"
	"sync"

	"github.com/vectorrace/racecore/config"
)

// Room is a race lobby: a set of members, a host, and a fixed spawn
// table. Membership and host transfer are protected by mu; per-member
// position/rotation fields have their own locking (Member.mu) so a
// broadcast fan-out can read positions without holding the room lock.
type Room struct {
	mu sync.RWMutex

	ID   string
	Name string

	members  map[string]*Member // keyed by session id
	order    []string           // join order, for spawn slot assignment and host transfer
	nextSlot int
	hostID   string
	active   bool
}

// Error definitions for room operations.
var (
	ErrRoomFull      = &RoomError{message: "room is full"}
	ErrAlreadyMember = &RoomError{message: "already a member of this room"}
	ErrNotMember     = &RoomError{message: "not a member of this room"}
)

// RoomError represents an error related to room operations.
type RoomError struct {
	message string
}

func (e *RoomError) Error() string {
	return e.message
}

// NewRoom creates an empty room with the given id and display name.
func NewRoom(id, name string) *Room {
	return &Room{
		ID:      id,
		Name:    name,
		members: make(map[string]*Member),
	}
}

// TryAdd adds a member to the room, assigning the next free spawn
// slot. Fails if the room is full (SpawnTableSize slots exhausted) or
// the session is already a member. The first member to join becomes
// host.
func (r *Room) TryAdd(id, name string) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[id]; exists {
		return nil, ErrAlreadyMember
	}
	if r.nextSlot >= config.SpawnTableSize {
		return nil, ErrRoomFull
	}

	m := NewMember(id, name, r.nextSlot)
	r.nextSlot++
	r.members[id] = m
	r.order = append(r.order, id)

	if r.hostID == "" {
		r.hostID = id
	}

	log.Printf("room %s: %s joined (slot %d)", r.ID, name, m.SpawnSlot)
	return m, nil
}

// TryRemove removes a member. If the removed member was host and
// members remain, host transfers to the earliest-joined remaining
// member; if no members remain and the room is inactive, the caller
// is expected to delete the room (see the registry). Spawn slots are
// never reused within a room's lifetime.
func (r *Room) TryRemove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[id]; !exists {
		return
	}
	delete(r.members, id)

	for i, memberID := range r.order {
		if memberID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.hostID == id {
		r.hostID = ""
		for _, memberID := range r.order {
			if _, ok := r.members[memberID]; ok {
				r.hostID = memberID
				break
			}
		}
	}
}

// Contains reports whether id is a current member.
func (r *Room) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// UpdatePosition records a newly validated position/rotation for a
// member. No-op if the member is unknown.
func (r *Room) UpdatePosition(id string, pos Vector3, rot Quaternion) {
	r.mu.RLock()
	m, ok := r.members[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	m.UpdatePosition(pos, rot)
}

// SpawnFor returns the fixed world-space spawn position for a
// member's assigned slot.
func (r *Room) SpawnFor(id string) (Vector3, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return Vector3{}, ErrNotMember
	}
	return spawnTableSlot(m.SpawnSlot), nil
}

// StartGame marks the room active and returns the spawn map for every
// current member, keyed by session id.
func (r *Room) StartGame() map[string]Vector3 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = true
	spawns := make(map[string]Vector3, len(r.members))
	for id, m := range r.members {
		spawns[id] = spawnTableSlot(m.SpawnSlot)
	}
	return spawns
}

// HostID returns the current host's session id, or "" if the room is
// empty.
func (r *Room) HostID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID
}

// IsHost reports whether id is the current host.
func (r *Room) IsHost(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostID == id
}

// IsActive reports whether the room's game has started.
func (r *Room) IsActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// MemberCount returns the current number of members.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// IsEmpty returns true if the room has no members.
func (r *Room) IsEmpty() bool {
	return r.MemberCount() == 0
}

// IsFull reports whether the spawn table is exhausted.
func (r *Room) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextSlot >= config.SpawnTableSize
}

// Member looks up a member by session id.
func (r *Room) Member(id string) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m, ok
}

// Members returns a snapshot slice of all current members, in join
// order. Safe to iterate without holding the room lock.
func (r *Room) Members() []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.order))
	for _, id := range r.order {
		if m, ok := r.members[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// RoomSummary is the wire-facing view of a room used by LIST_ROOMS.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	IsActive    bool   `json:"isActive"`
	HostID      string `json:"hostId"`
}

// Summary builds the room's LIST_ROOMS entry.
func (r *Room) Summary() RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		PlayerCount: len(r.members),
		IsActive:    r.active,
		HostID:      r.hostID,
	}
}

