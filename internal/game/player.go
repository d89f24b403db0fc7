package game

import (
	"net"
	"sync"
	"time"
)

// Member is a room's view of one participating session: identity, the
// datagram endpoint learned from its first UDP packet, its last-known
// position/rotation, and the spawn slot it was assigned on join.
//
// Mutations come only from the datagram path for the member's own
// session (monotonic endpoint transition, position/rotation updates);
// reads from the broadcast fan-out path are protected by mu but never
// block for long, matching the room's own locking discipline.
type Member struct {
	mu sync.RWMutex

	ID        string
	Name      string
	SpawnSlot int

	endpoint        *net.UDPAddr
	position        Vector3
	rotation        Quaternion
	positionUpdated time.Time
}

// NewMember creates a room member at its assigned spawn slot.
func NewMember(id, name string, spawnSlot int) *Member {
	now := time.Now()
	return &Member{
		ID:              id,
		Name:            name,
		SpawnSlot:       spawnSlot,
		rotation:        Quaternion{W: 1},
		positionUpdated: now,
	}
}

// Endpoint returns the member's learned datagram endpoint, or nil if
// none has been observed yet.
func (m *Member) Endpoint() *net.UDPAddr {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.endpoint
}

// SetEndpoint records the remote address a datagram was received from.
// Endpoint transitions are monotonic: nil -> set, never reversed within
// a session's lifetime.
func (m *Member) SetEndpoint(addr *net.UDPAddr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoint = addr
}

// Position returns the member's last-known position.
func (m *Member) Position() Vector3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position
}

// Rotation returns the member's last-known rotation.
func (m *Member) Rotation() Quaternion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rotation
}

// UpdatePosition records a newly validated position/rotation pair.
func (m *Member) UpdatePosition(pos Vector3, rot Quaternion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
	m.rotation = rot
	m.positionUpdated = time.Now()
}

// PositionUpdatedAt returns when the member's position was last
// validated and recorded, used as the Δt baseline for the next
// movement check.
func (m *Member) PositionUpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positionUpdated
}

// PlayerSummary is the wire-facing view of a member used by
// GET_ROOM_PLAYERS.
type PlayerSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summary returns the wire-facing view of this member.
func (m *Member) Summary() PlayerSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return PlayerSummary{ID: m.ID, Name: m.Name}
}
