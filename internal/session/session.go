// Package session owns one control-channel connection end to end: its
// state machine, its non-blocking write queue, and the fields that
// carry it from acceptance through authentication, room membership,
// and close.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vectorrace/racecore/internal/netcrypto"
)

// State is the session's position in the control-channel lifecycle.
type State int32

const (
	StateConnected State = iota
	StateAuthenticated
	StateInRoom
	StateInGame
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateAuthenticated:
		return "Authenticated"
	case StateInRoom:
		return "InRoom"
	case StateInGame:
		return "InGame"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

const sendQueueSize = 256

// Session is one client's control-channel connection. State
// transitions are monotonic and read lock-free via atomic.Int32; the
// handful of fields that change more than once (name, room id,
// cipher, endpoint, last-activity) are behind mu and are written only
// by this session's own owning goroutine, matching the core's
// single-writer discipline.
type Session struct {
	ID   string
	conn net.Conn

	state atomic.Int32

	mu           sync.Mutex
	name         string
	authed       bool
	currentRoom  string
	cipher       *netcrypto.SessionCipher
	udpEndpoint  *net.UDPAddr
	lastActivity time.Time

	sendCh    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// New builds a Session wrapping an accepted connection. The caller is
// responsible for starting the write pump goroutine.
func New(id string, conn net.Conn) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		sendCh:       make(chan []byte, sendQueueSize),
		closeCh:      make(chan struct{}),
		lastActivity: time.Now(),
	}
	s.state.Store(int32(StateConnected))
	return s
}

// Conn returns the underlying connection.
func (s *Session) Conn() net.Conn { return s.conn }

// State returns the session's current state.
func (s *Session) State() State { return State(s.state.Load()) }

// SetState advances the session's state.
func (s *Session) SetState(state State) { s.state.Store(int32(state)) }

// Name returns the session's claimed display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName records the session's display name.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// Authenticated reports whether NAME/AUTHENTICATE succeeded with a
// password.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

// SetAuthenticated marks the session authenticated and instantiates
// its datagram cipher, keyed by the session's own id.
func (s *Session) SetAuthenticated() error {
	cipher, err := netcrypto.NewSessionCipher(s.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.authed = true
	s.cipher = cipher
	s.mu.Unlock()
	return nil
}

// Cipher returns the session's datagram cipher, or nil if the session
// hasn't authenticated yet.
func (s *Session) Cipher() *netcrypto.SessionCipher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cipher
}

// RoomID returns the room the session currently belongs to, or "" if
// none.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRoom
}

// SetRoomID records which room the session belongs to.
func (s *Session) SetRoomID(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentRoom = roomID
}

// UDPEndpoint returns the datagram endpoint learned from this
// session's first UDP packet, or nil if none has arrived yet.
func (s *Session) UDPEndpoint() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpEndpoint
}

// SetUDPEndpoint records the remote address a datagram was received
// from.
func (s *Session) SetUDPEndpoint(addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.udpEndpoint = addr
}

// Touch records activity now, resetting the idle timer the heartbeat
// sweep checks.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// IdleSince returns how long it has been since the session's last
// recorded activity, as of now.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Send queues data for asynchronous delivery on the write pump.
// Non-blocking: if the queue is full the session is closed, matching
// the "slow client gets disconnected" policy a full send buffer
// implies.
func (s *Session) Send(data []byte) error {
	select {
	case s.sendCh <- data:
		return nil
	case <-s.closeCh:
		return net.ErrClosed
	default:
		s.Close()
		return net.ErrClosed
	}
}

// WritePump drains queued lines to the connection until the session
// closes. Run it in its own goroutine per session.
func (s *Session) WritePump() {
	for {
		select {
		case data := <-s.sendCh:
			if _, err := s.conn.Write(data); err != nil {
				s.Close()
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// Close closes the underlying connection and stops the write pump.
// Safe to call multiple times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.closeCh)
	})
	return s.conn.Close()
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	return s.State() == StateClosed
}
