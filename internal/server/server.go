// Package server wires every other component into the running core:
// session and room registries, the TLS control-channel accept loop,
// the UDP datagram loop, and the background heartbeat/rate-limiter
// sweeps.
package server

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vectorrace/racecore/config"
	"github.com/vectorrace/racecore/internal/auth"
	"github.com/vectorrace/racecore/internal/eventlog"
	"github.com/vectorrace/racecore/internal/network"
	"github.com/vectorrace/racecore/internal/rooms"
	"github.com/vectorrace/racecore/internal/security"
	"github.com/vectorrace/racecore/internal/session"
)

// Server owns every process-wide registry and background task.
type Server struct {
	cfg *config.ServerConfig

	tlsConfig *tls.Config

	passwords *auth.Table
	security  *security.Manager
	rooms     *rooms.Registry
	sink      eventlog.Sink

	mu       sync.RWMutex
	sessions map[string]*session.Session

	udpConn  *net.UDPConn
	stopChan chan struct{}
	stopOnce sync.Once
}

// New builds a Server. tlsConfig is the identity to present on the
// control channel; sink may be nil, in which case a default
// log.Logger-backed sink is used.
func New(cfg *config.ServerConfig, tlsConfig *tls.Config, sink eventlog.Sink) *Server {
	if sink == nil {
		sink = eventlog.NewLoggerSink()
	}
	return &Server{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		passwords: auth.NewTable(),
		security:  security.NewManager(security.NewRateLimiter(cfg.ControlRateLimit, cfg.DatagramRateLimit, cfg.RateLimitBurst)),
		rooms:     rooms.NewRegistry(),
		sink:      sink,
		sessions:  make(map[string]*session.Session),
		stopChan:  make(chan struct{}),
	}
}

// ListenAndServe binds the TCP (TLS-wrapped) control listener and the
// UDP datagram socket on the configured addresses, starts the
// background sweeps, and blocks accepting control connections until
// the TCP listener errors or Stop is called.
func (s *Server) ListenAndServe() error {
	controlAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.ControlPort)
	ln, err := tls.Listen("tcp", controlAddr, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", controlAddr, err)
	}
	defer ln.Close()

	datagramAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.DatagramPort)
	udpAddr, err := net.ResolveUDPAddr("udp", datagramAddr)
	if err != nil {
		return fmt.Errorf("server: resolving UDP address %s: %w", datagramAddr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("server: listening on UDP %s: %w", datagramAddr, err)
	}
	s.udpConn = udpConn
	defer udpConn.Close()

	go s.runHeartbeat()
	go s.security.RateLimiter().StartSweeper(s.stopChan)
	go s.runDatagramLoop()

	s.sink.LogServerEvent("info", "listen", fmt.Sprintf("control channel listening on %s, datagram channel on %s", controlAddr, datagramAddr), map[string]any{
		"controlAddr":  controlAddr,
		"datagramAddr": datagramAddr,
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConnection(conn)
	}
}

// Stop signals every background loop to exit and closes the listeners
// that ListenAndServe is blocked on.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (s *Server) addSession(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.security.Forget(id)

	if roomID := sess.RoomID(); roomID != "" {
		s.leaveRoom(sess, roomID)
	}
}

func (s *Server) getSession(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// authenticatedSessions returns a snapshot of every currently
// authenticated session, used by the datagram trial-decryption loop.
func (s *Server) authenticatedSessions() []*session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Authenticated() {
			out = append(out, sess)
		}
	}
	return out
}

func (s *Server) handleConnection(conn net.Conn) {
	id := newSessionID()
	sess := session.New(id, conn)
	s.addSession(sess)
	s.sink.LogConnection(id, "connected")

	go sess.WritePump()

	if err := sess.Send([]byte("CONNECTED|" + id + "\n")); err != nil {
		s.cleanupConnection(sess)
		return
	}

	reader := network.NewLineReader(conn)
	for {
		line, err := reader.ReadLine()
		if len(line) > 0 {
			sess.Touch()
			s.handleLine(sess, line)
		}
		if err != nil {
			break
		}
		if sess.Closed() {
			break
		}
	}

	s.cleanupConnection(sess)
}

func (s *Server) cleanupConnection(sess *session.Session) {
	s.removeSession(sess.ID)
	sess.Close()
	s.sink.LogConnection(sess.ID, "disconnected")
}

func (s *Server) runHeartbeat() {
	ticker := time.NewTicker(config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.reapIdleSessions(now)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Server) reapIdleSessions(now time.Time) {
	s.mu.RLock()
	idle := make([]*session.Session, 0)
	for _, sess := range s.sessions {
		if sess.IdleSince(now) > config.SessionIdleLimit {
			idle = append(idle, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range idle {
		log.Printf("session %s idle timeout", sess.ID)
		s.cleanupConnection(sess)
	}
}
