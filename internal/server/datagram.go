package server

import (
	"encoding/json"
	"net"
	"time"

	"github.com/vectorrace/racecore/config"
	"github.com/vectorrace/racecore/internal/game"
	"github.com/vectorrace/racecore/internal/netcrypto"
	"github.com/vectorrace/racecore/internal/network"
	"github.com/vectorrace/racecore/internal/security"
	"github.com/vectorrace/racecore/internal/session"
)

const maxDatagramSize = 2048

// runDatagramLoop reads UDP packets until the server stops.
func (s *Server) runDatagramLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				continue
			}
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])
		go s.handleDatagram(packet, addr)
	}
}

// handleDatagram implements the datagram path: decide encrypted vs.
// legacy plaintext, identify the sender, validate, and dispatch.
func (s *Server) handleDatagram(packet []byte, addr *net.UDPAddr) {
	plaintext, sender, ok := s.decodeDatagram(packet)
	if !ok {
		return
	}

	var env struct {
		Command   string `json:"command"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return
	}
	if env.SessionID != sender.ID {
		return
	}

	sender.Touch()
	sender.SetUDPEndpoint(addr)

	switch env.Command {
	case network.CmdUpdate:
		s.handleUpdateDatagram(sender, plaintext)
	case network.CmdInput:
		s.handleInputDatagram(sender, plaintext)
	}
}

// decodeDatagram returns the recovered plaintext and its claimed
// sender. Encrypted packets are identified by iterating every
// authenticated session's cipher until one decrypts the frame into
// valid UTF-8 JSON; legacy plaintext is accepted as-is from any
// session whose id matches the payload's sessionId field (checked by
// the caller).
func (s *Server) decodeDatagram(packet []byte) ([]byte, *session.Session, bool) {
	if netcrypto.LooksEncrypted(packet) {
		for _, sender := range s.authenticatedSessions() {
			cipher := sender.Cipher()
			if cipher == nil {
				continue
			}
			plaintext, err := cipher.DecryptRaw(packet)
			if err != nil {
				continue
			}
			if !json.Valid(plaintext) {
				continue
			}
			return plaintext, sender, true
		}
		return nil, nil, false
	}

	var env struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(packet, &env); err != nil {
		return nil, nil, false
	}
	sender, ok := s.getSession(env.SessionID)
	if !ok {
		return nil, nil, false
	}
	return packet, sender, true
}

// logViolation emits the correctly-named, correctly-severitied
// security event for a DecisionFlag/DecisionKick outcome: C2 rejections
// are RateLimitExceeded (severity 2), C3 rejections are
// PacketValidationFailure (severity 3).
func (s *Server) logViolation(sessionID string, reason security.Reason, detail string) {
	switch reason {
	case security.ReasonRateLimit:
		s.sink.LogSecurity(sessionID, "RateLimitExceeded", detail, config.SeverityRateLimitExceeded)
	case security.ReasonValidation:
		s.sink.LogSecurity(sessionID, "PacketValidationFailure", detail, config.SeverityPacketValidationFailure)
	}
}

func (s *Server) handleUpdateDatagram(sender *session.Session, plaintext []byte) {
	var payload network.UpdatePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return
	}

	roomID := sender.RoomID()
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	member, ok := room.Member(sender.ID)
	if !ok {
		return
	}

	now := time.Now()
	prevPos := member.Position()
	prevRot := member.Rotation()

	decision, reason := s.security.CheckMovement(sender.ID, security.MovementCheck{
		Previous:    game.Vector3{X: prevPos.X, Y: prevPos.Y, Z: prevPos.Z},
		PreviousRot: game.Quaternion{X: prevRot.X, Y: prevRot.Y, Z: prevRot.Z, W: prevRot.W},
		PreviousAt:  member.PositionUpdatedAt(),
		Next:        game.Vector3{X: payload.Position.X, Y: payload.Position.Y, Z: payload.Position.Z},
		NextRot:     game.Quaternion{X: payload.Rotation.X, Y: payload.Rotation.Y, Z: payload.Rotation.Z, W: payload.Rotation.W},
		Now:         now,
	})

	switch decision {
	case security.DecisionDrop:
		return
	case security.DecisionKick:
		s.logViolation(sender.ID, reason, "movement rejected")
		s.sink.LogSecurity(sender.ID, "PlayerKicked", "movement violation threshold reached", config.SeverityPlayerKicked)
		s.cleanupConnection(sender)
		return
	case security.DecisionFlag:
		s.logViolation(sender.ID, reason, "movement rejected")
	}

	room.UpdatePosition(sender.ID, game.Vector3{X: payload.Position.X, Y: payload.Position.Y, Z: payload.Position.Z},
		game.Quaternion{X: payload.Rotation.X, Y: payload.Rotation.Y, Z: payload.Rotation.Z, W: payload.Rotation.W})

	s.fanOutDatagram(room, sender.ID, plaintext)
}

func (s *Server) handleInputDatagram(sender *session.Session, plaintext []byte) {
	var payload network.InputPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return
	}

	room, ok := s.rooms.Get(payload.RoomID)
	if !ok {
		return
	}

	now := time.Now()
	var ts time.Time
	if payload.Input.Timestamp != 0 {
		ts = time.UnixMilli(payload.Input.Timestamp)
	}
	decision, reason := s.security.CheckInput(sender.ID, security.InputCheck{
		Steering:  payload.Input.Steering,
		Throttle:  payload.Input.Throttle,
		Brake:     payload.Input.Brake,
		Timestamp: ts,
		Now:       now,
	})

	switch decision {
	case security.DecisionDrop:
		return
	case security.DecisionKick:
		s.logViolation(sender.ID, reason, "input rejected")
		s.sink.LogSecurity(sender.ID, "PlayerKicked", "input violation threshold reached", config.SeverityPlayerKicked)
		s.cleanupConnection(sender)
		return
	case security.DecisionFlag:
		s.logViolation(sender.ID, reason, "input rejected")
	}

	s.fanOutDatagram(room, sender.ID, plaintext)
}

// fanOutDatagram re-encrypts plaintext per recipient (or forwards
// plaintext if the recipient is unauthenticated) and sends it to
// every other room member's learned datagram endpoint. Recipients
// without a known endpoint are skipped.
func (s *Server) fanOutDatagram(room *game.Room, senderID string, plaintext []byte) {
	for _, m := range room.Members() {
		if m.ID == senderID {
			continue
		}
		recipientSess, ok := s.getSession(m.ID)
		if !ok {
			continue
		}
		endpoint := recipientSess.UDPEndpoint()
		if endpoint == nil {
			continue
		}

		var outbound []byte
		if recipientSess.Authenticated() {
			cipher := recipientSess.Cipher()
			if cipher == nil {
				continue
			}
			frame, err := cipher.EncryptRaw(plaintext)
			if err != nil {
				continue
			}
			outbound = frame
		} else {
			outbound = plaintext
		}

		_, _ = s.udpConn.WriteToUDP(outbound, endpoint)
	}
}
