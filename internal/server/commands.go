package server

import (
	"fmt"

	"github.com/vectorrace/racecore/internal/game"
	"github.com/vectorrace/racecore/internal/network"
	"github.com/vectorrace/racecore/internal/session"
)

// commandsBeforeAuth are allowed in the Connected state without the
// authentication gate.
var commandsBeforeAuth = map[string]bool{
	network.CmdName:         true,
	network.CmdAuthenticate: true,
	network.CmdPing:         true,
	network.CmdBye:          true,
	network.CmdPlayerInfo:   true,
	network.CmdListRooms:    true,
}

func (s *Server) handleLine(sess *session.Session, line []byte) {
	cmd, err := network.PeekCommand(line)
	if err != nil {
		s.reply(sess, network.ErrorReply{Command: network.RespError, Message: "Invalid JSON format"})
		return
	}

	if !commandsBeforeAuth[cmd] && !sess.Authenticated() {
		s.reply(sess, network.ErrorReply{Command: network.RespError, Message: clientMessage(ErrAuthRequired)})
		return
	}

	switch cmd {
	case network.CmdName:
		s.handleName(sess, line)
	case network.CmdAuthenticate:
		s.handleAuthenticate(sess, line)
	case network.CmdCreateRoom:
		s.handleCreateRoom(sess, line)
	case network.CmdJoinRoom:
		s.handleJoinRoom(sess, line)
	case network.CmdLeaveRoom:
		s.handleLeaveRoom(sess)
	case network.CmdStartGame:
		s.handleStartGame(sess)
	case network.CmdListRooms:
		s.handleListRooms(sess)
	case network.CmdGetRoomPlayers:
		s.handleGetRoomPlayers(sess)
	case network.CmdRelayMessage:
		s.handleRelayMessage(sess, line)
	case network.CmdPlayerInfo:
		s.handlePlayerInfo(sess)
	case network.CmdPing:
		s.reply(sess, network.Pong{Command: network.RespPong})
	case network.CmdBye:
		s.handleBye(sess)
	default:
		s.reply(sess, network.UnknownCommandReply{Command: network.RespUnknownCommand, OriginalCommand: cmd})
	}
}

func (s *Server) reply(sess *session.Session, v any) {
	data, err := network.EncodeLine(v)
	if err != nil {
		return
	}
	_ = sess.Send(data)
}

func (s *Server) replyError(sess *session.Session, err error) {
	s.reply(sess, network.ErrorReply{Command: network.RespError, Message: clientMessage(err)})
}

func (s *Server) handleName(sess *session.Session, line []byte) {
	var req network.NameRequest
	if err := network.DecodeCommand(line, &req); err != nil {
		s.reply(sess, network.ErrorReply{Command: network.RespError, Message: "Invalid JSON format"})
		return
	}

	authenticated := false
	if req.Password != "" {
		if !s.passwords.CheckOrRegister(req.Name, req.Password) {
			s.reply(sess, network.ErrorReply{Command: network.RespAuthFailed, Message: clientMessage(ErrAuthFailed)})
			return
		}
		authenticated = true
	}

	sess.SetName(req.Name)
	if authenticated {
		if err := sess.SetAuthenticated(); err != nil {
			s.replyError(sess, fmt.Errorf("server: instantiating cipher: %w", err))
			return
		}
		sess.SetState(session.StateAuthenticated)
	}

	s.reply(sess, network.NameOK{
		Command:       network.RespNameOK,
		Name:          req.Name,
		Authenticated: authenticated,
		UDPEncryption: authenticated,
	})
}

func (s *Server) handleAuthenticate(sess *session.Session, line []byte) {
	var req network.AuthenticateRequest
	if err := network.DecodeCommand(line, &req); err != nil {
		s.reply(sess, network.ErrorReply{Command: network.RespError, Message: "Invalid JSON format"})
		return
	}

	name := sess.Name()
	if name == "" || !s.passwords.Verify(name, req.Password) {
		s.reply(sess, network.ErrorReply{Command: network.RespAuthFailed, Message: clientMessage(ErrAuthFailed)})
		return
	}

	if err := sess.SetAuthenticated(); err != nil {
		s.replyError(sess, fmt.Errorf("server: instantiating cipher: %w", err))
		return
	}
	sess.SetState(session.StateAuthenticated)
	s.reply(sess, network.AuthOK{Command: network.RespAuthOK, Name: name})
}

func (s *Server) handleCreateRoom(sess *session.Session, line []byte) {
	var req network.CreateRoomRequest
	if err := network.DecodeCommand(line, &req); err != nil {
		s.reply(sess, network.ErrorReply{Command: network.RespError, Message: "Invalid JSON format"})
		return
	}

	room := s.rooms.Create(req.Name)
	if _, err := room.TryAdd(sess.ID, sess.Name()); err != nil {
		s.rooms.Remove(room.ID)
		s.replyError(sess, err)
		return
	}

	sess.SetRoomID(room.ID)
	sess.SetState(session.StateInRoom)
	s.sink.LogRoomActivity(room.ID, "created", req.Name)
	s.reply(sess, network.RoomCreated{Command: network.RespRoomCreated, RoomID: room.ID, Name: req.Name})
}

func (s *Server) handleJoinRoom(sess *session.Session, line []byte) {
	var req network.JoinRoomRequest
	if err := network.DecodeCommand(line, &req); err != nil {
		s.reply(sess, network.ErrorReply{Command: network.RespError, Message: "Invalid JSON format"})
		return
	}

	room, ok := s.rooms.Get(req.RoomID)
	if !ok {
		s.replyError(sess, ErrRoomNotFound)
		return
	}
	if room.IsFull() || room.IsActive() || room.Contains(sess.ID) {
		s.replyError(sess, ErrRoomFullOrActive)
		return
	}

	if _, err := room.TryAdd(sess.ID, sess.Name()); err != nil {
		s.replyError(sess, ErrRoomFullOrActive)
		return
	}

	sess.SetRoomID(room.ID)
	sess.SetState(session.StateInRoom)
	s.sink.LogRoomActivity(room.ID, "joined", sess.Name())
	s.reply(sess, network.JoinOK{Command: network.RespJoinOK, RoomID: room.ID})
}

func (s *Server) handleLeaveRoom(sess *session.Session) {
	roomID := sess.RoomID()
	if roomID == "" {
		s.replyError(sess, ErrNotInRoom)
		return
	}

	s.leaveRoom(sess, roomID)
	s.reply(sess, network.LeaveOK{Command: network.RespLeaveOK, RoomID: roomID})
}

// leaveRoom removes sess from roomID, transferring host or deleting
// the room as appropriate, and clears the session's room fields.
func (s *Server) leaveRoom(sess *session.Session, roomID string) {
	sess.SetRoomID("")
	if sess.State() == session.StateInRoom || sess.State() == session.StateInGame {
		sess.SetState(session.StateAuthenticated)
	}

	room, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	room.TryRemove(sess.ID)
	s.sink.LogRoomActivity(roomID, "left", sess.Name())

	if room.IsEmpty() && !room.IsActive() {
		s.rooms.RemoveIfEmpty(roomID)
	}
}

func (s *Server) handleStartGame(sess *session.Session) {
	roomID := sess.RoomID()
	room, ok := s.rooms.Get(roomID)
	if roomID == "" || !ok {
		s.replyError(sess, ErrNotInRoom)
		return
	}
	if !room.IsHost(sess.ID) {
		s.replyError(sess, ErrNotHost)
		return
	}

	spawns := room.StartGame()
	wireSpawns := make(map[string]network.Vector3, len(spawns))
	for id, pos := range spawns {
		wireSpawns[id] = network.Vector3{X: pos.X, Y: pos.Y, Z: pos.Z}
	}

	msg := network.GameStarted{
		Command:        network.RespGameStarted,
		RoomID:         room.ID,
		HostID:         room.HostID(),
		SpawnPositions: wireSpawns,
	}
	s.broadcastToRoom(room, msg)

	for _, m := range room.Members() {
		if memberSess, ok := s.getSession(m.ID); ok {
			memberSess.SetState(session.StateInGame)
		}
	}
	s.sink.LogRoomActivity(room.ID, "started", "")
}

func (s *Server) handleListRooms(sess *session.Session) {
	summaries := s.rooms.List()
	digests := make([]network.RoomDigest, len(summaries))
	for i, sum := range summaries {
		digests[i] = network.RoomDigest{
			ID:          sum.ID,
			Name:        sum.Name,
			PlayerCount: sum.PlayerCount,
			IsActive:    sum.IsActive,
			HostID:      sum.HostID,
		}
	}
	s.reply(sess, network.RoomList{Command: network.RespRoomList, Rooms: digests})
}

func (s *Server) handleGetRoomPlayers(sess *session.Session) {
	roomID := sess.RoomID()
	room, ok := s.rooms.Get(roomID)
	if roomID == "" || !ok {
		s.replyError(sess, ErrNotInRoom)
		return
	}

	members := room.Members()
	players := make([]network.PlayerDigest, len(members))
	for i, m := range members {
		sum := m.Summary()
		players[i] = network.PlayerDigest{ID: sum.ID, Name: sum.Name}
	}
	s.reply(sess, network.RoomPlayers{Command: network.RespRoomPlayers, RoomID: room.ID, Players: players})
}

func (s *Server) handleRelayMessage(sess *session.Session, line []byte) {
	var req network.RelayMessageRequest
	if err := network.DecodeCommand(line, &req); err != nil {
		s.reply(sess, network.ErrorReply{Command: network.RespError, Message: "Invalid JSON format"})
		return
	}

	target, ok := s.getSession(req.TargetID)
	if !ok {
		s.replyError(sess, ErrTargetNotFound)
		return
	}

	s.reply(target, network.RelayedMessage{
		Command:    network.RespRelayedMessage,
		SenderID:   sess.ID,
		SenderName: sess.Name(),
		Message:    req.Message,
	})
	s.reply(sess, network.RelayOK{Command: network.RespRelayOK, TargetID: req.TargetID})
}

func (s *Server) handlePlayerInfo(sess *session.Session) {
	s.reply(sess, network.PlayerInfoResponse{
		Command: network.RespPlayerInfo,
		PlayerInfo: network.PlayerInfo{
			ID:            sess.ID,
			Name:          sess.Name(),
			CurrentRoomID: sess.RoomID(),
		},
	})
}

func (s *Server) handleBye(sess *session.Session) {
	s.reply(sess, network.ByeOK{Command: network.RespByeOK})
	sess.Close()
}

// broadcastToRoom best-effort delivers v to every member's control
// channel; per-recipient failures are logged, not propagated.
func (s *Server) broadcastToRoom(room *game.Room, v any) {
	data, err := network.EncodeLine(v)
	if err != nil {
		return
	}
	for _, m := range room.Members() {
		memberSess, ok := s.getSession(m.ID)
		if !ok {
			continue
		}
		if err := memberSess.Send(data); err != nil {
			s.sink.LogRoomActivity(room.ID, "broadcast-failed", m.ID)
		}
	}
}
