package server

import "errors"

// Sentinel errors surfaced on the control channel. Each maps to a
// fixed, human-readable message — the error text here never reaches
// a client verbatim.
var (
	ErrRoomNotFound     = errors.New("server: room not found")
	ErrRoomFullOrActive = errors.New("server: room is full or already active")
	ErrNotInRoom        = errors.New("server: not in a room")
	ErrNotHost          = errors.New("server: only the host can do that")
	ErrTargetNotFound   = errors.New("server: target session not found")
	ErrAuthRequired     = errors.New("server: authentication required")
	ErrAuthFailed       = errors.New("server: authentication failed")
)

// clientMessage maps a sentinel error to the fixed string sent to
// clients, never the Go error text itself.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found."
	case errors.Is(err, ErrRoomFullOrActive):
		return "Cannot join room. Room is full or already active."
	case errors.Is(err, ErrNotInRoom):
		return "No room joined"
	case errors.Is(err, ErrNotHost):
		return "Cannot start game. Only the host can start the game."
	case errors.Is(err, ErrTargetNotFound):
		return "Target session not found."
	case errors.Is(err, ErrAuthRequired):
		return "Authentication required..."
	case errors.Is(err, ErrAuthFailed):
		return "Authentication failed."
	default:
		return "Internal error."
	}
}
