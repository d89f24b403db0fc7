// Package eventlog is the pluggable event sink: connection, security,
// room-activity, and server-lifecycle events are reported through a
// small interface so tests can record events without touching the
// standard logger, and production wires a log.Logger-backed sink.
package eventlog

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/vectorrace/racecore/config"
)

// Sink receives fire-and-forget notifications from the rest of the
// core. Implementations must not block the caller for long and must
// never panic; a failing sink is swallowed by callers, never
// propagated.
type Sink interface {
	LogConnection(sessionID, event string)
	LogSecurity(sessionID, kind, detail string, severity int)
	LogRoomActivity(roomID, event, detail string)
	LogServerEvent(level, category, msg string, ctx map[string]any)
}

// SecurityEvent is one buffered entry in a SecurityRing: a snapshot of
// a single LogSecurity call.
type SecurityEvent struct {
	Timestamp   time.Time
	Kind        string
	ClientID    string
	Description string
	Severity    int
}

// SecurityRing is a fixed-capacity, oldest-overwritten ring buffer of
// SecurityEvents. Safe for concurrent use.
type SecurityRing struct {
	mu     sync.Mutex
	events []SecurityEvent
	next   int
	full   bool
}

// NewSecurityRing builds a ring buffer holding up to capacity events.
func NewSecurityRing(capacity int) *SecurityRing {
	return &SecurityRing{events: make([]SecurityEvent, capacity)}
}

// Add records e, overwriting the oldest entry once the ring is full.
func (r *SecurityRing) Add(e SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns the buffered events, oldest first.
func (r *SecurityRing) Snapshot() []SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]SecurityEvent, r.next)
		copy(out, r.events[:r.next])
		return out
	}

	out := make([]SecurityEvent, len(r.events))
	n := copy(out, r.events[r.next:])
	copy(out[n:], r.events[:r.next])
	return out
}

// LoggerSink is the default Sink, backed by a standard library
// *log.Logger. It never returns an error — failures to write are a
// logging problem, not a caller problem. Security events are also
// retained in a bounded ring buffer for diagnostics/snapshot queries.
type LoggerSink struct {
	logger *log.Logger
	ring   *SecurityRing
}

// NewLoggerSink builds a LoggerSink writing to stderr with the
// standard date/time prefix.
func NewLoggerSink() *LoggerSink {
	return NewLoggerSinkWith(log.New(os.Stderr, "", log.LstdFlags))
}

// NewLoggerSinkWith builds a LoggerSink around a caller-supplied
// logger, e.g. one pointed at a file.
func NewLoggerSinkWith(logger *log.Logger) *LoggerSink {
	return &LoggerSink{logger: logger, ring: NewSecurityRing(config.SecurityEventRingCapacity)}
}

func (s *LoggerSink) LogConnection(sessionID, event string) {
	s.logger.Printf("[connection] session=%s event=%s", sessionID, event)
}

func (s *LoggerSink) LogSecurity(sessionID, kind, detail string, severity int) {
	now := time.Now()
	s.ring.Add(SecurityEvent{
		Timestamp:   now,
		Kind:        kind,
		ClientID:    sessionID,
		Description: detail,
		Severity:    severity,
	})
	s.logger.Printf("[security] session=%s kind=%s severity=%d detail=%s", sessionID, kind, severity, detail)
}

func (s *LoggerSink) LogRoomActivity(roomID, event, detail string) {
	s.logger.Printf("[room] room=%s event=%s detail=%s", roomID, event, detail)
}

func (s *LoggerSink) LogServerEvent(level, category, msg string, ctx map[string]any) {
	s.logger.Printf("[server] level=%s category=%s msg=%s ctx=%v", level, category, msg, ctx)
}

// RecentSecurityEvents returns the events currently held in the
// ring buffer, oldest first.
func (s *LoggerSink) RecentSecurityEvents() []SecurityEvent {
	return s.ring.Snapshot()
}

// NullSink discards every event. Useful when a caller wants a Sink
// but has no interest in the output (e.g. benchmarks).
type NullSink struct{}

func (NullSink) LogConnection(string, string)                          {}
func (NullSink) LogSecurity(string, string, string, int)               {}
func (NullSink) LogRoomActivity(string, string, string)                {}
func (NullSink) LogServerEvent(string, string, string, map[string]any) {}

// Event is one recorded call, captured by RecordingSink for
// assertions in tests.
type Event struct {
	Kind   string // "connection", "security", "room", "server"
	Fields []string
}

// String renders an Event for failure messages.
func (e Event) String() string {
	return fmt.Sprintf("%s%v", e.Kind, e.Fields)
}

// RecordingSink accumulates every call it receives, for test
// assertions. Not safe for concurrent use from multiple goroutines
// without external synchronization; tests exercise one session/room
// path at a time.
type RecordingSink struct {
	Events []Event
}

// NewRecordingSink builds an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) LogConnection(sessionID, event string) {
	s.Events = append(s.Events, Event{Kind: "connection", Fields: []string{sessionID, event}})
}

func (s *RecordingSink) LogSecurity(sessionID, kind, detail string, severity int) {
	s.Events = append(s.Events, Event{
		Kind:   "security",
		Fields: []string{sessionID, kind, detail, fmt.Sprintf("%d", severity)},
	})
}

func (s *RecordingSink) LogRoomActivity(roomID, event, detail string) {
	s.Events = append(s.Events, Event{Kind: "room", Fields: []string{roomID, event, detail}})
}

func (s *RecordingSink) LogServerEvent(level, category, msg string, ctx map[string]any) {
	s.Events = append(s.Events, Event{
		Kind:   "server",
		Fields: []string{level, category, msg, fmt.Sprintf("%v", ctx)},
	})
}
