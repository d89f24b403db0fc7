package eventlog

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordingSink_CapturesEvents(t *testing.T) {
	sink := NewRecordingSink()
	sink.LogConnection("s1", "connected")
	sink.LogSecurity("s1", "PacketValidationFailure", "teleport", 3)
	sink.LogRoomActivity("r1", "created", "")
	sink.LogServerEvent("info", "listener", "listening", nil)

	assert.Len(t, sink.Events, 4)
	assert.Equal(t, "connection", sink.Events[0].Kind)
	assert.Equal(t, "security", sink.Events[1].Kind)
	assert.Equal(t, "room", sink.Events[2].Kind)
	assert.Equal(t, "server", sink.Events[3].Kind)
	assert.Contains(t, sink.Events[1].Fields, "3")
}

func TestNullSink_DoesNotPanic(t *testing.T) {
	var sink Sink = NullSink{}
	sink.LogConnection("s1", "connected")
	sink.LogSecurity("s1", "k", "d", 1)
	sink.LogRoomActivity("r1", "e", "d")
	sink.LogServerEvent("info", "cat", "msg", map[string]any{"k": "v"})
}

func TestLoggerSink_RetainsRecentSecurityEvents(t *testing.T) {
	sink := NewLoggerSinkWith(log.New(io.Discard, "", 0))
	sink.LogSecurity("s1", "RateLimitExceeded", "over limit", 2)
	sink.LogSecurity("s1", "PacketValidationFailure", "bad update", 3)

	events := sink.RecentSecurityEvents()
	assert.Len(t, events, 2)
	assert.Equal(t, "RateLimitExceeded", events[0].Kind)
	assert.Equal(t, 2, events[0].Severity)
	assert.Equal(t, "PacketValidationFailure", events[1].Kind)
	assert.Equal(t, 3, events[1].Severity)
}

func TestSecurityRing_OverwritesOldestPastCapacity(t *testing.T) {
	ring := NewSecurityRing(2)
	ring.Add(SecurityEvent{Kind: "a"})
	ring.Add(SecurityEvent{Kind: "b"})
	ring.Add(SecurityEvent{Kind: "c"})

	events := ring.Snapshot()
	assert.Len(t, events, 2)
	assert.Equal(t, "b", events[0].Kind)
	assert.Equal(t, "c", events[1].Kind)
}
