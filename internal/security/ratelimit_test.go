package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(5, 5, 0)
	now := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, rl.AllowAt("client", ChannelControl, now))
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(3, 3, 0)
	now := time.Now()
	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowAt("client", ChannelControl, now))
	}
	assert.False(t, rl.AllowAt("client", ChannelControl, now))
}

func TestRateLimiter_WindowSlidesAfterOneSecond(t *testing.T) {
	rl := NewRateLimiter(2, 2, 0)
	now := time.Now()
	assert.True(t, rl.AllowAt("client", ChannelControl, now))
	assert.True(t, rl.AllowAt("client", ChannelControl, now))
	assert.False(t, rl.AllowAt("client", ChannelControl, now))

	later := now.Add(1100 * time.Millisecond)
	assert.True(t, rl.AllowAt("client", ChannelControl, later))
}

func TestRateLimiter_ChannelsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1, 0)
	now := time.Now()
	assert.True(t, rl.AllowAt("client", ChannelControl, now))
	assert.True(t, rl.AllowAt("client", ChannelDatagram, now))
	assert.False(t, rl.AllowAt("client", ChannelControl, now))
}

func TestRateLimiter_ForgetClearsState(t *testing.T) {
	rl := NewRateLimiter(1, 1, 0)
	now := time.Now()
	assert.True(t, rl.AllowAt("client", ChannelControl, now))
	assert.False(t, rl.AllowAt("client", ChannelControl, now))

	rl.Forget("client")
	assert.True(t, rl.AllowAt("client", ChannelControl, now))
}

func TestRateLimiter_RatesReportsCurrentWindowCountsWithoutMutating(t *testing.T) {
	rl := NewRateLimiter(5, 5, 0)
	now := time.Now()
	rl.AllowAt("client", ChannelControl, now)
	rl.AllowAt("client", ChannelControl, now)
	rl.AllowAt("client", ChannelDatagram, now)

	control, datagram := rl.Rates("client", now)
	assert.Equal(t, 2, control)
	assert.Equal(t, 1, datagram)

	// Calling Rates again must not have recorded a new timestamp.
	control, datagram = rl.Rates("client", now)
	assert.Equal(t, 2, control)
	assert.Equal(t, 1, datagram)
}

func TestRateLimiter_RatesForUnknownClientIsZero(t *testing.T) {
	rl := NewRateLimiter(5, 5, 0)
	control, datagram := rl.Rates("nobody", time.Now())
	assert.Equal(t, 0, control)
	assert.Equal(t, 0, datagram)
}

func TestRateLimiter_SweepEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1, 0)
	now := time.Now()
	rl.AllowAt("client", ChannelControl, now)

	rl.Sweep(now.Add(2*time.Minute), time.Minute)

	rl.mu.RLock()
	_, exists := rl.clients["client"]
	rl.mu.RUnlock()
	assert.False(t, exists)
}
