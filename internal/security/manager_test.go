package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vectorrace/racecore/internal/game"
)

func TestManager_KicksAfterThresholdViolations(t *testing.T) {
	m := NewManager(NewDefaultRateLimiter())
	now := time.Now()

	check := func(at time.Time) MovementCheck {
		return MovementCheck{
			Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
			PreviousAt: at.Add(-100 * time.Millisecond),
			Next:       game.Vector3{X: 9000, Y: 0, Z: 0}, // out of world bounds, every time
			Now:        at,
		}
	}

	var last Decision
	var reason Reason
	for i := 0; i < 3; i++ {
		last, reason = m.CheckMovement("client-1", check(now.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, DecisionKick, last)
	assert.Equal(t, ReasonValidation, reason)
}

func TestManager_FlagsBelowThreshold(t *testing.T) {
	m := NewManager(NewDefaultRateLimiter())
	now := time.Now()

	check := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 9000, Y: 0, Z: 0},
		Now:        now,
	}
	decision, reason := m.CheckMovement("client-2", check)
	assert.Equal(t, DecisionFlag, decision)
	assert.Equal(t, ReasonValidation, reason)
}

func TestManager_AllowsValidMovement(t *testing.T) {
	m := NewManager(NewDefaultRateLimiter())
	now := time.Now()

	check := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 1, Y: 0, Z: 0},
		Now:        now,
	}
	decision, reason := m.CheckMovement("client-3", check)
	assert.Equal(t, DecisionAllow, decision)
	assert.Equal(t, ReasonNone, reason)
}

func TestManager_ForgetClearsViolations(t *testing.T) {
	m := NewManager(NewDefaultRateLimiter())
	now := time.Now()

	check := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 9000, Y: 0, Z: 0},
		Now:        now,
	}
	m.CheckMovement("client-4", check)
	assert.Equal(t, 1, m.ViolationCount("client-4", now))

	m.Forget("client-4")
	assert.Equal(t, 0, m.ViolationCount("client-4", now))
}

func TestManager_RateLimitViolationHasDistinctReason(t *testing.T) {
	m := NewManager(NewRateLimiter(1, 1, 0))
	now := time.Now()

	valid := func(at time.Time) MovementCheck {
		return MovementCheck{
			Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
			PreviousAt: at.Add(-100 * time.Millisecond),
			Next:       game.Vector3{X: 1, Y: 0, Z: 0},
			Now:        at,
		}
	}

	decision, reason := m.CheckMovement("client-5", valid(now))
	assert.Equal(t, DecisionAllow, decision)
	assert.Equal(t, ReasonNone, reason)

	decision, reason = m.CheckMovement("client-5", valid(now))
	assert.Equal(t, DecisionFlag, decision)
	assert.Equal(t, ReasonRateLimit, reason)
}

func TestManager_ThreatLevelCapsAtThree(t *testing.T) {
	m := NewManager(NewDefaultRateLimiter())
	now := time.Now()
	assert.Equal(t, 0, m.ThreatLevel("client-6", now))

	check := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 9000, Y: 0, Z: 0},
		Now:        now,
	}
	for i := 0; i < 5; i++ {
		m.CheckMovement("client-6", check)
	}
	assert.Equal(t, 3, m.ThreatLevel("client-6", now))
}

func TestManager_SnapshotReportsRatesAndThreatLevel(t *testing.T) {
	m := NewManager(NewDefaultRateLimiter())
	now := time.Now()

	check := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 1, Y: 0, Z: 0},
		Now:        now,
	}
	m.CheckMovement("client-7", check)

	stats := m.Snapshot("client-7", now)
	assert.Equal(t, "client-7", stats.ClientID)
	assert.Equal(t, 1, stats.DatagramRate)
	assert.Equal(t, 0, stats.Violations)
	assert.Equal(t, 0, stats.ThreatLevel)
}
