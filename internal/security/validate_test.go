package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vectorrace/racecore/internal/game"
)

func TestValidateMovement_AcceptsWithinAllowance(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 1, Y: 0, Z: 0},
		Now:        now,
	}
	assert.Equal(t, VerdictAccept, v.ValidateMovement(c))
}

func TestValidateMovement_RejectsTeleport(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 500, Y: 0, Z: 0},
		Now:        now,
	}
	assert.Equal(t, VerdictViolation, v.ValidateMovement(c))
}

func TestValidateMovement_AcceptsBurstyUpdateUnderMinInterval(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-1 * time.Millisecond),
		// Far beyond the normal per-tick allowance: if the Δt<8ms
		// fast-path ever regresses back to a distance/rotation check,
		// this becomes a VerdictViolation instead.
		Next: game.Vector3{X: 900, Y: 0, Z: 0},
		Now:  now,
	}
	assert.Equal(t, VerdictAccept, v.ValidateMovement(c))
}

func TestValidateMovement_AllowsLargeJumpAfterLongGap(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-10 * time.Second),
		Next:       game.Vector3{X: 120, Y: 0, Z: 0},
		Now:        now,
	}
	assert.Equal(t, VerdictAccept, v.ValidateMovement(c))
}

func TestValidateMovement_RejectsOutOfWorldBounds(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := MovementCheck{
		Previous:   game.Vector3{X: 0, Y: 0, Z: 0},
		PreviousAt: now.Add(-100 * time.Millisecond),
		Next:       game.Vector3{X: 5000, Y: 0, Z: 0},
		Now:        now,
	}
	assert.Equal(t, VerdictViolation, v.ValidateMovement(c))
}

func TestValidateInput_RejectsOutOfRangeSteering(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := InputCheck{Steering: 1.5, Throttle: 0.5, Brake: 0, Now: now}
	assert.Equal(t, VerdictViolation, v.ValidateInput(c))
}

func TestValidateInput_RejectsStaleTimestamp(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := InputCheck{Steering: 0, Throttle: 0, Brake: 0, Timestamp: now.Add(-time.Hour), Now: now}
	assert.Equal(t, VerdictViolation, v.ValidateInput(c))
}

func TestValidateInput_AcceptsValidInput(t *testing.T) {
	v := NewValidator()
	now := time.Now()
	c := InputCheck{Steering: -0.5, Throttle: 1, Brake: 0, Timestamp: now, Now: now}
	assert.Equal(t, VerdictAccept, v.ValidateInput(c))
}
