package security

import (
	"time"

	"github.com/vectorrace/racecore/config"
	"github.com/vectorrace/racecore/internal/game"
)

// Verdict is the outcome of a validation check.
type Verdict int

const (
	// VerdictAccept means the update/input may be applied as-is.
	VerdictAccept Verdict = iota
	// VerdictViolation means the update/input is out of range and must
	// be recorded against the sender's violation count.
	VerdictViolation
)

// MovementCheck holds everything ValidateMovement needs to judge one
// UPDATE command against the member's last-known validated state.
type MovementCheck struct {
	Previous    game.Vector3
	PreviousRot game.Quaternion
	PreviousAt  time.Time

	Next    game.Vector3
	NextRot game.Quaternion
	Now     time.Time
}

// Validator holds the structural/physics validation rules. It is
// stateless: every check is a pure function of its inputs, so a single
// Validator is shared across all sessions.
type Validator struct{}

// NewValidator builds a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateMovement checks a reported position/rotation transition
// against the elapsed wall-clock delta since the member's last
// validated update.
//
// The allowed displacement is max(MaxSpeed*dt, MaxJump); after a gap
// longer than MaxUpdateGap the allowance is multiplied by
// LongGapJumpAllowance, since a client that stalled (scene load,
// backgrounded app) legitimately resumes somewhere far from where it
// paused.
func (v *Validator) ValidateMovement(c MovementCheck) Verdict {
	if !withinWorldBounds(c.Next) {
		return VerdictViolation
	}

	dt := c.Now.Sub(c.PreviousAt)
	if dt < config.MinUpdateInterval {
		// Bursty clients (faster-than-expected polling, back-to-back
		// packets on a stalled connection) are accepted and applied
		// outright: the distance/rotation checks below are meaningless
		// over a sub-tick interval, not a sign of cheating.
		return VerdictAccept
	}

	allowance := config.MaxJump
	if speedAllowance := config.MaxSpeed * dt.Seconds(); speedAllowance > allowance {
		allowance = speedAllowance
	}
	if dt > config.MaxUpdateGap {
		allowance *= config.LongGapJumpAllowance
	}

	if c.Previous.Distance(c.Next) > allowance {
		return VerdictViolation
	}

	if c.PreviousRot.AngularDistance(c.NextRot) > config.MaxAngularVelocity*dt.Seconds() {
		return VerdictViolation
	}

	return VerdictAccept
}

func withinWorldBounds(p game.Vector3) bool {
	if p.X < -config.WorldBoundX || p.X > config.WorldBoundX {
		return false
	}
	if p.Y < -config.WorldBoundY || p.Y > config.WorldBoundY {
		return false
	}
	if p.Z < -config.WorldBoundZ || p.Z > config.WorldBoundZ {
		return false
	}
	return true
}

// InputCheck holds an INPUT command's numeric fields.
type InputCheck struct {
	Steering float32
	Throttle float32
	Brake    float32

	// Timestamp is the client-reported send time, zero if omitted.
	Timestamp time.Time
	Now       time.Time
}

// ValidateInput range-checks an INPUT command's control fields and, if
// a timestamp was supplied, its clock skew against the server's clock.
func (v *Validator) ValidateInput(c InputCheck) Verdict {
	if c.Steering < -1 || c.Steering > 1 {
		return VerdictViolation
	}
	if c.Throttle < 0 || c.Throttle > 1 {
		return VerdictViolation
	}
	if c.Brake < 0 || c.Brake > 1 {
		return VerdictViolation
	}

	if !c.Timestamp.IsZero() {
		skew := c.Now.Sub(c.Timestamp)
		if skew < 0 {
			skew = -skew
		}
		if skew > config.MaxInputClockSkew {
			return VerdictViolation
		}
	}

	return VerdictAccept
}
