package security

import (
	"sync"
	"time"

	"github.com/vectorrace/racecore/config"
)

// Decision is what the caller should do with the packet that was just
// checked.
type Decision int

const (
	// DecisionAllow means apply the update/input normally.
	DecisionAllow Decision = iota
	// DecisionDrop means silently discard the packet; no violation is
	// recorded.
	DecisionDrop
	// DecisionFlag means apply the update/input (the caller may still
	// choose to drop it) but a violation was recorded against the
	// sender.
	DecisionFlag
	// DecisionKick means the sender crossed the violation threshold
	// within the accounting window and must be disconnected.
	DecisionKick
)

// Reason distinguishes which check produced a DecisionFlag/DecisionKick,
// so the caller can emit the correctly-named, correctly-severitied
// security event for it.
type Reason int

const (
	// ReasonNone applies to DecisionAllow/DecisionDrop, where no
	// violation was recorded.
	ReasonNone Reason = iota
	// ReasonRateLimit means the datagram rate limit (C2) rejected the
	// packet.
	ReasonRateLimit
	// ReasonValidation means the structural/physics validator (C3)
	// rejected the packet.
	ReasonValidation
)

// violationLog is one client's rolling record of recent violations.
type violationLog struct {
	mu         sync.Mutex
	occurredAt []time.Time
}

func (v *violationLog) record(now time.Time, window time.Duration) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := now.Add(-window)
	kept := v.occurredAt[:0]
	for _, t := range v.occurredAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	v.occurredAt = append(kept, now)
	return len(v.occurredAt)
}

// Manager composes rate limiting and structural/physics validation
// into a single decision per inbound packet, and tracks each client's
// violation count over a sliding window to decide when a kick is
// warranted.
type Manager struct {
	limiter   *RateLimiter
	validator *Validator

	mu         sync.Mutex
	violations map[string]*violationLog

	window    time.Duration
	threshold int
}

// NewManager builds a Manager from the given rate limiter, using the
// package defaults for violation accounting.
func NewManager(limiter *RateLimiter) *Manager {
	return &Manager{
		limiter:    limiter,
		validator:  NewValidator(),
		violations: make(map[string]*violationLog),
		window:     config.ViolationWindow,
		threshold:  config.ViolationThreshold,
	}
}

// RateLimiter returns the underlying rate limiter, so the server core
// can wire its periodic sweep.
func (m *Manager) RateLimiter() *RateLimiter {
	return m.limiter
}

// CheckMovement runs rate limiting then physics validation for an
// UPDATE command and returns the combined decision plus which check
// produced it, so the caller can log the correctly-named event.
func (m *Manager) CheckMovement(clientID string, check MovementCheck) (Decision, Reason) {
	if !m.limiter.AllowAt(clientID, ChannelDatagram, check.Now) {
		return m.violate(clientID, check.Now, ReasonRateLimit)
	}

	switch m.validator.ValidateMovement(check) {
	case VerdictViolation:
		return m.violate(clientID, check.Now, ReasonValidation)
	default:
		return DecisionAllow, ReasonNone
	}
}

// CheckInput runs rate limiting then field validation for an INPUT
// command and returns the combined decision plus which check produced
// it, so the caller can log the correctly-named event.
func (m *Manager) CheckInput(clientID string, check InputCheck) (Decision, Reason) {
	if !m.limiter.AllowAt(clientID, ChannelDatagram, check.Now) {
		return m.violate(clientID, check.Now, ReasonRateLimit)
	}

	switch m.validator.ValidateInput(check) {
	case VerdictViolation:
		return m.violate(clientID, check.Now, ReasonValidation)
	default:
		return DecisionAllow, ReasonNone
	}
}

func (m *Manager) violate(clientID string, now time.Time, reason Reason) (Decision, Reason) {
	count := m.logFor(clientID).record(now, m.window)
	if count >= m.threshold {
		return DecisionKick, reason
	}
	return DecisionFlag, reason
}

func (m *Manager) logFor(clientID string) *violationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	vl, ok := m.violations[clientID]
	if !ok {
		vl = &violationLog{}
		m.violations[clientID] = vl
	}
	return vl
}

// Forget clears all rate-limit and violation state for a client.
// Called when a session is torn down.
func (m *Manager) Forget(clientID string) {
	m.limiter.Forget(clientID)
	m.mu.Lock()
	delete(m.violations, clientID)
	m.mu.Unlock()
}

// ViolationCount reports how many violations a client has within the
// current accounting window, as of now. Used by diagnostics and tests.
func (m *Manager) ViolationCount(clientID string, now time.Time) int {
	m.mu.Lock()
	vl, ok := m.violations[clientID]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	vl.mu.Lock()
	defer vl.mu.Unlock()
	cutoff := now.Add(-m.window)
	count := 0
	for _, t := range vl.occurredAt {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// ThreatLevel summarizes a client's recent violations as 0 (none)
// through 3 (at or above the kick threshold).
func (m *Manager) ThreatLevel(clientID string, now time.Time) int {
	count := m.ViolationCount(clientID, now)
	switch {
	case count <= 0:
		return 0
	case count >= 3:
		return 3
	default:
		return count
	}
}

// Stats is a point-in-time snapshot of one client's rate and violation
// accounting, for diagnostics.
type Stats struct {
	ClientID     string
	ControlRate  int // messages observed in the current 1s control window
	DatagramRate int // messages observed in the current 1s datagram window
	Violations   int // violations within the accounting window
	ThreatLevel  int // 0-3, derived from Violations
}

// Snapshot reports Stats for clientID as of now.
func (m *Manager) Snapshot(clientID string, now time.Time) Stats {
	controlRate, datagramRate := m.limiter.Rates(clientID, now)
	violations := m.ViolationCount(clientID, now)
	return Stats{
		ClientID:     clientID,
		ControlRate:  controlRate,
		DatagramRate: datagramRate,
		Violations:   violations,
		ThreatLevel:  m.ThreatLevel(clientID, now),
	}
}
