package security

import (
	"sync"
	"time"

	"github.com/vectorrace/racecore/config"
)

// Channel distinguishes the two accounted traffic classes.
type Channel int

const (
	ChannelControl Channel = iota
	ChannelDatagram
)

// window is a sliding 1-second FIFO of timestamps for one (client,
// channel) pair.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// allow records now, evicts entries older than 1s, and reports whether
// the resulting count is within limit+burst.
func (w *window) allow(now time.Time, limit, burst int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-time.Second)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = append(kept, now)

	return len(w.timestamps) <= limit+burst
}

// count reports how many timestamps fall within the last second of
// now, without recording a new one or evicting expired entries.
func (w *window) count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-time.Second)
	n := 0
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

type clientWindows struct {
	control  window
	datagram window

	mu       sync.Mutex
	lastSeen time.Time
}

// RateLimiter tracks sliding-window rate accounting per (client id,
// channel). Thread-safe; a background sweep (started via StartSweeper
// or driven manually through Sweep) evicts state for idle clients.
type RateLimiter struct {
	mu      sync.RWMutex
	clients map[string]*clientWindows

	controlLimit  int
	datagramLimit int
	burst         int
}

// NewRateLimiter builds a limiter with the given per-channel limits.
func NewRateLimiter(controlLimit, datagramLimit, burst int) *RateLimiter {
	return &RateLimiter{
		clients:       make(map[string]*clientWindows),
		controlLimit:  controlLimit,
		datagramLimit: datagramLimit,
		burst:         burst,
	}
}

// NewDefaultRateLimiter builds a limiter using the package's default limits.
func NewDefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(config.ControlRateLimit, config.DatagramRateLimit, config.RateLimitBurst)
}

func (rl *RateLimiter) clientState(clientID string) *clientWindows {
	rl.mu.RLock()
	cw, ok := rl.clients[clientID]
	rl.mu.RUnlock()
	if ok {
		return cw
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if cw, ok = rl.clients[clientID]; ok {
		return cw
	}
	cw = &clientWindows{}
	rl.clients[clientID] = cw
	return cw
}

// Allow records the current timestamp for (clientID, channel) and
// reports whether the client is still within its rate limit.
func (rl *RateLimiter) Allow(clientID string, channel Channel) bool {
	return rl.AllowAt(clientID, channel, time.Now())
}

// AllowAt is Allow with an explicit clock, for deterministic tests.
func (rl *RateLimiter) AllowAt(clientID string, channel Channel, now time.Time) bool {
	cw := rl.clientState(clientID)

	cw.mu.Lock()
	cw.lastSeen = now
	cw.mu.Unlock()

	limit, burst := rl.limitsFor(channel)
	w := rl.windowFor(cw, channel)
	return w.allow(now, limit, burst)
}

func (rl *RateLimiter) limitsFor(channel Channel) (limit, burst int) {
	if channel == ChannelControl {
		return rl.controlLimit, rl.burst
	}
	return rl.datagramLimit, rl.burst
}

func (rl *RateLimiter) windowFor(cw *clientWindows, channel Channel) *window {
	if channel == ChannelControl {
		return &cw.control
	}
	return &cw.datagram
}

// Rates reports the current (control, datagram) message counts for
// clientID within the last second, without mutating any state. Used
// for diagnostic snapshots.
func (rl *RateLimiter) Rates(clientID string, now time.Time) (control, datagram int) {
	rl.mu.RLock()
	cw, ok := rl.clients[clientID]
	rl.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	return cw.control.count(now), cw.datagram.count(now)
}

// Forget removes all rate-limiter state for a client. Called when a
// session is torn down.
func (rl *RateLimiter) Forget(clientID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, clientID)
}

// Sweep removes state for clients idle longer than idleTTL, as of now.
func (rl *RateLimiter) Sweep(now time.Time, idleTTL time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, cw := range rl.clients {
		cw.mu.Lock()
		idle := now.Sub(cw.lastSeen)
		cw.mu.Unlock()
		if idle > idleTTL {
			delete(rl.clients, id)
		}
	}
}

// StartSweeper runs Sweep on config.RateLimiterSweep interval until
// stop is closed.
func (rl *RateLimiter) StartSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(config.RateLimiterSweep)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.Sweep(now, config.RateLimiterIdleTTL)
		case <-stop:
			return
		}
	}
}
