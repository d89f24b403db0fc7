// Package auth implements the trust-on-first-use password table: the
// first NAME carrying a password for a given name registers it; every
// later NAME or AUTHENTICATE for that name must match.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"
)

// Table is an in-memory, process-lifetime password store. Entries are
// never evicted — a name claimed once stays claimed for the life of
// the process.
type Table struct {
	mu      sync.RWMutex
	entries map[string]string // name -> base64(SHA-256(password))
}

// NewTable builds an empty password table.
func NewTable() *Table {
	return &Table{entries: make(map[string]string)}
}

// Hash returns the base64-encoded SHA-256 digest of a password, the
// form stored in the table and compared against.
func Hash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// CheckOrRegister verifies password against the stored hash for name,
// registering it as that name's password if none exists yet. Returns
// true if the name is now (or already was) authenticated under this
// password.
func (t *Table) CheckOrRegister(name, password string) bool {
	hash := Hash(password)

	t.mu.RLock()
	existing, ok := t.entries[name]
	t.mu.RUnlock()
	if ok {
		return existing == hash
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[name]; ok {
		return existing == hash
	}
	t.entries[name] = hash
	return true
}

// Verify checks password against an already-registered name without
// registering anything. Used by AUTHENTICATE, which re-verifies
// against a prior NAME rather than claiming a fresh identity.
func (t *Table) Verify(name, password string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	existing, ok := t.entries[name]
	if !ok {
		return false
	}
	return existing == Hash(password)
}

// Registered reports whether name has ever been claimed with a
// password.
func (t *Table) Registered(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[name]
	return ok
}
