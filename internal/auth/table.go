// Package auth implements the capability table consulted by every mutating
// registry entry point. Callers are identified by an actor string and hold a
// role; each role maps to a fixed capability set. The table is deliberately
// independent of any platform access-control machinery so the same check runs
// identically in-process and behind the HTTP surface.
package auth

import "sync"

// Role is a named bundle of capabilities.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleUpdater Role = "updater"
	RoleViewer  Role = "viewer"
)

// Capability gates a class of mutating operations.
type Capability string

const (
	CapPriceWrite     Capability = "price:write"
	CapWhitelistWrite Capability = "whitelist:write"
	CapStrategyWrite  Capability = "strategy:write"
	CapRiskWrite      Capability = "risk:write"
	CapConfigWrite    Capability = "config:write"
)

var roleCaps = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapPriceWrite:     true,
		CapWhitelistWrite: true,
		CapStrategyWrite:  true,
		CapRiskWrite:      true,
		CapConfigWrite:    true,
	},
	RoleUpdater: {
		CapPriceWrite: true,
		CapRiskWrite:  true,
	},
	RoleViewer: {},
}

// Table maps actors to roles. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	actors map[string]Role
	open   bool
}

// NewTable returns a Table with the given initial actor grants.
func NewTable(grants map[string]Role) *Table {
	actors := make(map[string]Role, len(grants))
	for actor, role := range grants {
		actors[actor] = role
	}
	return &Table{actors: actors}
}

// Open returns a table that allows every actor every capability. Used by
// tests and by deployments that terminate authorization elsewhere.
func Open() *Table {
	return &Table{actors: map[string]Role{}, open: true}
}

// Grant assigns a role to an actor, replacing any previous grant.
func (t *Table) Grant(actor string, role Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actors[actor] = role
}

// Revoke removes an actor's grant.
func (t *Table) Revoke(actor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.actors, actor)
}

// Role returns the actor's role and whether the actor is known.
func (t *Table) Role(actor string) (Role, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.actors[actor]
	return r, ok
}

// Allowed reports whether the actor holds the capability.
func (t *Table) Allowed(actor string, cap Capability) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.open {
		return true
	}
	role, ok := t.actors[actor]
	if !ok {
		return false
	}
	return roleCaps[role][cap]
}
