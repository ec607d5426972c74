// Package presence tracks which users hold at least one live connection.
// State is process-local and best-effort; clients recover from missed deltas
// through the snapshot sent on connect.
package presence

import (
	"sync"
)

// Registry maps a user to the set of their active connection ids. A user is
// online iff the set is non-empty; multi-device users are summed, not
// overwritten. All access goes through the registry, never a raw map.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
	}
}

// Register records a connection for the user. It reports whether this was the
// rising edge (offline -> online); callers broadcast online=true only then.
func (r *Registry) Register(userID, connID string) (cameOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	cameOnline = len(set) == 0
	set[connID] = struct{}{}
	return cameOnline
}

// Unregister removes a connection. It reports whether the user's last
// connection went away (falling edge); callers broadcast online=false only
// then. Removing one device never marks a user offline while others remain.
func (r *Registry) Unregister(userID, connID string) (wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// OnlineIDs returns a snapshot of every online user, used for the
// presence:state handshake.
func (r *Registry) OnlineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for userID, set := range r.conns {
		if len(set) > 0 {
			ids = append(ids, userID)
		}
	}
	return ids
}
