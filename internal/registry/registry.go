// Package registry implements the generic subscription registry shared by
// all three scope managers (per-machine, per-account, global). The three
// scopes differ only in their interest-key type and how a machine id
// resolves to interest keys; that resolution lives one layer up, in the
// scope manager. The registry itself only ever does subscribe, unsubscribe,
// prune, and consistent-snapshot reads.
package registry

import "sync"

// SessionKey is a monotonically allocated, process-lifetime-unique handle
// for a session. It is derived from an arena-style counter rather than the
// transport's identity/pointer, so it stays stable and comparable even if
// the transport type changes.
type SessionKey uint64

// Session is the minimal view a registry needs of a live connection: its
// own key, and whether it is still in a state a broadcast pass may send to.
type Session interface {
	Key() SessionKey
	SendCapable() bool
}

// Entry binds a session to its interest key within one scope.
type Entry[K comparable] struct {
	Session Session
	Key     K
}

// Registry is the generic per-scope subscription table. K is the scope's
// interest-key type: vmid.MachineID for the per-machine scope, vmid.UserID
// for the per-account scope, and struct{} for the global scope.
type Registry[K comparable] struct {
	mu      sync.RWMutex
	entries map[SessionKey]Entry[K]
}

func New[K comparable]() *Registry[K] {
	return &Registry[K]{entries: make(map[SessionKey]Entry[K])}
}

// Subscribe inserts or overwrites the entry for a session (I1: at most one
// entry per session key; a repeat subscribe is an idempotent reconnect).
func (r *Registry[K]) Subscribe(session Session, key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[session.Key()] = Entry[K]{Session: session, Key: key}
}

// Unsubscribe removes a session's entry. No-op if absent (I2: once removed,
// no further messages are sent to it by this scope).
func (r *Registry[K]) Unsubscribe(key SessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Prune bulk-removes dead session keys gathered during a broadcast pass.
func (r *Registry[K]) Prune(keys []SessionKey) {
	if len(keys) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.entries, k)
	}
}

// Snapshot returns a consistent point-in-time copy of all entries, safe to
// range over while subscribe/unsubscribe/prune run concurrently on the live
// map.
func (r *Registry[K]) Snapshot() []Entry[K] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry[K], 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Len reports the current entry count (diagnostics/metrics only).
func (r *Registry[K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// LookupByKey returns every live session whose interest key equals key.
func (r *Registry[K]) LookupByKey(key K) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Session
	for _, e := range r.entries {
		if e.Key == key {
			out = append(out, e.Session)
		}
	}
	return out
}

// LookupByKeys returns the union of sessions whose interest key is any of keys.
func (r *Registry[K]) LookupByKeys(keys []K) []Session {
	if len(keys) == 0 {
		return nil
	}
	want := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Session
	for _, e := range r.entries {
		if _, ok := want[e.Key]; ok {
			out = append(out, e.Session)
		}
	}
	return out
}

// All returns every live session in the registry, regardless of interest
// key (used by the global scope, where every session matches every machine).
func (r *Registry[K]) All() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Session)
	}
	return out
}
