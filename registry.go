/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
)

type slot struct {
	group int
	role  Role
}

// Registry records which connection holds each (group, role) slot. Claim is
// the only way to take a slot and is indivisible, so concurrent claims for
// the same slot can never both succeed.
type Registry struct {
	mu     sync.RWMutex
	slots  map[slot]string // (group, role) -> connection ID
	byConn map[string]slot // connection ID -> held slot
}

func newRegistry() *Registry {
	return &Registry{
		slots:  make(map[slot]string),
		byConn: make(map[string]slot),
	}
}

// claim binds (group, role) to connID iff no other live connection currently
// holds it. A connection re-claiming the slot it already holds succeeds
// without change; a connection holding a different slot is moved, since any
// connection holds at most one slot.
func (r *Registry) claim(group int, role Role, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := slot{group: group, role: role}
	if holder, ok := r.slots[k]; ok {
		return holder == connID
	}

	if prev, ok := r.byConn[connID]; ok {
		delete(r.slots, prev)
	}
	r.slots[k] = connID
	r.byConn[connID] = k

	return true
}

// release frees whatever slot connID holds. Idempotent, so duplicate close
// notifications are harmless.
func (r *Registry) release(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if k, ok := r.byConn[connID]; ok {
		delete(r.byConn, connID)
		delete(r.slots, k)
	}
}

// occupants returns the roles currently held within a group, in catalog order.
func (r *Registry) occupants(group int) []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Role, 0, len(roleCatalog))
	for _, role := range roleCatalog {
		if _, ok := r.slots[slot{group: group, role: role}]; ok {
			out = append(out, role)
		}
	}

	return out
}

// find returns the connection holding (group, role), if any.
func (r *Registry) find(group int, role Role) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.slots[slot{group: group, role: role}]

	return connID, ok
}
