/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"sort"
	"sync"
)

// Participant is the record bound to a live connection once it has claimed a
// role. Records are never mutated in place; a reassignment removes and
// re-inserts. Nothing here survives a process restart.
type Participant struct {
	ConnID string
	Name   string
	Role   Role
	Group  int
}

// Sessions maps opaque connection IDs to their participant records.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]Participant
}

func newSessions() *Sessions {
	return &Sessions{byID: make(map[string]Participant)}
}

func (s *Sessions) insert(p Participant) {
	s.mu.Lock()
	s.byID[p.ConnID] = p
	s.mu.Unlock()
}

func (s *Sessions) lookup(connID string) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[connID]

	return p, ok
}

// remove is a no-op for unknown connections.
func (s *Sessions) remove(connID string) {
	s.mu.Lock()
	delete(s.byID, connID)
	s.mu.Unlock()
}

// group returns the participants bound to a group, sorted in catalog order so
// rosters come out deterministic.
func (s *Sessions) group(group int) []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Participant, 0, len(roleCatalog))
	for _, p := range s.byID {
		if p.Group == group {
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return roleIndex(out[i].Role) < roleIndex(out[j].Role)
	})

	return out
}
