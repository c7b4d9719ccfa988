// Answerbox game engine
//
// Participants connect over WebSockets and claim one of six fixed roles (A-F)
// within a numbered group. Role B is the hub: it may exchange private messages
// with every other role, while all other roles may only message B. Role C
// eventually submits the group's final answer, which is broadcast to everyone
// in that group.
//
// The engine owns all mutable session state: the slot registry, the session
// store, and one outbound event channel per connection. Request handling is
// synchronous (each operation returns its outcome to the caller), while
// pushes to other connections ride the per-connection channels drained by the
// transport's write pump.

package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Sentinel errors mirror the outcomes a caller can act on. None of them are
// fatal to the connection.
var (
	errInvalidInput       = errors.New("invalid input")
	errRolesExhausted     = errors.New("all roles in this group are taken")
	errRoleOccupied       = errors.New("role already occupied")
	errUnauthorized       = errors.New("not registered")
	errDirectionForbidden = errors.New("direction forbidden")
	errForbidden          = errors.New("only role " + string(roleAnswer) + " may submit the final answer")
	errRecipientNotFound  = errors.New("recipient not found in group")
)

// SessionInfoMessage is pushed once per new connection so the registration UI
// can offer a valid group range.
type SessionInfoMessage struct {
	Type   string `json:"type"` // "session_info"
	Groups int    `json:"groups"`
}

// RegisteredMessage confirms a successful registration or reconnection to the
// registrant only. The echoed role is authoritative.
type RegisteredMessage struct {
	Type  string `json:"type"` // "registered"
	OK    bool   `json:"ok"`
	Role  Role   `json:"role"`
	Name  string `json:"name"`
	Group int    `json:"group"`
}

// CardMessage carries the role card tag the client resolves into an asset.
type CardMessage struct {
	Type  string `json:"type"` // "card"
	Role  Role   `json:"role"`
	Image string `json:"image"`
}

type PlayerInfo struct {
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Group int    `json:"group"`
}

// PlayersUpdateMessage is the roster snapshot broadcast on every membership
// change, scoped to the affected group.
type PlayersUpdateMessage struct {
	Type    string       `json:"type"` // "players_update"
	Players []PlayerInfo `json:"players"`
}

// PrivateMessage is delivered to exactly one recipient, at most once.
type PrivateMessage struct {
	Type      string `json:"type"` // "private_message"
	FromRole  Role   `json:"fromRole"`
	FromName  string `json:"fromName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // server clock, unix milliseconds
}

// GameResultMessage is fanned out to every connection in the submitter's
// group, including the submitter.
type GameResultMessage struct {
	Type    string `json:"type"` // "game_result"
	Message string `json:"message"`
}

const outboxSize = 16

// Game owns the registry, the session store, and the per-connection outbound
// event channels. Compound mutations are serialized by mu; registry claims
// are additionally indivisible on their own, so two concurrent claims of one
// (group, role) can never both succeed.
type Game struct {
	cfg *Config

	mu       sync.Mutex
	registry *Registry
	sessions *Sessions
	outboxes map[string]chan any
}

func newGame(cfg *Config) *Game {
	return &Game{
		cfg:      cfg,
		registry: newRegistry(),
		sessions: newSessions(),
		outboxes: make(map[string]chan any),
	}
}

// attach allocates the outbound event stream for a new connection and
// announces the group bound for the registration UI.
func (g *Game) attach(connID string) <-chan any {
	ch := make(chan any, outboxSize)

	g.mu.Lock()
	g.outboxes[connID] = ch
	g.mu.Unlock()

	ch <- SessionInfoMessage{Type: "session_info", Groups: g.cfg.groups}

	return ch
}

// push delivers an event to one connection's outbox without blocking. A full
// outbox drops the event; delivery is fire-and-forget, and a later roster
// broadcast self-corrects any missed snapshot.
func (g *Game) push(connID string, msg any) {
	g.mu.Lock()
	g.pushLocked(connID, msg)
	g.mu.Unlock()
}

func (g *Game) pushLocked(connID string, msg any) {
	ch, ok := g.outboxes[connID]
	if !ok {
		return
	}

	select {
	case ch <- msg:
	default:
	}
}

// register assigns the first free role, in catalog order, within the chosen
// group. Group 0 means "unspecified" and defaults to group 1; an explicitly
// out-of-range group is rejected.
func (g *Game) register(connID, name string, group int) (Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, errInvalidInput
	}

	switch {
	case group == 0:
		group = 1
	case group < 1 || group > g.cfg.groups:
		return Participant{}, errInvalidInput
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev, wasBound := g.sessions.lookup(connID)

	// Scan the catalog, claiming the first free slot. Each claim is atomic,
	// so a concurrent registrant racing for the same slot loses the claim
	// and falls through to the next role.
	var assigned Role
	claimed := false
	for _, r := range roleCatalog {
		if g.registry.claim(group, r, connID) {
			assigned = r
			claimed = true
			break
		}
	}
	if !claimed {
		return Participant{}, errRolesExhausted
	}

	p := Participant{ConnID: connID, Name: name, Role: assigned, Group: group}
	g.sessions.insert(p)

	logf(g.cfg, "GAME: Player %q joined group %d as %s", p.Name, p.Group, p.Role)

	g.pushLocked(connID, RegisteredMessage{Type: "registered", OK: true, Role: p.Role, Name: p.Name, Group: p.Group})
	g.pushLocked(connID, CardMessage{Type: "card", Role: p.Role, Image: p.Role.cardImage()})
	g.broadcastRosterLocked(p.Group)

	// A re-registering connection vacated its previous slot.
	if wasBound && prev.Group != p.Group {
		g.broadcastRosterLocked(prev.Group)
	}

	return p, nil
}

// reconnect resumes a previously-held identity. The caller dictates the role
// it is resuming; a live holder of that (group, role) is never displaced.
func (g *Game) reconnect(connID, name string, role Role, group int) (Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" || !role.valid() || group < 1 || group > g.cfg.groups {
		return Participant{}, errInvalidInput
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	prev, wasBound := g.sessions.lookup(connID)

	if !g.registry.claim(group, role, connID) {
		return Participant{}, errRoleOccupied
	}

	p := Participant{ConnID: connID, Name: name, Role: role, Group: group}
	g.sessions.insert(p)

	logf(g.cfg, "GAME: Player %q resumed role %s in group %d", p.Name, p.Role, p.Group)

	g.pushLocked(connID, RegisteredMessage{Type: "registered", OK: true, Role: p.Role, Name: p.Name, Group: p.Group})
	g.pushLocked(connID, CardMessage{Type: "card", Role: p.Role, Image: p.Role.cardImage()})
	g.broadcastRosterLocked(p.Group)

	if wasBound && prev.Group != p.Group {
		g.broadcastRosterLocked(prev.Group)
	}

	return p, nil
}

// sendMessage routes a private message to the unique connection holding
// toRole in the sender's group. Delivery is at-most-once; nothing is queued
// or retried, and the sender receives no echo.
func (g *Game) sendMessage(connID string, toRole Role, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.sessions.lookup(connID)
	if !ok {
		return errUnauthorized
	}

	if !canMessage(from.Role, toRole) {
		return errDirectionForbidden
	}

	dest, ok := g.registry.find(from.Group, toRole)
	if !ok {
		return errRecipientNotFound
	}

	g.pushLocked(dest, PrivateMessage{
		Type:      "private_message",
		FromRole:  from.Role,
		FromName:  from.Name,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})

	return nil
}

// submitAnswer fans the final answer out to every connection bound to the
// submitter's group, including the submitter.
func (g *Game) submitAnswer(connID, answer string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.sessions.lookup(connID)
	if !ok {
		return errUnauthorized
	}

	if from.Role != roleAnswer {
		return errForbidden
	}

	logf(g.cfg, "GAME: Player %q (%s) submitted the final answer in group %d", from.Name, from.Role, from.Group)

	msg := GameResultMessage{
		Type:    "game_result",
		Message: fmt.Sprintf("Player %s (%s) submitted the final answer: %s", from.Name, from.Role, answer),
	}
	for _, p := range g.sessions.group(from.Group) {
		g.pushLocked(p.ConnID, msg)
	}

	return nil
}

// disconnect releases everything a connection holds and closes its outbox.
// Safe for connections that never registered, and under duplicate close
// notifications.
func (g *Game) disconnect(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ch, ok := g.outboxes[connID]; ok {
		delete(g.outboxes, connID)
		close(ch)
	}

	p, ok := g.sessions.lookup(connID)
	if !ok {
		g.registry.release(connID)
		return
	}

	logf(g.cfg, "GAME: Player %q (%s) left group %d", p.Name, p.Role, p.Group)

	g.sessions.remove(connID)
	g.registry.release(connID)
	g.broadcastRosterLocked(p.Group)
}

// broadcastRosterLocked sends the group's current roster snapshot to every
// connection bound to that group. Assumes g.mu is held.
func (g *Game) broadcastRosterLocked(group int) {
	players := g.sessions.group(group)

	infos := make([]PlayerInfo, 0, len(players))
	for _, p := range players {
		infos = append(infos, PlayerInfo{Name: p.Name, Role: p.Role, Group: p.Group})
	}

	msg := PlayersUpdateMessage{Type: "players_update", Players: infos}
	for _, p := range players {
		g.pushLocked(p.ConnID, msg)
	}
}
