/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

// Role identifies one of the six fixed seats within a group. The catalog is
// closed; roles are never created or destroyed at runtime.
type Role string

const (
	roleA Role = "A"
	roleB Role = "B"
	roleC Role = "C"
	roleD Role = "D"
	roleE Role = "E"
	roleF Role = "F"

	// roleHub may exchange messages with every other role; all other roles
	// may only message the hub.
	roleHub = roleB

	// roleAnswer is the only role allowed to submit the final answer.
	roleAnswer = roleC
)

// roleCatalog fixes both the assignment order and the roster sort order.
var roleCatalog = []Role{roleA, roleB, roleC, roleD, roleE, roleF}

func (r Role) valid() bool {
	for _, c := range roleCatalog {
		if r == c {
			return true
		}
	}

	return false
}

func roleIndex(r Role) int {
	for i, c := range roleCatalog {
		if r == c {
			return i
		}
	}

	return len(roleCatalog)
}

// cardImage returns the tag the client resolves into a role card asset.
func (r Role) cardImage() string {
	return "/cards/" + string(r) + ".jpg"
}

// canMessage reports whether a private message from one role to another is
// permitted. The rule is independent of group and recipient presence: the hub
// may message any other role, and every other role may message only the hub.
// Unknown destination roles are never permitted.
func canMessage(from, to Role) bool {
	if !to.valid() {
		return false
	}

	if from == roleHub {
		return to != roleHub
	}

	return to == roleHub
}
