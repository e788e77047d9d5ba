// Package runner walks a scenario graph on behalf of one virtual user.
package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/wesleyorama2/swarm/internal/session"
)

// VirtualUser is one simulated client. It is owned by a single goroutine.
type VirtualUser struct {
	ID int64
	// SpawnOffset is the scheduled offset from the run start.
	SpawnOffset time.Duration
	Session     *session.Session

	position string
}

// NewVirtualUser creates a user with an empty session seeded from seed.
func NewVirtualUser(id int64, offset time.Duration, seed uint64) *VirtualUser {
	return &VirtualUser{
		ID:          id,
		SpawnOffset: offset,
		Session:     session.New(id, seed),
	}
}

// Position returns the name of the action the user is on, or the last one
// it ran.
func (u *VirtualUser) Position() string { return u.position }

// Policy decides what happens after a failed step.
type Policy int

const (
	// ContinueOnFailure records the failure and moves to the next sibling.
	ContinueOnFailure Policy = iota
	// StopOnFailure ends the user's walk at the first failed step.
	StopOnFailure
)

func (p Policy) String() string {
	if p == StopOnFailure {
		return "fail-fast"
	}
	return "continue"
}

// ParsePolicy accepts "continue" and "fail-fast". The empty string is
// ContinueOnFailure.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return ContinueOnFailure, nil
	case "fail-fast", "failfast", "stop":
		return StopOnFailure, nil
	}
	return ContinueOnFailure, fmt.Errorf("unknown failure policy %q", s)
}
