// Package domain contains the shared-session entities, no transport or lifecycle logic.
package domain

import (
	"errors"
	"strings"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type (
	// ConnectionID is assigned by the relay, one per socket.
	ConnectionID string
	SessionID    string
)

type Participant struct {
	ID       ConnectionID `json:"socketId"`
	Username string       `json:"username"`
	Speaking bool         `json:"speaking,omitempty"`
}

// NormalizeUsername trims and validates a display name.
func NormalizeUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}

// Roster is the authoritative member list in join order.
type Roster []Participant

func (r Roster) Contains(id ConnectionID) bool {
	return r.IndexOf(id) >= 0
}

func (r Roster) IndexOf(id ConnectionID) int {
	for i, p := range r {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns an independent copy safe to hand to a view.
func (r Roster) Clone() Roster {
	if r == nil {
		return nil
	}
	out := make(Roster, len(r))
	copy(out, r)
	return out
}
