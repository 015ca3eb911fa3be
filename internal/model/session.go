package model

import "strings"

// User is the authenticated account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

// DisplayName returns the full name, falling back to the username.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Tokens is the JWT pair issued at login.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthResult is the outcome of an auth operation. Auth operations report
// failure here instead of returning an error.
type AuthResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	User    *User  `json:"user,omitempty"`
}

// MutationEvent records the outcome of one optimistic mutation.
type MutationEvent struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	EntityID int64  `json:"entity_id"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
	At       Date   `json:"at"`
}

// Mutation outcomes.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)
