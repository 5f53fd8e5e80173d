// Package domain defines shared domain constants, records, and their MongoDB repositories.
package domain

import "errors"

const (
	// RoleAdmin grants access to privileged bot commands and approval buttons.
	RoleAdmin = "admin"
	// RoleUser represents a standard user with no elevated privileges.
	RoleUser = "user"
)

// Lifecycle statuses shared by purchases and confessions.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ErrNotFound reports that a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// IsTerminalStatus reports whether status is one of the resolved states.
func IsTerminalStatus(status string) bool {
	return status == StatusApproved || status == StatusRejected
}
