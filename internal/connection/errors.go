package connection

import "errors"

var (
	// ErrNoStaff means no staff account exists. Callers treat it as terminal:
	// the event is logged and abandoned.
	ErrNoStaff = errors.New("no staff account available")
	// ErrInvalidPair is returned when a chat pair does not consist of exactly
	// one regular user and one staff member.
	ErrInvalidPair = errors.New("a room pairs one user with one staff member")
)
