package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an insert collides with the
	// unique email constraint on admins or users.
	ErrDuplicateEmail = errors.New("email already registered")
)
