package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplication is returned when a write would violate the pubkey
	// uniqueness invariant.
	ErrDuplication = errors.New("duplicate entry")
)
