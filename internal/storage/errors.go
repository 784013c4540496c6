package storage

import "errors"

// Storage errors shared by all TokenStore implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a record fails create-time
	// validation; the record is skipped, never partially persisted.
	ErrInvalidInput = errors.New("invalid input")
)
