package storage

import "errors"

var (
	// ErrPetNotFound is returned when no pet document has the requested ID
	ErrPetNotFound = errors.New("pet not found")

	// ErrConflict is returned when a write carries a stale or missing revision
	ErrConflict = errors.New("document update conflict")

	// ErrDatabaseClosed is returned by calls made after Close
	ErrDatabaseClosed = errors.New("database is closed")
)
