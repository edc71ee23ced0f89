package store

import "errors"

// Sentinel errors shared by every backend.
var (
	// ErrNotFound is returned when a category or book does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when a write would break a uniqueness constraint.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a concurrent session changed data this session read.
	ErrConflict = errors.New("store: conflicting concurrent update")

	// ErrIDSpaceExhausted is returned when every category id has been handed out.
	ErrIDSpaceExhausted = errors.New("store: category id space exhausted")

	// ErrSessionDone is returned when a committed or discarded session is used.
	ErrSessionDone = errors.New("store: session already committed or discarded")
)

// MaxCategoryID is the largest id a category can be assigned.
const MaxCategoryID = 1<<16 - 1
