package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness or version precondition failed.
	ErrConflict = errors.New("repository: conflict")
)
