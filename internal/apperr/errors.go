// Package apperr holds the sentinel errors shared across slipbox packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidPath   = errors.New("invalid path")

	// ErrTargetNotFound aborts a backlink resolution: the queried note
	// does not exist or cannot be canonicalized.
	ErrTargetNotFound = errors.New("target not found")
)
