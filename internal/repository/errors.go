package repository

import "errors"

var (
	// ErrDuplicate is returned when an insert hits a unique index.
	ErrDuplicate = errors.New("duplicate record")
	// ErrVersionMismatch is returned when a row changed since it was read.
	ErrVersionMismatch = errors.New("record was modified concurrently")
)
