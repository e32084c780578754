// Package repository holds sentinels shared by the entity repositories.
package repository

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional update matched no document,
	// meaning the record's state moved underneath the caller. Transition code
	// treats this as a lost race, never as data loss.
	ErrConflict = errors.New("state conflict")
)
