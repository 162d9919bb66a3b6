package storage

import "errors"

// Sentinel errors for domain-level storage outcomes. Anything else returned
// by a store is an infrastructure fault and is wrapped with context.
var (
	// ErrNotFound is returned by mutating operations that require an
	// existing row. Point lookups return (nil, nil) instead.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when an insert violates URL uniqueness.
	ErrConflict = errors.New("url already registered")
)
