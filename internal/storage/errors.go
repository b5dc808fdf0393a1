package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCorruptState is returned when persisted indexer state cannot be
	// parsed. Fatal at startup: running without a trustworthy seen-set
	// would break the at-most-one-attempt guarantee.
	ErrCorruptState = errors.New("corrupt state file")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
