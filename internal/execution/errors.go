package execution

import "errors"

var (
	// ErrNoBuilder means no transaction builder is registered for the
	// opportunity's program.
	ErrNoBuilder = errors.New("no transaction builder for program")

	// ErrBelowMinTokens means the computed token output fell below the
	// builder's configured minimum.
	ErrBelowMinTokens = errors.New("token output below minimum")
)
