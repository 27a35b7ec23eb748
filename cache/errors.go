package cache

import "errors"

var (
	// ErrMismatchedInput indicates keys and texts of different lengths were
	// passed to a batch operation.
	ErrMismatchedInput = errors.New("keys and texts length mismatch")

	// ErrVectorCountMismatch indicates a compute returned a different number
	// of vectors than texts it was given. Nothing from such a batch is cached.
	ErrVectorCountMismatch = errors.New("compute returned wrong number of vectors")
)
