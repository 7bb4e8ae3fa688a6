package semcache

import "errors"

var (
	// ErrDimensionMismatch is returned when an embedding length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrBackend is returned when the record store fails or holds undecodable data.
	ErrBackend = errors.New("record store error")
	// ErrIndex is returned when the vector index rejects an operation.
	ErrIndex = errors.New("vector index error")
	// ErrInvalidState is returned for invalid arguments such as a negative k.
	ErrInvalidState = errors.New("invalid cache state")
)
