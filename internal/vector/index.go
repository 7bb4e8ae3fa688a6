// Package vector provides approximate nearest-neighbor indexes and similarity helpers.
package vector

import "errors"

var (
	// ErrNotInitialized is returned when an index is used before Init.
	ErrNotInitialized = errors.New("vector index not initialized")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexFull is returned by Insert when count has reached capacity.
	ErrIndexFull = errors.New("vector index is full")
	// ErrInvalidCapacity is returned for negative capacities or a shrinking Grow.
	ErrInvalidCapacity = errors.New("invalid vector index capacity")
)

// Index is a growable ANN index over points identified by uint64 ids.
// Implementations keep their own log of inserted points so that Grow can
// rebuild the structure at a larger capacity.
type Index interface {
	// Init (re)creates an empty index for capacity points of the given dimension.
	Init(capacity, dimensions int) error
	// Insert adds a point. The vector is copied.
	Insert(vector []float32, id uint64) error
	// Grow rebuilds the index at newCapacity, re-inserting every point.
	Grow(newCapacity int) error
	Count() int
	Capacity() int
	Dimensions() int
	// SearchKNN returns up to k neighbors ordered by ascending cosine distance.
	// Callers clamp k to Count.
	SearchKNN(query []float32, k int) ([]Neighbor, error)
	Type() string
	Close() error
}

// Neighbor is a single k-NN hit.
type Neighbor struct {
	ID       uint64
	Distance float64 // cosine distance, 0 for identical direction
}

// point is one logged insertion, replayed by Grow.
type point struct {
	id     uint64
	vector []float32
}
