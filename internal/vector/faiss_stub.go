//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"errors"
)

var errFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex() (*FAISSIndex, error) {
	return nil, errFAISSUnavailable
}

// Init is not implemented without FAISS.
func (f *FAISSIndex) Init(capacity, dimensions int) error { return errFAISSUnavailable }

// Insert is not implemented without FAISS.
func (f *FAISSIndex) Insert(vector []float32, id uint64) error { return errFAISSUnavailable }

// Grow is not implemented without FAISS.
func (f *FAISSIndex) Grow(newCapacity int) error { return errFAISSUnavailable }

// Count returns 0 without FAISS.
func (f *FAISSIndex) Count() int { return 0 }

// Capacity returns 0 without FAISS.
func (f *FAISSIndex) Capacity() int { return 0 }

// Dimensions returns 0 without FAISS.
func (f *FAISSIndex) Dimensions() int { return 0 }

// SearchKNN is not implemented without FAISS.
func (f *FAISSIndex) SearchKNN(query []float32, k int) ([]Neighbor, error) {
	return nil, errFAISSUnavailable
}

// Close is a no-op without FAISS.
func (f *FAISSIndex) Close() error { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }
