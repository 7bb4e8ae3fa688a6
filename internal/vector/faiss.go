//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/index_factory_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/hyperjump/semcache/pkg/utils"
)

// faissDescription selects an HNSW graph over flat storage. Vectors are
// L2-normalized and searched by inner product, so 1 - score is the cosine distance.
const faissDescription = "HNSW32,Flat"

// FAISSIndex is an ANN index backed by a FAISS HNSW index.
// FAISS assigns sequential labels; labels maps them back to record ids.
type FAISSIndex struct {
	index       *C.FaissIndex
	labels      []uint64
	points      []point
	capacity    int
	dimensions  int
	initialized bool
	mu          sync.Mutex
}

// NewFAISSIndex returns an uninitialized FAISS index; call Init before Insert.
func NewFAISSIndex() (*FAISSIndex, error) {
	return &FAISSIndex{}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

func newFaissHNSW(dimensions int) (*C.FaissIndex, error) {
	desc := C.CString(faissDescription)
	defer C.free(unsafe.Pointer(desc))
	var index *C.FaissIndex
	if ret := C.faiss_index_factory(&index, C.int(dimensions), desc, C.METRIC_INNER_PRODUCT); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return index, nil
}

func (f *FAISSIndex) addLocked(index *C.FaissIndex, vec []float32) error {
	ret := C.faiss_Index_add(index, 1, (*C.float)(unsafe.Pointer(&vec[0])))
	if ret != 0 {
		return fmt.Errorf("failed to add vector to FAISS index: %s", faissLastError())
	}
	return nil
}

func (f *FAISSIndex) freeLocked() {
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
}

// Init discards all points and creates an empty FAISS index.
func (f *FAISSIndex) Init(capacity, dimensions int) error {
	if capacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	index, err := newFaissHNSW(dimensions)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freeLocked()
	f.index = index
	f.labels = make([]uint64, 0, capacity)
	f.points = make([]point, 0, capacity)
	f.capacity = capacity
	f.dimensions = dimensions
	f.initialized = true
	return nil
}

// Insert normalizes and adds a point.
func (f *FAISSIndex) Insert(vector []float32, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return ErrNotInitialized
	}
	if len(vector) != f.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), f.dimensions)
	}
	if len(f.points) >= f.capacity {
		return fmt.Errorf("%w: capacity %d", ErrIndexFull, f.capacity)
	}
	vec := utils.CloneVector(vector)
	utils.NormalizeL2(vec)
	if err := f.addLocked(f.index, vec); err != nil {
		return err
	}
	f.labels = append(f.labels, id)
	f.points = append(f.points, point{id: id, vector: vec})
	return nil
}

// Grow rebuilds the FAISS index from the point log.
func (f *FAISSIndex) Grow(newCapacity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return ErrNotInitialized
	}
	if newCapacity < len(f.points) {
		return fmt.Errorf("%w: %d is below current count %d", ErrInvalidCapacity, newCapacity, len(f.points))
	}
	index, err := newFaissHNSW(f.dimensions)
	if err != nil {
		return err
	}
	labels := make([]uint64, 0, newCapacity)
	for _, p := range f.points {
		if err := f.addLocked(index, p.vector); err != nil {
			C.faiss_Index_free(index)
			return err
		}
		labels = append(labels, p.id)
	}
	f.freeLocked()
	f.index = index
	f.labels = labels
	f.capacity = newCapacity
	return nil
}

// Count returns the number of inserted points.
func (f *FAISSIndex) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// Capacity returns the configured maximum number of points.
func (f *FAISSIndex) Capacity() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity
}

// Dimensions returns the vector length, 0 before Init.
func (f *FAISSIndex) Dimensions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dimensions
}

// SearchKNN returns up to k nearest points by cosine distance, closest first.
func (f *FAISSIndex) SearchKNN(query []float32, k int) ([]Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return nil, ErrNotInitialized
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	if k <= 0 || len(f.points) == 0 {
		return nil, nil
	}
	if k > len(f.points) {
		k = len(f.points)
	}
	q := utils.CloneVector(query)
	utils.NormalizeL2(q)

	scores := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&q[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&scores[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	results := make([]Neighbor, 0, k)
	for i := 0; i < k; i++ {
		label := labels[i]
		if label < 0 || int(label) >= len(f.labels) {
			continue
		}
		results = append(results, Neighbor{
			ID:       f.labels[label],
			Distance: 1 - float64(scores[i]),
		})
	}
	return results, nil
}

// Close frees the FAISS index.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freeLocked()
	f.points = nil
	f.labels = nil
	f.initialized = false
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
