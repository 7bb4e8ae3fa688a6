package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeHNSW is the pure-Go HNSW graph (default).
	IndexTypeHNSW IndexType = "hnsw"
	// IndexTypeFAISS uses a FAISS HNSW index.
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an uninitialized index of the given type.
// Supported types: "hnsw" (default), "faiss".
func NewIndex(indexType string, opts HNSWOptions) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeHNSW, "":
		return NewHNSWIndex(opts), nil
	case IndexTypeFAISS:
		return NewFAISSIndex()
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: hnsw, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex()
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
