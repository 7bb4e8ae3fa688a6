// Package models defines core data structures for cached records, queries, and results.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EmbeddingRecord is the durable unit of cached knowledge: one answered prompt.
// ID doubles as the record-store field and the vector index point id.
type EmbeddingRecord struct {
	ID        uint64    `json:"id"`
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Response  string    `json:"response"`
	Timestamp int64     `json:"timestamp"` // unix seconds, informational only
}

// Field returns the record-store field name for the record.
func (r *EmbeddingRecord) Field() string {
	return FieldForID(r.ID)
}

// FieldForID formats an id as a record-store field name.
func FieldForID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Marshal serializes the record as a JSON object.
func (r *EmbeddingRecord) Marshal() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record %d: %w", r.ID, err)
	}
	return string(data), nil
}

// UnmarshalRecord parses a record previously produced by Marshal.
func UnmarshalRecord(raw string) (*EmbeddingRecord, error) {
	var rec EmbeddingRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}
