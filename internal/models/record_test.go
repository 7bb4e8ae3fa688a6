package models

import (
	"math"
	"reflect"
	"testing"
)

func TestEmbeddingRecord_RoundTrip(t *testing.T) {
	rec := &EmbeddingRecord{
		ID:        42,
		Query:     "What is Chicago known for?",
		Embedding: []float32{0.1, -0.25, float32(math.Pi), 1e-7},
		Response:  "Deep dish pizza.",
		Timestamp: 1700000000,
	}
	raw, err := rec.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalRecord(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec, got) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestUnmarshalRecord_Invalid(t *testing.T) {
	if _, err := UnmarshalRecord("{not json"); err == nil {
		t.Error("expected error for malformed record")
	}
}

func TestFieldForID(t *testing.T) {
	rec := &EmbeddingRecord{ID: 1000}
	if rec.Field() != "1000" {
		t.Errorf("Field() = %q", rec.Field())
	}
}
