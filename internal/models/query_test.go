package models

import (
	"testing"
)

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *QueryRequest
		wantErr bool
		want    string
	}{
		{"empty prompt", &QueryRequest{Prompt: ""}, true, ""},
		{"blank prompt", &QueryRequest{Prompt: "   \n"}, true, ""},
		{"valid prompt", &QueryRequest{Prompt: "hello"}, false, "hello"},
		{"trims prompt", &QueryRequest{Prompt: "  hello  "}, false, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.Prompt != tt.want {
				t.Errorf("Prompt = %q, want %q", tt.query.Prompt, tt.want)
			}
		})
	}
}

func TestSearchRequest_Validate(t *testing.T) {
	s := &SearchRequest{Embedding: []float32{1}}
	if err := s.Validate(5); err != nil {
		t.Fatal(err)
	}
	if s.K != 5 {
		t.Errorf("default k: got %d", s.K)
	}
	if err := (&SearchRequest{}).Validate(5); err == nil {
		t.Error("expected error for empty embedding")
	}
	if err := (&SearchRequest{Embedding: []float32{1}, K: -1}).Validate(5); err == nil {
		t.Error("expected error for negative k")
	}
}

func TestStoreRequest_Validate(t *testing.T) {
	if err := (&StoreRequest{Query: "q", Embedding: []float32{1}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&StoreRequest{Embedding: []float32{1}}).Validate(); err == nil {
		t.Error("expected error for missing query")
	}
	if err := (&StoreRequest{Query: "q"}).Validate(); err == nil {
		t.Error("expected error for missing embedding")
	}
}
