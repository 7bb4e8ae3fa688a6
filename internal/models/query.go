package models

import (
	"fmt"
	"strings"
)

// QueryRequest is the input of a cached completion request.
type QueryRequest struct {
	Prompt string `json:"prompt"`
}

// Validate trims the prompt and rejects empty prompts.
func (q *QueryRequest) Validate() error {
	q.Prompt = strings.TrimSpace(q.Prompt)
	if q.Prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}
	return nil
}

// SearchRequest is a raw nearest-neighbor lookup against the cache.
type SearchRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k,omitempty"`
}

// Validate applies the default k and rejects an empty embedding.
func (s *SearchRequest) Validate(defaultK int) error {
	if len(s.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}
	if s.K == 0 {
		s.K = defaultK
	}
	if s.K < 0 {
		return fmt.Errorf("k must not be negative")
	}
	return nil
}

// StoreRequest writes a prompt/response pair with a precomputed embedding.
type StoreRequest struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Response  string    `json:"response"`
}

// Validate rejects requests missing a query or an embedding.
func (s *StoreRequest) Validate() error {
	if strings.TrimSpace(s.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if len(s.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}
	return nil
}
