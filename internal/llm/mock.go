package llm

import (
	"context"
	"sync/atomic"
)

// MockCompleter answers every prompt locally, for tests and offline runs.
type MockCompleter struct {
	prefix string
	calls  atomic.Int64
}

// NewMockCompleter returns a completer that echoes the prefixed prompt.
func NewMockCompleter(prefix string) *MockCompleter {
	return &MockCompleter{prefix: prefix}
}

// Complete returns a deterministic reply for prompt.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.calls.Add(1)
	return "mock response: " + JoinPrefix(m.prefix, prompt), nil
}

// Calls returns how many completions were produced.
func (m *MockCompleter) Calls() int64 {
	return m.calls.Load()
}
