package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/semcache/internal/config"
	"github.com/hyperjump/semcache/internal/resilience"
)

func newChatServer(t *testing.T, status int, reply string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if !strings.HasPrefix(req.Messages[0].Content, "Be brief. ") {
			t.Errorf("prefix missing: %q", req.Messages[0].Content)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testLLMConfig(url string) *config.LLMConfig {
	return &config.LLMConfig{
		Provider: ProviderOpenRouter,
		Model:    "openai/gpt-4o-mini",
		BaseURL:  url + "/api/v1",
		APIKey:   "sk-or",
		Prefix:   "Be brief.",
		Timeout:  5 * time.Second,
	}
}

func TestChatCompleter_Complete(t *testing.T) {
	var calls int32
	srv := newChatServer(t, http.StatusOK, "  Paris is the capital of France.\n", &calls)
	c, err := NewChatCompleter(testLLMConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Complete(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Paris is the capital of France." {
		t.Errorf("reply = %q", got)
	}
}

func TestChatCompleter_ErrorNotRetried(t *testing.T) {
	var calls int32
	srv := newChatServer(t, http.StatusBadGateway, "", &calls)
	c, err := NewChatCompleter(testLLMConfig(srv.URL), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Complete(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server calls = %d, want exactly 1", calls)
	}
}

func TestChatCompleter_BreakerOpens(t *testing.T) {
	var calls int32
	srv := newChatServer(t, http.StatusInternalServerError, "", &calls)
	cfg := testLLMConfig(srv.URL)
	cfg.Breaker = config.BreakerConfig{MinRequests: 2, Timeout: time.Minute}
	c, err := NewChatCompleter(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_, _ = c.Complete(ctx, "a")
	_, _ = c.Complete(ctx, "b")
	_, err = c.Complete(ctx, "c")
	if !resilience.IsOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("server calls = %d, want 2", calls)
	}
	if c.BreakerState() != "open" {
		t.Errorf("state = %s", c.BreakerState())
	}
}

func TestChatCompleter_RateLimitHonorsContext(t *testing.T) {
	var calls int32
	srv := newChatServer(t, http.StatusOK, "ok", &calls)
	cfg := testLLMConfig(srv.URL)
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	c, err := NewChatCompleter(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Complete(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "second"); err == nil {
		t.Error("expected rate limiter error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server calls = %d, want 1", calls)
	}
}

func TestNewChatCompleter_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
	}{
		{"bad provider", config.LLMConfig{Provider: "anthropic", Model: "m", BaseURL: "http://x"}},
		{"no model", config.LLMConfig{Provider: ProviderOpenAI, BaseURL: "http://x"}},
		{"no base url", config.LLMConfig{Provider: ProviderOpenAI, Model: "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewChatCompleter(&tt.cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestJoinPrefix(t *testing.T) {
	tests := []struct {
		prefix, prompt, want string
	}{
		{"", "q", "q"},
		{"Be brief.", "q", "Be brief. q"},
		{"Be brief. ", "q", "Be brief. q"},
	}
	for _, tt := range tests {
		if got := JoinPrefix(tt.prefix, tt.prompt); got != tt.want {
			t.Errorf("JoinPrefix(%q, %q) = %q, want %q", tt.prefix, tt.prompt, got, tt.want)
		}
	}
}

func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter(&config.LLMConfig{Provider: "mock", Prefix: "P"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Complete(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if got != "mock response: P q" {
		t.Errorf("mock reply = %q", got)
	}
	if _, err := NewCompleter(&config.LLMConfig{Provider: "nope"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
