package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newEmbeddingServer(t *testing.T, status int, embedding []float32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req openAIEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" || req.Input == "" {
			t.Errorf("request = %+v", req)
		}
		if req.Dimensions == nil || *req.Dimensions != 3 {
			t.Errorf("dimensions not requested: %+v", req.Dimensions)
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": embedding, "index": 0}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAIEmbedder(t *testing.T, url string) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(OpenAIOptions{
		BaseURL:    url + "/v1/",
		APIKey:     "sk-test",
		Model:      "text-embedding-3-small",
		Dimensions: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusOK, []float32{0.1, 0.2, 0.3})
	e := newTestOpenAIEmbedder(t, srv.URL)
	emb, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 3 || emb[1] != 0.2 {
		t.Errorf("embedding = %v", emb)
	}
}

func TestOpenAIEmbedder_StatusError(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusUnauthorized, nil)
	e := newTestOpenAIEmbedder(t, srv.URL)
	_, err := e.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestOpenAIEmbedder_WrongLength(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusOK, []float32{1, 2})
	e := newTestOpenAIEmbedder(t, srv.URL)
	_, err := e.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Errorf("expected dimension error, got %v", err)
	}
}

func TestNewOpenAIEmbedder_Validation(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIOptions{Dimensions: 3}); err == nil {
		t.Error("expected error without model")
	}
	if _, err := NewOpenAIEmbedder(OpenAIOptions{Model: "m"}); err == nil {
		t.Error("expected error without dimensions")
	}
}
