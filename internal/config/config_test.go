package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
store:
  type: redis
  url: "redis://cache:6379/2"
cache:
  threshold: 0.9
  top_k: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Store.URL != "redis://cache:6379/2" {
		t.Errorf("store url = %s", cfg.Store.URL)
	}
	if cfg.Cache.Threshold != 0.9 || cfg.Cache.TopK != 3 {
		t.Errorf("unexpected cache policy: %+v", cfg.Cache)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, "debug: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %s, want debug", cfg.LogLevel)
	}
}

func TestLoad_expandsEnv(t *testing.T) {
	t.Setenv("SEMCACHE_TEST_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  api_key: "${SEMCACHE_TEST_KEY}"
embedding:
  api_key: "$SEMCACHE_TEST_KEY"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "sk-test-123" || cfg.Embedding.APIKey != "sk-test-123" {
		t.Errorf("api keys not expanded: llm=%q embedding=%q", cfg.LLM.APIKey, cfg.Embedding.APIKey)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
store:
  type: sqlite
  database_path: "./data/records.db"
embedding:
  model_path: "./models/model.onnx"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if want := filepath.Join(dir, "data", "records.db"); cfg.Store.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Store.DatabasePath, want)
	}
	if want := filepath.Join(dir, "models", "model.onnx"); cfg.Embedding.ModelPath != want {
		t.Errorf("model_path = %s, want %s", cfg.Embedding.ModelPath, want)
	}
}

func TestLoad_durations(t *testing.T) {
	path := writeConfig(t, `
llm:
  timeout: 5s
  breaker:
    timeout: 1m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Timeout != 5*time.Second {
		t.Errorf("llm timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.Breaker.Timeout != time.Minute {
		t.Errorf("breaker timeout = %v", cfg.LLM.Breaker.Timeout)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad store", "store:\n  type: memcached\n", "invalid store type"},
		{"threshold range", "cache:\n  threshold: 1.5\n", "threshold"},
		{"negative top_k", "cache:\n  top_k: -2\n", "top_k"},
		{"negative dims", "embedding:\n  dimensions: -1\n", "dimensions"},
		{"bad yaml", "server: [", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.Store.Type != "redis" {
		t.Errorf("default store type: got %s", cfg.Store.Type)
	}
	if cfg.Cache.Threshold != 0.8 || cfg.Cache.TopK != 5 {
		t.Errorf("default policy: got threshold=%v top_k=%d", cfg.Cache.Threshold, cfg.Cache.TopK)
	}
	if cfg.Cache.TTLSeconds != 3600 {
		t.Errorf("default ttl: got %d", cfg.Cache.TTLSeconds)
	}
	if cfg.Index.InitialCapacity != 1000 || cfg.Index.GrowthStep != 1000 {
		t.Errorf("default index sizing: got %+v", cfg.Index)
	}
	if cfg.Index.M != 16 || cfg.Index.EfConstruction != 200 || cfg.Index.EfSearch != 50 {
		t.Errorf("default graph parameters: got %+v", cfg.Index)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.LLM.Prefix != DefaultPrefix {
		t.Errorf("default prefix: got %q", cfg.LLM.Prefix)
	}
	if cfg.LLM.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("default llm base url: got %s", cfg.LLM.BaseURL)
	}
}

func TestApplyDefaults_openAIBaseURL(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "openai"}}
	ApplyDefaults(cfg)
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("openai base url: got %s", cfg.LLM.BaseURL)
	}
}

func TestCacheConfig_Partition(t *testing.T) {
	c := CacheConfig{KeyPrefix: "embeddings", Modality: "text"}
	if got := c.Partition(); got != "embeddings:text" {
		t.Errorf("Partition() = %s", got)
	}
}

func TestCacheConfig_TTL(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{3600, time.Hour},
		{0, 0},
		{-1, 0},
	}
	for _, tt := range tests {
		c := CacheConfig{TTLSeconds: tt.seconds}
		if got := c.TTL(); got != tt.want {
			t.Errorf("TTL(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 9090},
		Store:  StoreConfig{Type: "sqlite", DatabasePath: "/tmp/records.db"},
		LLM:    LLMConfig{Timeout: 10 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Store.Type != "sqlite" || loaded.Store.DatabasePath != "/tmp/records.db" {
		t.Errorf("loaded store: got %+v", loaded.Store)
	}
	if loaded.LLM.Timeout != 10*time.Second {
		t.Errorf("loaded llm timeout: got %v", loaded.LLM.Timeout)
	}
}
