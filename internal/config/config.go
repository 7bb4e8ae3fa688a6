// Package config provides configuration loading and structs for the semcache server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Index     IndexConfig     `yaml:"index"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BreakerConfig holds circuit breaker settings for a remote backend.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

// StoreConfig selects the durable record store.
type StoreConfig struct {
	// Type is "redis" or "sqlite".
	Type         string        `yaml:"type"`
	URL          string        `yaml:"url"`
	DatabasePath string        `yaml:"database_path"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// EmbeddingConfig holds embedding producer settings.
type EmbeddingConfig struct {
	// Provider is "openai", "onnx" or "mock".
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	ModelPath  string        `yaml:"model_path"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig holds completion producer settings.
type LLMConfig struct {
	// Provider is "openai", "openrouter" or "mock".
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Prefix            string        `yaml:"prefix"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// CacheConfig holds the partition and hit policy.
type CacheConfig struct {
	KeyPrefix  string  `yaml:"key_prefix"`
	Modality   string  `yaml:"modality"`
	TTLSeconds int     `yaml:"ttl_seconds"`
	Threshold  float64 `yaml:"threshold"`
	TopK       int     `yaml:"top_k"`
}

// Partition returns the record store key for this cache, "<key_prefix>:<modality>".
func (c *CacheConfig) Partition() string {
	return c.KeyPrefix + ":" + c.Modality
}

// TTL returns the partition expiry; 0 means no expiry.
func (c *CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// IndexConfig holds ANN index settings.
type IndexConfig struct {
	// Type is "hnsw" or "faiss".
	Type            string `yaml:"type"`
	InitialCapacity int    `yaml:"initial_capacity"`
	GrowthStep      int    `yaml:"growth_step"`
	M               int    `yaml:"m"`
	EfConstruction  int    `yaml:"ef_construction"`
	EfSearch        int    `yaml:"ef_search"`
}

// Load reads and parses the config file at path, expands ${VAR} references and paths,
// and applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.DatabasePath = expandPath(cfg.Store.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "redis", "sqlite":
	default:
		return fmt.Errorf("invalid store type %q (supported: redis, sqlite)", c.Store.Type)
	}
	if c.Cache.Threshold < -1 || c.Cache.Threshold > 1 {
		return fmt.Errorf("cache threshold must be in [-1, 1], got %v", c.Cache.Threshold)
	}
	if c.Cache.TopK < 0 {
		return fmt.Errorf("cache top_k must not be negative, got %d", c.Cache.TopK)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Index.GrowthStep <= 0 {
		return fmt.Errorf("index growth_step must be positive, got %d", c.Index.GrowthStep)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
