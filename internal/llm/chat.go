package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/semcache/internal/config"
	"github.com/hyperjump/semcache/internal/resilience"
	"github.com/hyperjump/semcache/pkg/utils"
)

// Supported chat completion providers.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

// ChatCompleter calls an OpenAI-compatible /chat/completions endpoint.
// Requests are rate limited client-side and pass through a circuit breaker; they are never retried.
type ChatCompleter struct {
	provider   string
	baseURL    string
	apiKey     string
	model      string
	prefix     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	logger     *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewChatCompleter creates a completer for cfg.Provider.
func NewChatCompleter(cfg *config.LLMConfig, logger *zap.Logger) (*ChatCompleter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Provider != ProviderOpenAI && cfg.Provider != ProviderOpenRouter {
		return nil, fmt.Errorf("unsupported chat provider: %s", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("llm base_url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &ChatCompleter{
		provider:   cfg.Provider,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		prefix:     cfg.Prefix,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:         "llm-" + cfg.Provider,
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
		}, logger),
		logger: logger,
	}, nil
}

// Complete sends prefix and prompt as one user message and returns the trimmed reply.
func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	var reply string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		reply, err = c.complete(ctx, prompt)
		return err
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *ChatCompleter) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: JoinPrefix(c.prefix, prompt)}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.provider == ProviderOpenRouter {
		req.Header.Set("X-Title", "semcache")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("completion response",
		zap.String("provider", c.provider),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API error (status %d): %s", c.provider, resp.StatusCode, utils.Truncate(string(data), 512))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s API error: %s", c.provider, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// BreakerState returns the state of the provider circuit breaker.
func (c *ChatCompleter) BreakerState() string {
	return c.breaker.State()
}

// JoinPrefix prepends prefix to prompt, separated by a space.
func JoinPrefix(prefix, prompt string) string {
	if prefix == "" {
		return prompt
	}
	return strings.TrimRight(prefix, " ") + " " + prompt
}
