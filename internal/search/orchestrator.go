// Package search answers prompts from the semantic cache, falling back to the
// completion model on a miss.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/semcache/internal/embedding"
	"github.com/hyperjump/semcache/internal/llm"
	"github.com/hyperjump/semcache/internal/models"
	"github.com/hyperjump/semcache/internal/vector"
)

// Cache is the engine surface the orchestrator needs.
type Cache interface {
	Search(ctx context.Context, embedding []float32, k int) ([]*models.EmbeddingRecord, error)
	Store(ctx context.Context, query string, embedding []float32, response string) (*models.EmbeddingRecord, error)
}

// Policy decides what counts as a hit.
type Policy struct {
	// Threshold is the cosine similarity a candidate must exceed to be served.
	Threshold float64 `json:"threshold"`
	// TopK is the number of candidates fetched from the index.
	TopK int `json:"top_k"`
}

// Validate rejects policies that can never be applied.
func (p Policy) Validate() error {
	if p.Threshold < -1 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be in [-1, 1], got %v", p.Threshold)
	}
	if p.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", p.TopK)
	}
	return nil
}

// Orchestrator runs the embed, search, decide, complete and store steps for one prompt.
type Orchestrator struct {
	cache     Cache
	embedder  embedding.Embedder
	completer llm.Completer
	logger    *zap.Logger

	mu     sync.RWMutex
	policy Policy

	statsMu sync.Mutex
	hits    uint64
	misses  uint64
	simSum  float64
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cache Cache, embedder embedding.Embedder, completer llm.Completer, policy Policy, logger *zap.Logger) (*Orchestrator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cache:     cache,
		embedder:  embedder,
		completer: completer,
		logger:    logger,
		policy:    policy,
	}, nil
}

// Policy returns the current hit policy.
func (o *Orchestrator) Policy() Policy {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.policy
}

// SetPolicy replaces the hit policy for subsequent queries.
func (o *Orchestrator) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	old := o.policy
	o.policy = p
	o.mu.Unlock()
	if old != p {
		o.logger.Info("cache policy updated",
			zap.Float64("threshold", p.Threshold),
			zap.Int("top_k", p.TopK))
	}
	return nil
}

// Query returns a cached response when a stored prompt is similar enough, otherwise a
// fresh completion which is then cached. Embedding, cache and completion errors are
// returned as is; nothing is retried.
func (o *Orchestrator) Query(ctx context.Context, prompt string) (*models.QueryResult, error) {
	start := time.Now()
	policy := o.Policy()
	result := &models.QueryResult{
		RequestID: uuid.NewString(),
		Prompt:    prompt,
	}

	emb, err := o.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	candidates, err := o.cache.Search(ctx, emb, policy.TopK)
	if err != nil {
		return nil, fmt.Errorf("cache search failed: %w", err)
	}
	result.Candidates = len(candidates)

	best, bestSim := o.bestCandidate(emb, candidates)
	if best != nil {
		result.BestCandidate = best
		result.Similarity = bestSim
	}

	if best != nil && bestSim > policy.Threshold {
		result.Hit = true
		result.Response = best.Response
		o.recordHit(bestSim)
		result.QueryTime = time.Since(start).Milliseconds()
		o.logger.Debug("cache hit",
			zap.String("request_id", result.RequestID),
			zap.Uint64("record_id", best.ID),
			zap.Float64("similarity", bestSim))
		return result, nil
	}

	response, err := o.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	stored, err := o.cache.Store(ctx, prompt, emb, response)
	if err != nil {
		return nil, fmt.Errorf("cache store failed: %w", err)
	}
	result.Response = response
	result.Stored = stored
	o.recordMiss()
	result.QueryTime = time.Since(start).Milliseconds()
	o.logger.Debug("cache miss",
		zap.String("request_id", result.RequestID),
		zap.Int("candidates", len(candidates)),
		zap.Float64("best_similarity", bestSim),
		zap.Uint64("stored_id", stored.ID))
	return result, nil
}

// bestCandidate recomputes exact cosine similarity for every candidate and returns the maximum.
func (o *Orchestrator) bestCandidate(emb []float32, candidates []*models.EmbeddingRecord) (*models.EmbeddingRecord, float64) {
	var (
		best    *models.EmbeddingRecord
		bestSim float64
	)
	for _, c := range candidates {
		if len(c.Embedding) != len(emb) {
			o.logger.Warn("skipping candidate with wrong dimensions",
				zap.Uint64("record_id", c.ID),
				zap.Int("dimensions", len(c.Embedding)))
			continue
		}
		sim := vector.CosineSimilarity(emb, c.Embedding)
		if best == nil || sim > bestSim {
			best, bestSim = c, sim
		}
	}
	return best, bestSim
}

func (o *Orchestrator) recordHit(sim float64) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	o.hits++
	o.simSum += sim
}

func (o *Orchestrator) recordMiss() {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	o.misses++
}

// Stats returns hit/miss counters since the orchestrator was created.
func (o *Orchestrator) Stats() models.CacheStats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	s := models.CacheStats{Hits: o.hits, Misses: o.misses}
	if total := o.hits + o.misses; total > 0 {
		s.HitRate = float64(o.hits) / float64(total)
	}
	if o.hits > 0 {
		s.AvgSimOnHit = o.simSum / float64(o.hits)
	}
	return s
}
