// Package integration runs the full query pipeline against a Redis-compatible store.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/semcache/internal/config"
	"github.com/hyperjump/semcache/internal/embedding"
	"github.com/hyperjump/semcache/internal/llm"
	"github.com/hyperjump/semcache/internal/search"
	"github.com/hyperjump/semcache/internal/semcache"
	"github.com/hyperjump/semcache/internal/storage"
	"github.com/hyperjump/semcache/internal/vector"
)

type pipeline struct {
	engine    *semcache.Engine
	orch      *search.Orchestrator
	completer *llm.MockCompleter
}

// newPipeline wires a fresh process-worth of components against the redis at url.
func newPipeline(t *testing.T, cfg *config.Config) *pipeline {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewRecordStore(ctx, &cfg.Store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := semcache.NewEngine(store, vector.NewHNSWIndex(vector.HNSWOptions{}), semcache.Config{
		Partition:       cfg.Cache.Partition(),
		Dimensions:      cfg.Embedding.Dimensions,
		TTL:             cfg.Cache.TTL(),
		InitialCapacity: cfg.Index.InitialCapacity,
		GrowthStep:      cfg.Index.GrowthStep,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	embedder, err := embedding.NewEmbedder(&cfg.Embedding, nil)
	require.NoError(t, err)
	completer := llm.NewMockCompleter(cfg.LLM.Prefix)
	orch, err := search.NewOrchestrator(engine, embedder, completer,
		search.Policy{Threshold: cfg.Cache.Threshold, TopK: cfg.Cache.TopK}, nil)
	require.NoError(t, err)
	return &pipeline{engine: engine, orch: orch, completer: completer}
}

func testConfig(mr *miniredis.Miniredis) *config.Config {
	cfg := &config.Config{}
	cfg.Store.Type = "redis"
	cfg.Store.URL = "redis://" + mr.Addr() + "/0"
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 32
	cfg.LLM.Provider = "mock"
	cfg.Index.InitialCapacity = 2
	cfg.Index.GrowthStep = 2
	config.ApplyDefaults(cfg)
	return cfg
}

func TestIntegration_CacheSurvivesRestart(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	ctx := context.Background()
	cfg := testConfig(mr)

	first := newPipeline(t, cfg)
	prompts := []string{"capital of France", "tallest mountain", "speed of light", "boiling point of water", "largest ocean"}
	for _, p := range prompts {
		res, err := first.orch.Query(ctx, p)
		require.NoError(t, err)
		assert.False(t, res.Hit, p)
	}
	assert.Equal(t, 5, first.engine.Stats().Count)
	assert.GreaterOrEqual(t, first.engine.Stats().Capacity, 5)

	// A second process sees the same partition.
	second := newPipeline(t, cfg)
	for _, p := range prompts {
		res, err := second.orch.Query(ctx, p)
		require.NoError(t, err)
		assert.True(t, res.Hit, p)
		assert.InDelta(t, 1.0, res.Similarity, 1e-5)
	}
	assert.Equal(t, int64(0), second.completer.Calls())

	res, err := second.orch.Query(ctx, "a brand new question")
	require.NoError(t, err)
	require.NotNil(t, res.Stored)
	assert.Equal(t, uint64(5), res.Stored.ID, "ids continue after the persisted records")

	ttl := mr.TTL(cfg.Cache.Partition())
	assert.Equal(t, time.Duration(cfg.Cache.TTLSeconds)*time.Second, ttl)
}

func TestIntegration_ExpiredPartitionMisses(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	ctx := context.Background()
	cfg := testConfig(mr)

	first := newPipeline(t, cfg)
	_, err = first.orch.Query(ctx, "capital of France")
	require.NoError(t, err)

	mr.FastForward(time.Duration(cfg.Cache.TTLSeconds+1) * time.Second)

	second := newPipeline(t, cfg)
	res, err := second.orch.Query(ctx, "capital of France")
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Equal(t, int64(1), second.completer.Calls())
}

func TestIntegration_ClearKeepsIDsMonotonic(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	ctx := context.Background()
	p := newPipeline(t, testConfig(mr))

	_, err = p.orch.Query(ctx, "one")
	require.NoError(t, err)
	_, err = p.orch.Query(ctx, "two")
	require.NoError(t, err)
	require.NoError(t, p.engine.Clear(ctx))

	res, err := p.orch.Query(ctx, "one")
	require.NoError(t, err)
	assert.False(t, res.Hit)
	require.NotNil(t, res.Stored)
	assert.Equal(t, uint64(2), res.Stored.ID)
}
