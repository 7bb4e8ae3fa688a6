// Package semcache keeps an in-memory ANN index and a durable record store in sync
// for one cache partition.
//
// Records are written to the store first and indexed second. The index is built
// lazily from the store on first use, so a process that crashes between the two
// writes recovers the missing point on its next start.
package semcache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/semcache/internal/models"
	"github.com/hyperjump/semcache/internal/storage"
	"github.com/hyperjump/semcache/internal/vector"
	"github.com/hyperjump/semcache/pkg/utils"
)

const (
	defaultInitialCapacity = 1000
	defaultGrowthStep      = 1000
)

// Config describes one cache partition.
type Config struct {
	// Partition is the record store key, e.g. "embeddings:text".
	Partition  string
	Dimensions int
	// TTL is refreshed on the partition after every store; 0 disables expiry.
	TTL             time.Duration
	InitialCapacity int
	GrowthStep      int
}

// Engine owns the index lifecycle and id assignment for a partition.
// All operations are serialized by a single mutex.
type Engine struct {
	store  storage.RecordStore
	index  vector.Index
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	nextID      uint64
	initialized bool
}

// NewEngine creates an engine. The index is not touched until the first Store or Search.
func NewEngine(store storage.RecordStore, index vector.Index, cfg Config, logger *zap.Logger) (*Engine, error) {
	if store == nil || index == nil {
		return nil, errors.New("record store and vector index are required")
	}
	if cfg.Partition == "" {
		return nil, errors.New("partition key is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.InitialCapacity <= 0 {
		cfg.InitialCapacity = defaultInitialCapacity
	}
	if cfg.GrowthStep <= 0 {
		cfg.GrowthStep = defaultGrowthStep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		index:  index,
		cfg:    cfg,
		logger: logger.With(zap.String("partition", cfg.Partition)),
		now:    time.Now,
	}, nil
}

// Partition returns the record store key of the engine.
func (e *Engine) Partition() string {
	return e.cfg.Partition
}

// Dimensions returns the configured embedding length.
func (e *Engine) Dimensions() int {
	return e.cfg.Dimensions
}

// checkEmbedding rejects vectors of the wrong length and vectors without a
// direction, which have no defined cosine distance.
func (e *Engine) checkEmbedding(embedding []float32) error {
	if len(embedding) != e.cfg.Dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(embedding), e.cfg.Dimensions)
	}
	norm := utils.L2Norm(embedding)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return fmt.Errorf("%w: embedding norm is %v", ErrInvalidState, norm)
	}
	return nil
}

// Store persists a new record and indexes it. The returned record carries the assigned id.
func (e *Engine) Store(ctx context.Context, query string, embedding []float32, response string) (*models.EmbeddingRecord, error) {
	if err := e.checkEmbedding(embedding); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		if err := e.rebuildLocked(ctx); err != nil {
			return nil, err
		}
	}

	rec := &models.EmbeddingRecord{
		ID:        e.nextID,
		Query:     query,
		Embedding: append([]float32(nil), embedding...),
		Response:  response,
		Timestamp: e.now().Unix(),
	}
	e.nextID++

	raw, err := rec.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if err := e.store.HSet(ctx, e.cfg.Partition, rec.Field(), raw); err != nil {
		return nil, fmt.Errorf("%w: write record %d: %w", ErrBackend, rec.ID, err)
	}
	if e.cfg.TTL > 0 {
		if err := e.store.Expire(ctx, e.cfg.Partition, e.cfg.TTL); err != nil {
			return nil, fmt.Errorf("%w: refresh ttl: %w", ErrBackend, err)
		}
	}

	if count := e.index.Count(); count >= e.index.Capacity() {
		newCapacity := count + e.cfg.GrowthStep
		if err := e.index.Grow(newCapacity); err != nil {
			return nil, fmt.Errorf("%w: grow to %d: %w", ErrIndex, newCapacity, err)
		}
		e.logger.Debug("index grown", zap.Int("count", count), zap.Int("capacity", newCapacity))
	}
	if err := e.index.Insert(rec.Embedding, rec.ID); err != nil {
		return nil, fmt.Errorf("%w: insert %d: %w", ErrIndex, rec.ID, err)
	}
	return rec, nil
}

// Search returns up to k records nearest to embedding, closest first.
// k is clamped to the number of indexed points; ids whose records have expired are skipped.
func (e *Engine) Search(ctx context.Context, embedding []float32, k int) ([]*models.EmbeddingRecord, error) {
	if err := e.checkEmbedding(embedding); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", ErrInvalidState, k)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		if err := e.rebuildLocked(ctx); err != nil {
			return nil, err
		}
	}

	if count := e.index.Count(); k > count {
		k = count
	}
	if k == 0 {
		return []*models.EmbeddingRecord{}, nil
	}

	neighbors, err := e.index.SearchKNN(embedding, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrIndex, err)
	}
	if len(neighbors) == 0 {
		return []*models.EmbeddingRecord{}, nil
	}

	fields := make([]string, len(neighbors))
	for i, n := range neighbors {
		fields[i] = models.FieldForID(n.ID)
	}
	values, err := e.store.HMGet(ctx, e.cfg.Partition, fields...)
	if err != nil {
		return nil, fmt.Errorf("%w: read records: %w", ErrBackend, err)
	}

	records := make([]*models.EmbeddingRecord, 0, len(neighbors))
	for i, v := range values {
		if v == nil {
			e.logger.Debug("indexed record missing from store", zap.String("field", fields[i]))
			continue
		}
		rec, err := models.UnmarshalRecord(*v)
		if err != nil {
			return nil, fmt.Errorf("%w: record %s: %w", ErrBackend, fields[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Rebuild discards the index and reloads it from the record store. It returns the number
// of indexed records.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	if err := e.rebuildLocked(ctx); err != nil {
		return 0, err
	}
	return e.index.Count(), nil
}

func (e *Engine) rebuildLocked(ctx context.Context) error {
	start := time.Now()
	raw, err := e.store.HGetAll(ctx, e.cfg.Partition)
	if err != nil {
		return fmt.Errorf("%w: load partition: %w", ErrBackend, err)
	}

	records := make([]*models.EmbeddingRecord, 0, len(raw))
	for field, value := range raw {
		rec, err := models.UnmarshalRecord(value)
		if err != nil {
			return fmt.Errorf("%w: record %s: %w", ErrBackend, field, err)
		}
		if id, err := strconv.ParseUint(field, 10, 64); err != nil || id != rec.ID {
			e.logger.Warn("record field does not match record id", zap.String("field", field), zap.Uint64("id", rec.ID))
		}
		if len(rec.Embedding) != e.cfg.Dimensions {
			return fmt.Errorf("%w: stored record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, rec.ID, len(rec.Embedding), e.cfg.Dimensions)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	capacity := len(records)
	if capacity == 0 {
		capacity = e.cfg.InitialCapacity
	}
	if err := e.index.Init(capacity, e.cfg.Dimensions); err != nil {
		return fmt.Errorf("%w: init: %w", ErrIndex, err)
	}
	for _, rec := range records {
		if err := e.index.Insert(rec.Embedding, rec.ID); err != nil {
			return fmt.Errorf("%w: insert %d: %w", ErrIndex, rec.ID, err)
		}
		if rec.ID >= e.nextID {
			e.nextID = rec.ID + 1
		}
	}
	e.initialized = true

	e.logger.Info("index rebuilt",
		zap.Int("records", len(records)),
		zap.Int("capacity", capacity),
		zap.Uint64("next_id", e.nextID),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Clear deletes the partition and leaves an empty, initialized index.
// Ids keep increasing after a clear.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Del(ctx, e.cfg.Partition); err != nil {
		return fmt.Errorf("%w: delete partition: %w", ErrBackend, err)
	}
	if err := e.index.Init(e.cfg.InitialCapacity, e.cfg.Dimensions); err != nil {
		e.initialized = false
		return fmt.Errorf("%w: init: %w", ErrIndex, err)
	}
	e.initialized = true
	e.logger.Info("partition cleared", zap.Uint64("next_id", e.nextID))
	return nil
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() models.EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.EngineStats{
		Partition:   e.cfg.Partition,
		Dimensions:  e.cfg.Dimensions,
		Initialized: e.initialized,
		Count:       e.index.Count(),
		Capacity:    e.index.Capacity(),
		NextID:      e.nextID,
		IndexType:   e.index.Type(),
	}
}

// Close releases the index. The record store is owned by the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	return e.index.Close()
}
