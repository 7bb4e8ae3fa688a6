package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/semcache/internal/models"
	"github.com/hyperjump/semcache/internal/resilience"
	"github.com/hyperjump/semcache/internal/search"
	"github.com/hyperjump/semcache/internal/semcache"
	"github.com/hyperjump/semcache/internal/storage"
	"github.com/hyperjump/semcache/pkg/utils"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("prompt", utils.Truncate(req.Prompt, 80)))
	result, err := s.orchestrator.Query(r.Context(), req.Prompt)
	if err != nil {
		s.fail(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type searchResponse struct {
	Records []*models.EmbeddingRecord `json:"records"`
	Count   int                       `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.orchestrator.Policy().TopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.engine.Search(r.Context(), req.Embedding, req.K)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, searchResponse{Records: records, Count: len(records)})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req models.StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.engine.Store(r.Context(), req.Query, req.Embedding, req.Response)
	if err != nil {
		s.fail(w, "store failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Rebuild(r.Context())
	if err != nil {
		s.fail(w, "rebuild failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "rebuilt", "records": n})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.fail(w, "clear failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared", "partition": s.engine.Partition()})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.orchestrator.Policy())
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var p search.Policy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orchestrator.SetPolicy(p); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.orchestrator.Policy())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.Status(r.Context()))
}

// Status reports the engine, hit statistics, policy and record store state.
func (s *Server) Status(ctx context.Context) *models.StatusReport {
	policy := s.orchestrator.Policy()
	report := &models.StatusReport{
		Engine: s.engine.Stats(),
		Cache:  s.orchestrator.Stats(),
		Policy: models.PolicySummary{Threshold: policy.Threshold, TopK: policy.TopK},
		Store:  models.StoreStatus{Reachable: s.store.Ping(ctx) == nil},
	}
	if bs, ok := s.store.(*storage.BreakerStore); ok {
		report.Store.Breaker = bs.BreakerState()
	}
	if s.config == nil {
		return report
	}
	report.Store.Type = s.config.Store.Type
	if s.config.Store.Type == "sqlite" {
		path := s.config.Store.DatabasePath
		report.Store.DatabasePath = path
		if n, err := storage.DiskUsageBytes(path); err == nil {
			report.Store.DiskUsageBytes = &n
		}
	}
	report.Config = &models.StatusConfig{
		EmbeddingProvider:   s.config.Embedding.Provider,
		EmbeddingModel:      s.config.Embedding.Model,
		EmbeddingDimensions: s.config.Embedding.Dimensions,
		LLMProvider:         s.config.LLM.Provider,
		LLMModel:            s.config.LLM.Model,
		TTLSeconds:          s.config.Cache.TTLSeconds,
		IndexType:           s.config.Index.Type,
		GrowthStep:          s.config.Index.GrowthStep,
	}
	return report
}

// statusFor maps engine and producer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, semcache.ErrDimensionMismatch), errors.Is(err, semcache.ErrInvalidState):
		return http.StatusBadRequest
	case resilience.IsOpen(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, semcache.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
