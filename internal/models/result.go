package models

// QueryResult is the outcome of one cached completion request.
type QueryResult struct {
	RequestID string `json:"request_id"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Hit       bool   `json:"hit"`
	// Similarity is the exact cosine similarity of the best candidate; 0 when
	// there were no candidates.
	Similarity    float64          `json:"similarity"`
	BestCandidate *EmbeddingRecord `json:"best_candidate,omitempty"`
	Candidates    int              `json:"candidates"`
	Stored        *EmbeddingRecord `json:"stored,omitempty"` // set on a miss
	QueryTime     int64            `json:"query_time_ms"`
}

// CacheStats is a point-in-time snapshot of hit/miss counters.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	AvgSimOnHit float64 `json:"avg_similarity_on_hit"`
}

// EngineStats describes the state of a cache partition and its index.
type EngineStats struct {
	Partition   string `json:"partition"`
	Dimensions  int    `json:"dimensions"`
	Initialized bool   `json:"initialized"`
	Count       int    `json:"count"`
	Capacity    int    `json:"capacity"`
	NextID      uint64 `json:"next_id"`
	IndexType   string `json:"index_type"`
}

// PolicySummary is the hit policy currently in force.
type PolicySummary struct {
	Threshold float64 `json:"threshold"`
	TopK      int     `json:"top_k"`
}

// StoreStatus describes the record store backing a partition.
type StoreStatus struct {
	Type           string `json:"type,omitempty"`
	Reachable      bool   `json:"reachable"`
	Breaker        string `json:"breaker,omitempty"`
	DatabasePath   string `json:"database_path,omitempty"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}

// StatusConfig is the subset of configuration reported by status.
type StatusConfig struct {
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingModel      string `json:"embedding_model"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
	LLMProvider         string `json:"llm_provider"`
	LLMModel            string `json:"llm_model"`
	TTLSeconds          int    `json:"ttl_seconds"`
	IndexType           string `json:"index_type"`
	GrowthStep          int    `json:"growth_step"`
}

// StatusReport is the shape of GET /api/v1/status.
type StatusReport struct {
	Engine EngineStats   `json:"engine"`
	Cache  CacheStats    `json:"cache"`
	Policy PolicySummary `json:"policy"`
	Store  StoreStatus   `json:"store"`
	Config *StatusConfig `json:"config,omitempty"`
}
