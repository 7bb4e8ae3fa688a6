// Package cli provides output helpers for the semcache command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/semcache/internal/models"
	"github.com/hyperjump/semcache/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteQueryResult writes a query result to w in the given format.
func WriteQueryResult(w io.Writer, result *models.QueryResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	source := "llm"
	if result.Hit {
		source = "cache"
	}
	fmt.Fprintf(w, "\n%s\n\n", result.Response)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] %dms | candidates: %d", source, result.QueryTime, result.Candidates)
	if result.BestCandidate != nil {
		fmt.Fprintf(w, " | best similarity: %.4f", result.Similarity)
	}
	fmt.Fprintln(w)
	if result.BestCandidate != nil {
		fmt.Fprintf(w, "closest prompt: %s\n", utils.Truncate(result.BestCandidate.Query, 80))
	}
	if result.Stored != nil {
		fmt.Fprintf(w, "stored as record %d\n", result.Stored.ID)
	}
	fmt.Fprintf(w, "request id: %s\n", result.RequestID)
	return nil
}

// WriteStatus writes a status report to w in the given format.
func WriteStatus(w io.Writer, status *models.StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "partition:          %s\n", status.Engine.Partition)
	fmt.Fprintf(w, "records:            %d   # points in the vector index\n", status.Engine.Count)
	fmt.Fprintf(w, "capacity:           %d\n", status.Engine.Capacity)
	fmt.Fprintf(w, "next_id:            %d\n", status.Engine.NextID)
	fmt.Fprintf(w, "initialized:        %t\n", status.Engine.Initialized)
	fmt.Fprintf(w, "index_type:         %s\n", status.Engine.IndexType)
	fmt.Fprintf(w, "hits:               %d\n", status.Cache.Hits)
	fmt.Fprintf(w, "misses:             %d\n", status.Cache.Misses)
	fmt.Fprintf(w, "hit_rate:           %.4f\n", status.Cache.HitRate)
	fmt.Fprintf(w, "threshold:          %.4f\n", status.Policy.Threshold)
	fmt.Fprintf(w, "top_k:              %d\n", status.Policy.TopK)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "# store")
	if status.Store.Type != "" {
		fmt.Fprintf(w, "type:               %s\n", status.Store.Type)
	}
	fmt.Fprintf(w, "reachable:          %t\n", status.Store.Reachable)
	if status.Store.Breaker != "" {
		fmt.Fprintf(w, "breaker:            %s\n", status.Store.Breaker)
	}
	if status.Store.DatabasePath != "" {
		fmt.Fprintf(w, "database_path:      %s\n", status.Store.DatabasePath)
	}
	if status.Store.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.Store.DiskUsageBytes)
	}

	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "embedding:          %s/%s (%d dims)\n", c.EmbeddingProvider, c.EmbeddingModel, c.EmbeddingDimensions)
		fmt.Fprintf(w, "llm:                %s/%s\n", c.LLMProvider, c.LLMModel)
		fmt.Fprintf(w, "ttl_seconds:        %d\n", c.TTLSeconds)
		fmt.Fprintf(w, "growth_step:        %d\n", c.GrowthStep)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
