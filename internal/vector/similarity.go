package vector

import (
	"fmt"
	"math"
)

// CosineSimilarity returns dot(a,b)/(|a|·|b|) in [-1, 1].
// It panics when the lengths differ; both operands come from the same
// configured dimension, so a mismatch is a programming error.
// If either vector has zero norm the similarity is 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector: cosine similarity of unequal lengths %d and %d", len(a), len(b)))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push |sim| just past 1.
	return math.Max(-1, math.Min(1, sim))
}

// CosineDistance returns 1 - CosineSimilarity(a, b).
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
