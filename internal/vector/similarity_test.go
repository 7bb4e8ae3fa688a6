package vector

import (
	"math"
	"testing"
)

const tolerance = 1e-6

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"opposite", []float32{1, -2, 0.5}, []float32{-1, 2, -0.5}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
		{"empty", []float32{}, []float32{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > tolerance {
				t.Errorf("CosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_SelfAndNegation(t *testing.T) {
	vectors := [][]float32{
		{0.3, -0.7, 1.9, 4},
		{1e-3, 2e-3, -5e-4},
		{100, 200, -300, 0, 7},
	}
	for _, v := range vectors {
		neg := make([]float32, len(v))
		for i := range v {
			neg[i] = -v[i]
		}
		if got := CosineSimilarity(v, v); math.Abs(got-1) > tolerance {
			t.Errorf("self similarity of %v = %f", v, got)
		}
		if got := CosineSimilarity(v, neg); math.Abs(got+1) > tolerance {
			t.Errorf("antipodal similarity of %v = %f", v, got)
		}
	}
}

func TestCosineSimilarity_LengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unequal lengths")
		}
	}()
	CosineSimilarity([]float32{1, 2}, []float32{1})
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{1, 0}); math.Abs(d) > tolerance {
		t.Errorf("distance of identical vectors = %f", d)
	}
	if d := CosineDistance([]float32{1, 0}, []float32{-1, 0}); math.Abs(d-2) > tolerance {
		t.Errorf("distance of opposite vectors = %f", d)
	}
}
