package services

import "testing"

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical unit vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"scaled copy", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"mismatched lengths", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// similarity of a vector with itself must be exactly 1.0, not merely close,
// so threshold comparisons at 1.0 behave predictably
func TestCosineSimilaritySelfIsExactlyOne(t *testing.T) {
	vectors := [][]float32{
		{0.3, 0.7, -0.2, 0.11},
		{1e-3, 2e-3, 3e-3},
		unitVec(0.6, 0.8),
	}
	for _, vec := range vectors {
		if got := CosineSimilarity(vec, vec); got != 1.0 {
			t.Errorf("CosineSimilarity(v, v) = %v for %v, want exactly 1.0", got, vec)
		}
	}
}
