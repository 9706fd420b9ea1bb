package detector

import (
	"math"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "byerim", "byerim", 1.0},
		{"identical mixed case", "ByErim", "byerim", 1.0},
		{"empty left", "", "byerim", 0.0},
		{"empty right", "byerim", "", 0.0},
		{"both empty", "", "", 0.0},
		{"overlapping", "abcd", "bcde", 0.75},
		{"disjoint", "abc", "xyz", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestSimilarity_Symmetry(t *testing.T) {
	pairs := [][2]string{
		{"erimkaur", "erim_kaur"},
		{"byerim", "byerimshop"},
		{"x corp", "x corp ltd"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("Similarity not symmetric for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Errorf("Similarity(%q, %q) = %v out of range", p[0], p[1], ab)
		}
	}
}
