package fuzzy

import (
	"math"
	"testing"
)

func TestScoreMonotonic(t *testing.T) {
	prev := -1.0
	for n := 0; n <= 5; n++ {
		s := Score(n)
		if s < 0 || s > 1 {
			t.Fatalf("Score(%d) = %f, out of [0,1]", n, s)
		}
		if s < prev {
			t.Fatalf("Score(%d) = %f < Score(%d) = %f, not monotone", n, s, n-1, prev)
		}
		prev = s
	}
}

func TestScoreHighExceedsLow(t *testing.T) {
	lowMax := math.Max(Score(0), Score(1))
	for _, n := range []int{4, 5} {
		if Score(n) <= lowMax {
			t.Errorf("Score(%d) = %f, want > %f", n, Score(n), lowMax)
		}
	}
}

func TestScoreSaturation(t *testing.T) {
	// The high_conf set dominates from matched=5 up; extra keywords don't
	// change the score.
	at5 := Score(5)
	for _, n := range []int{6, 10, 100} {
		if got := Score(n); got != at5 {
			t.Errorf("Score(%d) = %f, want %f", n, got, at5)
		}
	}

	// Centroid of the (0.6, 1, 1) triangle sits near 0.87.
	if at5 < 0.84 || at5 > 0.89 {
		t.Errorf("Score(5) = %f, want near 0.87", at5)
	}
}

func TestScoreLowCounts(t *testing.T) {
	if s := Score(0); s > 0.3 {
		t.Errorf("Score(0) = %f, want a low score", s)
	}
}

func TestScoreDeterministic(t *testing.T) {
	for n := 0; n <= 6; n++ {
		a, b := Score(n), Score(n)
		if a != b {
			t.Fatalf("Score(%d) not deterministic: %f vs %f", n, a, b)
		}
	}
}

func TestTrimf(t *testing.T) {
	tests := []struct {
		name string
		fn   trimf
		x    float64
		want float64
	}{
		{"low at left edge", trimf{0, 0, 2}, 0, 1},
		{"low at midpoint", trimf{0, 0, 2}, 1, 0.5},
		{"low past right edge", trimf{0, 0, 2}, 3, 0},
		{"medium at peak", trimf{1, 3, 5}, 3, 1},
		{"medium rising", trimf{1, 3, 5}, 2, 0.5},
		{"medium before left", trimf{1, 3, 5}, 0.5, 0},
		{"high at right shoulder", trimf{3, 5, 5}, 5, 1},
		{"high rising", trimf{3, 5, 5}, 4, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn.at(tt.x); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("at(%f) = %f, want %f", tt.x, got, tt.want)
			}
		})
	}
}
