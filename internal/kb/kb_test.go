package kb

import (
	"reflect"
	"testing"
)

func TestRankTotalOrder(t *testing.T) {
	candidates := []Candidate{
		{ProblemType: "B", MatchedCount: 3, StoredConfidence: 0.9},
		{ProblemType: "A", MatchedCount: 1, StoredConfidence: 0.2, HasRoleMatch: true},
		{ProblemType: "C", MatchedCount: 3, StoredConfidence: 0.5},
		{ProblemType: "D", MatchedCount: 2, StoredConfidence: 0.5, HasRoleMatch: true},
	}
	Rank(candidates)

	got := make([]string, len(candidates))
	for i, c := range candidates {
		got[i] = c.ProblemType
	}
	// Role matches first regardless of count/confidence; then count, then
	// stored confidence.
	want := []string{"D", "A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestRankDeterministicTies(t *testing.T) {
	a := []Candidate{
		{ProblemType: "Z", Solution: "s1", MatchedCount: 2, StoredConfidence: 0.5},
		{ProblemType: "A", Solution: "s2", MatchedCount: 2, StoredConfidence: 0.5},
	}
	b := []Candidate{a[1], a[0]}

	Rank(a)
	Rank(b)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("tie ordering not deterministic: %v vs %v", a, b)
	}
	if a[0].ProblemType != "A" {
		t.Errorf("lexicographic tie-break expected A first, got %s", a[0].ProblemType)
	}
}

func TestNormalizeKeywords(t *testing.T) {
	got := normalizeKeywords([]string{" Pago ", "TARJETA", "pago", "", "rechazo"})
	want := []string{"pago", "tarjeta", "rechazo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
