// Package kb queries the support knowledge graph for candidate solutions.
//
// The graph shape comes from the production knowledge base: keyword nodes
// trigger problem categories, categories group problem types resolved by
// solution actions, and categories may be scoped to a user role. Two
// backends implement the same Querier contract: a Neo4j driver for the
// shared graph and an embedded SQLite database for local and offline use.
//
// Both backends bind keywords and role as query parameters; user input is
// never concatenated into query text.
package kb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnavailable wraps any backend failure. Callers treat it as
// "no candidates" and degrade rather than failing the request.
var ErrUnavailable = errors.New("knowledge store unavailable")

// Candidate is one knowledge-base row proposing a remedy for the matched
// keywords. A request yields zero or more, fully ordered by Rank.
type Candidate struct {
	ProblemType      string   `json:"tipo_problema"`
	Solution         string   `json:"solucion"`
	StoredConfidence float64  `json:"confianza"`
	MatchedKeywords  []string `json:"matched_keywords"`
	MatchedCount     int      `json:"matched_count"`
	HasRoleMatch     bool     `json:"has_role_match"`
}

// Querier finds candidate solutions for a keyword set and declared role.
// Keywords are matched case-insensitively; implementations receive them
// already lowercased.
type Querier interface {
	Query(ctx context.Context, keywords []string, role string) ([]Candidate, error)
	Close(ctx context.Context) error
}

// Rank orders candidates descending by role match, then matched keyword
// count, then stored confidence. Remaining ties break lexicographically on
// problem type and solution so the order is total and stable across runs.
func Rank(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HasRoleMatch != b.HasRoleMatch {
			return a.HasRoleMatch
		}
		if a.MatchedCount != b.MatchedCount {
			return a.MatchedCount > b.MatchedCount
		}
		if a.StoredConfidence != b.StoredConfidence {
			return a.StoredConfidence > b.StoredConfidence
		}
		if a.ProblemType != b.ProblemType {
			return a.ProblemType < b.ProblemType
		}
		return a.Solution < b.Solution
	})
}

// normalizeKeywords lowercases and deduplicates the query keywords,
// preserving first-seen order.
func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
