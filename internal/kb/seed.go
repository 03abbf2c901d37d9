package kb

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document describing the knowledge graph content.
type SeedFile struct {
	Categories []SeedCategory `yaml:"categories"`
}

// SeedCategory declares one problem category with its triggering keywords,
// role scopes, and the problem types it groups.
type SeedCategory struct {
	Name       string        `yaml:"name"`
	Confidence float64       `yaml:"confidence"`
	Keywords   []string      `yaml:"keywords"`
	Roles      []string      `yaml:"roles"`
	Problems   []SeedProblem `yaml:"problems"`
}

// SeedProblem is one problem type and its resolving action.
type SeedProblem struct {
	Type     string `yaml:"type"`
	Solution string `yaml:"solution"`
}

// SeedResult summarizes what a seed run inserted.
type SeedResult struct {
	Categories int
	Keywords   int
	Problems   int
}

// LoadSeedFile parses a knowledge seed YAML document.
func LoadSeedFile(path string) (*SeedFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var sf SeedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	if len(sf.Categories) == 0 {
		return nil, fmt.Errorf("seed file %s declares no categories", path)
	}
	return &sf, nil
}

// Seed inserts the seed content into the embedded knowledge base.
// Existing rows with the same names are kept; seeding is idempotent.
func (s *SQLiteStore) Seed(ctx context.Context, sf *SeedFile) (*SeedResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	res := &SeedResult{}
	for _, cat := range sf.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("seed category with empty name")
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (name, decision_confidence) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET decision_confidence = excluded.decision_confidence`,
			name, cat.Confidence); err != nil {
			return nil, fmt.Errorf("inserting category %s: %w", name, err)
		}
		var catID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM categories WHERE name = ?`, name).Scan(&catID); err != nil {
			return nil, fmt.Errorf("resolving category %s: %w", name, err)
		}
		res.Categories++

		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO keywords (name) VALUES (?)`, kw); err != nil {
				return nil, fmt.Errorf("inserting keyword %s: %w", kw, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO triggers (keyword_id, category_id)
				 SELECT id, ? FROM keywords WHERE name = ?`, catID, kw); err != nil {
				return nil, fmt.Errorf("linking keyword %s: %w", kw, err)
			}
			res.Keywords++
		}

		for _, role := range cat.Roles {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO role_scopes (category_id, role) VALUES (?, ?)`,
				catID, role); err != nil {
				return nil, fmt.Errorf("scoping role %s: %w", role, err)
			}
		}

		for _, prob := range cat.Problems {
			ptype := strings.TrimSpace(prob.Type)
			if ptype == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO problem_types (category_id, name) VALUES (?, ?)`,
				catID, ptype); err != nil {
				return nil, fmt.Errorf("inserting problem type %s: %w", ptype, err)
			}
			var ptID int64
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM problem_types WHERE category_id = ? AND name = ?`,
				catID, ptype).Scan(&ptID); err != nil {
				return nil, fmt.Errorf("resolving problem type %s: %w", ptype, err)
			}
			if strings.TrimSpace(prob.Solution) != "" {
				var exists int
				if err := tx.QueryRowContext(ctx,
					`SELECT COUNT(*) FROM solutions WHERE problem_type_id = ? AND action = ?`,
					ptID, prob.Solution).Scan(&exists); err != nil {
					return nil, fmt.Errorf("checking solution: %w", err)
				}
				if exists == 0 {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO solutions (problem_type_id, action) VALUES (?, ?)`,
						ptID, prob.Solution); err != nil {
						return nil, fmt.Errorf("inserting solution: %w", err)
					}
				}
			}
			res.Problems++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing seed: %w", err)
	}
	return res, nil
}
