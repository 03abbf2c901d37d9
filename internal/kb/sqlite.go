package kb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default embedded knowledge base location.
const DefaultDBPath = "~/.triage/kb.db"

// SQLiteStore is the embedded knowledge base backend. The graph is
// flattened into relational tables; Query reproduces the same aggregation
// the Neo4j backend performs over the real graph.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the embedded knowledge base.
// Pass ":memory:" for tests.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = expandPath(DefaultDBPath)
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating kb directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging knowledge base: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating knowledge base: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS keywords (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			decision_confidence REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS triggers (
			keyword_id INTEGER NOT NULL REFERENCES keywords(id) ON DELETE CASCADE,
			category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			UNIQUE(keyword_id, category_id)
		)`,
		`CREATE TABLE IF NOT EXISTS problem_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			UNIQUE(category_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS solutions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			problem_type_id INTEGER NOT NULL REFERENCES problem_types(id) ON DELETE CASCADE,
			action TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS role_scopes (
			category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			UNIQUE(category_id, role)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_keywords_name ON keywords(name)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Query aggregates candidates per (category, problem type, solution):
// distinct matched keyword names, their count, whether a role scope matches
// the declared role, and the category's stored decision confidence.
func (s *SQLiteStore) Query(ctx context.Context, keywords []string, role string) ([]Candidate, error) {
	kws := normalizeKeywords(keywords)
	if len(kws) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(kws))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT
			COALESCE(pt.name, ''),
			COALESCE(so.action, ''),
			c.decision_confidence,
			GROUP_CONCAT(DISTINCT k.name),
			COUNT(DISTINCT k.name),
			MAX(CASE WHEN rs.role IS NOT NULL THEN 1 ELSE 0 END)
		FROM keywords k
		JOIN triggers tr ON tr.keyword_id = k.id
		JOIN categories c ON c.id = tr.category_id
		LEFT JOIN problem_types pt ON pt.category_id = c.id
		LEFT JOIN solutions so ON so.problem_type_id = pt.id
		LEFT JOIN role_scopes rs ON rs.category_id = c.id AND rs.role = ?
		WHERE lower(k.name) IN (%s)
		GROUP BY c.id, pt.id, so.id`, placeholders)

	args := make([]any, 0, len(kws)+1)
	args = append(args, role)
	for _, kw := range kws {
		args = append(args, kw)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("querying candidates", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var matched string
		var hasRole int
		if err := rows.Scan(&c.ProblemType, &c.Solution, &c.StoredConfidence,
			&matched, &c.MatchedCount, &hasRole); err != nil {
			return nil, unavailable("scanning candidate", err)
		}
		if matched != "" {
			c.MatchedKeywords = strings.Split(matched, ",")
		}
		c.HasRoleMatch = hasRole == 1
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("reading candidates", err)
	}

	Rank(out)
	return out, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
