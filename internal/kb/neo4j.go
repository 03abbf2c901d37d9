package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// candidateCypher is the pattern query over the shared knowledge graph.
// Keywords and role are bound as parameters; the former string-interpolated
// query construction is gone for good. No LIMIT: the disambiguator sees
// the full candidate list.
const candidateCypher = `
WITH $kws AS kws
UNWIND kws AS kw
MATCH (k:PalabraClave)
WHERE toLower(k.nombre) = kw
MATCH (k)-[:DISPARA]->(c:CategoriaProblema)
OPTIONAL MATCH (c)-[:AGRUPA]->(t:TipoProblema)-[:RESUELTO_POR]->(s:Solucion)
OPTIONAL MATCH (c)-[:TIENE_UN]->(tu:TipoUsuario {nombre: $role})
WITH c, t, s, tu, collect(DISTINCT k.nombre) AS matched_keywords
WITH c, t, s, tu, matched_keywords, size(matched_keywords) AS matched_count,
     coalesce(c.confianzaDecision, 0) AS confianza,
     CASE WHEN tu IS NULL THEN 0 ELSE 1 END AS has_type
RETURN DISTINCT
    t.nombre AS tipo_problema,
    s.accion AS solucion,
    confianza AS confianza,
    matched_count AS matched_count,
    matched_keywords AS matched_keywords,
    has_type AS has_type
ORDER BY has_type DESC, matched_count DESC, confianza DESC`

// Neo4jStore queries the shared Neo4j knowledge graph.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// Neo4jConfig holds connection settings for the graph database.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

// OpenNeo4j connects to the graph database and verifies connectivity.
func OpenNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4j URI is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, unavailable("creating neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, unavailable("verifying neo4j connectivity", err)
	}
	return &Neo4jStore{driver: driver}, nil
}

// Query executes the candidate pattern query with bound parameters.
func (s *Neo4jStore) Query(ctx context.Context, keywords []string, role string) ([]Candidate, error) {
	kws := normalizeKeywords(keywords)
	if len(kws) == 0 {
		return nil, nil
	}

	params := map[string]any{
		"kws":  toAnySlice(kws),
		"role": role,
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, candidateCypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, unavailable("querying candidates", err)
	}

	rows, ok := records.([]*neo4j.Record)
	if !ok {
		return nil, unavailable("querying candidates", fmt.Errorf("unexpected result type %T", records))
	}

	out := make([]Candidate, 0, len(rows))
	for _, rec := range rows {
		out = append(out, recordToCandidate(rec))
	}

	Rank(out)
	return out, nil
}

// Close releases the driver and its connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func recordToCandidate(rec *neo4j.Record) Candidate {
	var c Candidate
	if v, ok := rec.Get("tipo_problema"); ok {
		if sv, ok := v.(string); ok {
			c.ProblemType = sv
		}
	}
	if v, ok := rec.Get("solucion"); ok {
		if sv, ok := v.(string); ok {
			c.Solution = sv
		}
	}
	if v, ok := rec.Get("confianza"); ok {
		c.StoredConfidence = toFloat(v)
	}
	if v, ok := rec.Get("matched_count"); ok {
		c.MatchedCount = int(toInt(v))
	}
	if v, ok := rec.Get("matched_keywords"); ok {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if sv, ok := item.(string); ok {
					c.MatchedKeywords = append(c.MatchedKeywords, sv)
				}
			}
		}
	}
	if v, ok := rec.Get("has_type"); ok {
		c.HasRoleMatch = toInt(v) == 1
	}
	return c
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
