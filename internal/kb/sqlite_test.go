package kb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func seedTestGraph(t *testing.T, s *SQLiteStore) {
	t.Helper()
	sf := &SeedFile{Categories: []SeedCategory{
		{
			Name:       "PagoRechazado",
			Confidence: 0.8,
			Keywords:   []string{"pago", "tarjeta", "rechazo"},
			Roles:      []string{"Organizador"},
			Problems: []SeedProblem{
				{Type: "Pago rechazado por el emisor", Solution: "Reintentar el pago con otra tarjeta o medio."},
			},
		},
		{
			Name:       "Comisiones",
			Confidence: 0.6,
			Keywords:   []string{"comisión", "cobro", "tarifa"},
			Roles:      []string{"Prestador"},
			Problems: []SeedProblem{
				{Type: "Consulta sobre comisiones", Solution: "Revisar el detalle de comisiones en la sección de cobros."},
			},
		},
	}}
	if _, err := s.Seed(context.Background(), sf); err != nil {
		t.Fatalf("seeding: %v", err)
	}
}

func TestSQLiteQuery(t *testing.T) {
	s := testStore(t)
	seedTestGraph(t, s)

	got, err := s.Query(context.Background(), []string{"Pago", "tarjeta", "inexistente"}, "Organizador")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1: %+v", len(got), got)
	}

	c := got[0]
	if c.ProblemType != "Pago rechazado por el emisor" {
		t.Errorf("problem type = %q", c.ProblemType)
	}
	if c.MatchedCount != 2 {
		t.Errorf("matched count = %d, want 2", c.MatchedCount)
	}
	if !c.HasRoleMatch {
		t.Error("expected role match for Organizador")
	}
	if c.StoredConfidence != 0.8 {
		t.Errorf("stored confidence = %f, want 0.8", c.StoredConfidence)
	}
	if len(c.MatchedKeywords) != 2 {
		t.Errorf("matched keywords = %v, want 2 distinct", c.MatchedKeywords)
	}
}

func TestSQLiteQueryRoleScoping(t *testing.T) {
	s := testStore(t)
	seedTestGraph(t, s)

	got, err := s.Query(context.Background(), []string{"pago"}, "Prestador")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].HasRoleMatch {
		t.Error("PagoRechazado is not scoped to Prestador; HasRoleMatch must be false")
	}
}

func TestSQLiteQueryRanking(t *testing.T) {
	s := testStore(t)
	seedTestGraph(t, s)

	// "cobro" hits Comisiones (role match for Prestador); "pago" and
	// "tarjeta" hit PagoRechazado with two matches but no role match.
	got, err := s.Query(context.Background(), []string{"pago", "tarjeta", "cobro"}, "Prestador")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].ProblemType != "Consulta sobre comisiones" {
		t.Errorf("role match must rank first, got %q", got[0].ProblemType)
	}
	if got[1].MatchedCount != 2 {
		t.Errorf("second candidate matched count = %d, want 2", got[1].MatchedCount)
	}
}

func TestSQLiteQueryNoKeywords(t *testing.T) {
	s := testStore(t)
	seedTestGraph(t, s)

	got, err := s.Query(context.Background(), nil, "Organizador")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d candidates for empty keyword set, want 0", len(got))
	}
}

func TestSeedIdempotent(t *testing.T) {
	s := testStore(t)
	seedTestGraph(t, s)
	seedTestGraph(t, s)

	got, err := s.Query(context.Background(), []string{"pago"}, "Organizador")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("re-seeding duplicated rows: got %d candidates, want 1", len(got))
	}
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	doc := `categories:
  - name: PagoRechazado
    confidence: 0.8
    keywords: [pago, tarjeta]
    roles: [Organizador]
    problems:
      - type: Pago rechazado
        solution: Reintentar el pago.
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	sf, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sf.Categories) != 1 || sf.Categories[0].Name != "PagoRechazado" {
		t.Errorf("parsed %+v", sf)
	}

	if _, err := LoadSeedFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestQueryAfterClose(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	s.Close(context.Background())

	_, err = s.Query(context.Background(), []string{"pago"}, "Organizador")
	if err == nil {
		t.Fatal("expected error after close")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error %v must wrap ErrUnavailable", err)
	}
}
