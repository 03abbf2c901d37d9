package classify

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestGate(t *testing.T) {
	tests := []struct {
		name       string
		category   string
		confidence float64
		threshold  float64
		wantCat    string
	}{
		{"above threshold", "PagoRechazado", 0.82, 0.1, "PagoRechazado"},
		{"at threshold", "PagoRechazado", 0.1, 0.1, "PagoRechazado"},
		{"below threshold", "PagoRechazado", 0.05, 0.1, CategoryOutOfDomain},
		{"zero confidence", "Comisiones", 0, 0.1, CategoryOutOfDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gate(tt.category, tt.confidence, tt.threshold)
			if got.Category != tt.wantCat {
				t.Errorf("category = %q, want %q", got.Category, tt.wantCat)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence = %f, want %f (gate must not rewrite it)", got.Confidence, tt.confidence)
			}
		})
	}
}

func TestResultOutOfDomain(t *testing.T) {
	if (Result{Category: "PagoRechazado", Confidence: 0.9}).OutOfDomain() {
		t.Error("in-domain result reported as out-of-domain")
	}
	if !(Result{Category: CategoryOutOfDomain, Confidence: 0.05}).OutOfDomain() {
		t.Error("out-of-domain result not reported")
	}
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(path, []byte(`{"labels":["PagoRechazado","Comisiones"],"umbral_ood":0.25}`), 0644); err != nil {
		t.Fatal(err)
	}

	md, err := LoadMetadata(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(md.Labels) != 2 || md.Labels[0] != "PagoRechazado" {
		t.Errorf("labels = %v", md.Labels)
	}
	if md.OODThreshold != 0.25 {
		t.Errorf("threshold = %f, want 0.25", md.OODThreshold)
	}
	if md.MaxLength != 128 {
		t.Errorf("max length default = %d, want 128", md.MaxLength)
	}
}

func TestLoadMetadataDefaultsThreshold(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(`{"labels":["A"]}`), 0644); err != nil {
		t.Fatal(err)
	}
	md, err := LoadMetadata(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.OODThreshold != DefaultOODThreshold {
		t.Errorf("threshold = %f, want default %f", md.OODThreshold, DefaultOODThreshold)
	}
}

func TestLoadMetadataErrors(t *testing.T) {
	if _, err := LoadMetadata(t.TempDir()); err == nil {
		t.Error("expected error for missing metadata.json")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(`{"labels":[]}`), 0644)
	if _, err := LoadMetadata(dir); err == nil {
		t.Error("expected error for empty label list")
	}
}

func TestSoftmax(t *testing.T) {
	probs := softmax([]float32{1, 2, 3})
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("softmax sum = %f, want 1", sum)
	}
	if !(probs[2] > probs[1] && probs[1] > probs[0]) {
		t.Errorf("softmax not order-preserving: %v", probs)
	}
}
