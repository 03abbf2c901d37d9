package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestHeuristicKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			"strips stopwords and short words",
			"El pago de la tarjeta no se acredita en mi cuenta",
			[]string{"pago", "tarjeta", "acredita", "cuenta"},
		},
		{
			"lowercases and keeps accents",
			"TRANSACCIÓN rechazada",
			[]string{"transacción", "rechazada"},
		},
		{"empty input", "", []string{}},
		{"only stopwords", "de la el en", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeuristicKeywords(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLemmatizerClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req lemmaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(lemmaResponse{Lemmas: []string{"Pagar", " tarjeta ", ""}})
	}))
	defer server.Close()

	c := NewLemmatizerClient(server.URL)
	got, err := c.Keywords(context.Background(), "pagué con tarjeta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"pagar", "tarjeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLemmatizerClientFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewLemmatizerClient(server.URL)
	got, err := c.Keywords(context.Background(), "el pago falló")
	if err != nil {
		t.Fatalf("fallback must not surface an error, got %v", err)
	}
	want := []string{"pago", "falló"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLemmatizerClientNoEndpoint(t *testing.T) {
	c := NewLemmatizerClient("")
	got, err := c.Keywords(context.Background(), "comisión del cobro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"comisión", "cobro"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEmotionClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]scoredLabel{
			{Label: EmotionSadness, Score: 0.2},
			{Label: EmotionAnger, Score: 0.75},
		})
	}))
	defer server.Close()

	c := NewEmotionClient(server.URL)
	got, err := c.Detect(context.Background(), "estoy molesto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Label != EmotionAnger || got.Score != 0.75 {
		t.Errorf("got %+v, want anger 0.75", got)
	}
}

func TestEmotionClientFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewEmotionClient(server.URL)
	got, err := c.Detect(context.Background(), "esto no funciona, qué fallo")
	if err != nil {
		t.Fatalf("fallback must not surface an error, got %v", err)
	}
	if got.Label != EmotionAnger {
		t.Errorf("label = %q, want heuristic %q", got.Label, EmotionAnger)
	}
}

func TestHeuristicEmotion(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"gracias, todo genial", EmotionJoy},
		{"esto me tiene enojado, nada funciona y da error", EmotionAnger},
		{"estoy muy triste por la cancelación", EmotionSadness},
		{"consulta sobre el calendario", EmotionNeutral},
	}
	for _, tt := range tests {
		if got := HeuristicEmotion(tt.text); got.Label != tt.want {
			t.Errorf("HeuristicEmotion(%q) = %q, want %q", tt.text, got.Label, tt.want)
		}
	}
	if HeuristicEmotion("nada relevante").Score != 0 {
		t.Error("neutral fallback must carry score 0")
	}
}
