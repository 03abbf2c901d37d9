package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// The emotion label set matches the trained sentiment model's six classes.
// EmotionNeutral is only produced by the heuristic fallback.
const (
	EmotionJoy      = "alegría"
	EmotionAnger    = "enojo"
	EmotionDisgust  = "asco"
	EmotionFear     = "miedo"
	EmotionSadness  = "tristeza"
	EmotionSurprise = "sorpresa"
	EmotionNeutral  = "neutral"
)

// Emotion is one scored emotion estimate for a message.
type Emotion struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// EmotionDetector estimates the dominant emotion of a message.
type EmotionDetector interface {
	Detect(ctx context.Context, text string) (Emotion, error)
}

// EmotionClient calls an external sequence-classification inference
// endpoint that returns scored labels. On any failure it degrades to
// HeuristicEmotion instead of failing the request.
type EmotionClient struct {
	Endpoint string
	Timeout  time.Duration
	http     http.Client
}

// NewEmotionClient builds a client for the given endpoint. An empty
// endpoint yields a client that always uses the heuristic fallback.
func NewEmotionClient(endpoint string) *EmotionClient {
	return &EmotionClient{Endpoint: endpoint, Timeout: DefaultTimeout}
}

type emotionRequest struct {
	Text string `json:"text"`
}

type scoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *EmotionClient) Detect(ctx context.Context, text string) (Emotion, error) {
	if c.Endpoint == "" {
		return HeuristicEmotion(text), nil
	}
	emo, err := c.call(ctx, text)
	if err != nil {
		return HeuristicEmotion(text), nil
	}
	return emo, nil
}

func (c *EmotionClient) call(ctx context.Context, text string) (Emotion, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(emotionRequest{Text: text})
	if err != nil {
		return Emotion{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Emotion{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Emotion{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Emotion{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Emotion{}, fmt.Errorf("emotion service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var labels []scoredLabel
	if err := json.Unmarshal(respBody, &labels); err != nil {
		return Emotion{}, fmt.Errorf("parsing response: %w", err)
	}
	if len(labels) == 0 {
		return Emotion{}, fmt.Errorf("empty response from emotion service")
	}

	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	if best.Score < 0 || best.Score > 1 {
		return Emotion{}, fmt.Errorf("emotion score %f outside [0,1]", best.Score)
	}
	return Emotion{Label: best.Label, Score: best.Score}, nil
}

// HeuristicEmotion is the degraded keyword-based estimate used when the
// emotion model is unavailable.
func HeuristicEmotion(text string) Emotion {
	t := strings.ToLower(text)
	for _, w := range []string{"feliz", "gracias", "genial", "excelente"} {
		if strings.Contains(t, w) {
			return Emotion{Label: EmotionJoy, Score: 0.8}
		}
	}
	for _, w := range []string{"irrit", "molest", "enoj", "rabia", "no funciona", "fallo", "error"} {
		if strings.Contains(t, w) {
			return Emotion{Label: EmotionAnger, Score: 0.6}
		}
	}
	for _, w := range []string{"triste", "deprim", "llor", "lament"} {
		if strings.Contains(t, w) {
			return Emotion{Label: EmotionSadness, Score: 0.6}
		}
	}
	return Emotion{Label: EmotionNeutral, Score: 0}
}
