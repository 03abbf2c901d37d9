// Package signal extracts the two upstream signals the triage pipeline
// consumes from a raw message: the lemmatized keyword set and the emotion
// estimate. Both wrap external services and degrade to local heuristics
// when the service is unconfigured or unreachable.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeout bounds a single call to an external signal service.
const DefaultTimeout = 5 * time.Second

// wordRE matches alphabetic words including Spanish accented vowels and ñ.
var wordRE = regexp.MustCompile(`[a-záéíóúüñ]+`)

// fallbackStopwords is the closed Spanish stopword list used when the
// lemmatizer service is unavailable.
var fallbackStopwords = map[string]struct{}{
	"y": {}, "o": {}, "el": {}, "la": {}, "los": {}, "las": {},
	"un": {}, "una": {}, "unos": {}, "unas": {}, "de": {}, "del": {},
	"que": {}, "en": {}, "por": {}, "para": {}, "con": {}, "sin": {},
	"se": {}, "es": {}, "esta": {}, "está": {}, "al": {}, "como": {},
	"su": {}, "sus": {}, "le": {}, "les": {}, "lo": {}, "me": {},
	"te": {}, "mi": {}, "tu": {}, "si": {}, "no": {}, "pero": {},
	"porque": {}, "cuando": {}, "donde": {}, "a": {}, "ante": {},
	"bajo": {}, "contra": {}, "sobre": {}, "tras": {}, "entre": {},
	"hasta": {}, "desde": {}, "durante": {},
}

// KeywordExtractor produces the lowercase lemma sequence for a message.
type KeywordExtractor interface {
	Keywords(ctx context.Context, text string) ([]string, error)
}

// LemmatizerClient calls an external lemmatizer service
// (POST {"text": ...} -> {"lemmas": [...]}). On any transport or decode
// error it falls back to HeuristicKeywords rather than failing the request.
type LemmatizerClient struct {
	Endpoint string
	Timeout  time.Duration
	http     http.Client
}

// NewLemmatizerClient builds a client for the given endpoint. An empty
// endpoint yields a client that always uses the heuristic fallback.
func NewLemmatizerClient(endpoint string) *LemmatizerClient {
	return &LemmatizerClient{Endpoint: endpoint, Timeout: DefaultTimeout}
}

type lemmaRequest struct {
	Text string `json:"text"`
}

type lemmaResponse struct {
	Lemmas []string `json:"lemmas"`
}

func (c *LemmatizerClient) Keywords(ctx context.Context, text string) ([]string, error) {
	if c.Endpoint == "" {
		return HeuristicKeywords(text), nil
	}

	lemmas, err := c.call(ctx, text)
	if err != nil {
		return HeuristicKeywords(text), nil
	}

	out := make([]string, 0, len(lemmas))
	for _, l := range lemmas {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *LemmatizerClient) call(ctx context.Context, text string) ([]string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(lemmaRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lemmatizer error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var lr lemmaResponse
	if err := json.Unmarshal(respBody, &lr); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return lr.Lemmas, nil
}

// HeuristicKeywords is the degraded extractor: lowercase word split with a
// fixed stopword list, keeping words longer than two characters. Order of
// appearance is preserved.
func HeuristicKeywords(text string) []string {
	words := wordRE.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, stop := fallbackStopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
