package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ollamaProvider implements Provider using the Ollama chat API. Works against
// a local daemon or the hosted endpoint when an API key is set.
type ollamaProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  http.Client
}

// Ollama request/response types.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (o *ollamaProvider) Name() string {
	return "ollama/" + o.model
}

func (o *ollamaProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}

	messages := make([]ollamaMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})

	req := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: opts.Temperature,
		},
	}
	if opts.MaxTokens > 0 {
		req.Options.NumPredict = opts.MaxTokens
	}
	if strings.ToLower(opts.Format) == "json" {
		req.Format = "json"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := o.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var oResp ollamaResponse
	if err := json.Unmarshal(respBody, &oResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	if oResp.Error != "" {
		return "", fmt.Errorf("ollama API error: %s", oResp.Error)
	}

	if oResp.Message.Content == "" {
		return "", fmt.Errorf("empty response from ollama API")
	}

	return strings.TrimSpace(oResp.Message.Content), nil
}
