package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wevently/triage/internal/audit"
	"github.com/wevently/triage/internal/route"
	"github.com/wevently/triage/internal/signal"
)

// stubEngine answers every message with a canned result and records what it
// was asked.
type stubEngine struct {
	result   route.Result
	err      error
	lastText string
	lastRole string
	calls    int
}

func (s *stubEngine) Handle(_ context.Context, text, role string) (route.Result, error) {
	s.calls++
	s.lastText = text
	s.lastRole = role
	return s.result, s.err
}

func testEngine() *stubEngine {
	return &stubEngine{
		result: route.Result{
			Response:   "Hola, tu pago fue rechazado por el banco.",
			Keywords:   []string{"pago", "tarjeta"},
			Emotion:    signal.Emotion{Label: signal.EmotionAnger, Score: 0.9},
			Confidence: 0.8,
		},
	}
}

func TestNewServer(t *testing.T) {
	srv := NewServer(ServerConfig{Engine: testEngine()})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

// callTool invokes an MCP tool through the JSON-RPC surface.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}

	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestAskTool(t *testing.T) {
	engine := testEngine()
	srv := NewServer(ServerConfig{Engine: engine})

	result := callTool(t, srv, "triage_ask", map[string]interface{}{
		"message": "mi pago con tarjeta fue rechazado",
		"role":    "Organizador",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}

	if engine.lastText != "mi pago con tarjeta fue rechazado" || engine.lastRole != "Organizador" {
		t.Errorf("engine received (%q, %q)", engine.lastText, engine.lastRole)
	}

	var parsed askResult
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &parsed); err != nil {
		t.Fatalf("parsing ask result: %v", err)
	}
	if parsed.Response != engine.result.Response {
		t.Errorf("response: got %q", parsed.Response)
	}
	if parsed.Emotion != signal.EmotionAnger || parsed.Confidence != 0.8 {
		t.Errorf("unexpected payload: %+v", parsed)
	}
}

func TestAskToolDefaultsRole(t *testing.T) {
	engine := testEngine()
	srv := NewServer(ServerConfig{Engine: engine})

	callTool(t, srv, "triage_ask", map[string]interface{}{
		"message": "consulta sin rol",
	})
	if engine.lastRole != "Prestador" {
		t.Errorf("default role: got %q, want Prestador", engine.lastRole)
	}
}

func TestAskToolRequiresMessage(t *testing.T) {
	srv := NewServer(ServerConfig{Engine: testEngine()})

	result := callTool(t, srv, "triage_ask", map[string]interface{}{
		"message": "   ",
	})
	if !result.IsError {
		t.Fatal("expected error for blank message")
	}
}

func TestAuditStatsResource(t *testing.T) {
	rec, err := audit.NewRecorder(filepath.Join(t.TempDir(), "log.json"))
	if err != nil {
		t.Fatal(err)
	}
	rec.Append(audit.Record{Input: "a", Response: "fallback"})
	rec.Append(audit.Record{Input: "b", Response: "ok", Timings: &audit.Timings{TotalMS: 120}})

	srv := NewServer(ServerConfig{Engine: testEngine(), Recorder: rec})

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "resources/read",
		"params":  map[string]interface{}{"uri": "triage://audit/stats"},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(respBytes), `\"total\": 2`) && !strings.Contains(string(respBytes), `"total": 2`) {
		t.Errorf("stats resource missing totals: %s", respBytes)
	}
}
