// Package mcp provides a Model Context Protocol server for the triage
// pipeline.
//
// It exposes message handling as the triage_ask tool and the audit log as
// read-only resources. Runs over stdio transport so desktop agents can use
// the support pipeline directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wevently/triage/internal/audit"
	"github.com/wevently/triage/internal/compose"
	"github.com/wevently/triage/internal/route"
)

// Handler runs the triage pipeline for one message. *route.Engine is the
// production implementation.
type Handler interface {
	Handle(ctx context.Context, text, role string) (route.Result, error)
}

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine   Handler
	Recorder *audit.Recorder // optional, backs the audit resources
	Version  string          // version string for MCP server info
}

// NewServer creates a configured MCP server with the triage tool and audit
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Wevently Triage",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerAskTool(s, cfg.Engine)
	if cfg.Recorder != nil {
		registerAuditStatsResource(s, cfg.Recorder)
		registerAuditRecentResource(s, cfg.Recorder)
	}

	return s
}

// askResult is the JSON payload returned by the triage_ask tool.
type askResult struct {
	Response   string   `json:"respuesta"`
	Keywords   []string `json:"keywords"`
	Emotion    string   `json:"emocion"`
	Confidence float64  `json:"confianza"`
}

func registerAskTool(s *server.MCPServer, engine Handler) {
	tool := mcp.NewTool("triage_ask",
		mcp.WithDescription("Answer a Wevently support question. Classifies the message, consults the knowledge base, and returns a role-aware reply with detected keywords, emotion, and decision confidence."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user's support message, in Spanish"),
		),
		mcp.WithString("role",
			mcp.Description("User role on the platform (default: Prestador)"),
			mcp.Enum("Organizador", "Prestador", "Propietario"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return mcp.NewToolResultError("message is required"), nil
		}

		role := compose.DefaultRole
		if r, err := req.RequireString("role"); err == nil && r != "" {
			role = r
		}

		res, err := engine.Handle(ctx, message, role)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("triage error: %v", err)), nil
		}

		keywords := res.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		data, _ := json.MarshalIndent(askResult{
			Response:   res.Response,
			Keywords:   keywords,
			Emotion:    res.Emotion.Label,
			Confidence: res.Confidence,
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAuditStatsResource(s *server.MCPServer, rec *audit.Recorder) {
	resource := mcp.NewResource(
		"triage://audit/stats",
		"Audit Stats",
		mcp.WithResourceDescription("Aggregate counts over the audit log: total messages, full-pipeline runs, fallbacks, and average latency."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := rec.Summarize()
		if err != nil {
			return nil, fmt.Errorf("summarizing audit log: %w", err)
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

const recentResourceLimit = 20

func registerAuditRecentResource(s *server.MCPServer, rec *audit.Recorder) {
	resource := mcp.NewResource(
		"triage://audit/recent",
		"Recent Messages",
		mcp.WithResourceDescription("The most recent audit records, newest last."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		records, err := rec.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("reading audit log: %w", err)
		}
		if len(records) > recentResourceLimit {
			records = records[len(records)-recentResourceLimit:]
		}
		payload := map[string]interface{}{
			"records": records,
			"count":   len(records),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
