package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"workbench://lsp/status",
			"Language Server Status",
			mcplib.WithResourceDescription("Lifecycle state of every language server client"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleLSPStatusResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"workbench://facts/recent",
			"Recent Facts",
			mcplib.WithResourceDescription("The most recent change-log entries, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleFactsResource,
	)
}

func (s *Server) handleLSPStatusResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.LSP == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"lsp service not configured"}`,
			},
		}, nil
	}
	data, err := json.Marshal(s.deps.LSP.Status())
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleFactsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Files == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"file service not configured"}`,
			},
		}, nil
	}
	facts, err := s.deps.Files.RecentFacts(ctx, 50)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(facts)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
