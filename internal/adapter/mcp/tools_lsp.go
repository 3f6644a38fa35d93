package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	lspDomain "github.com/tracefold/workbench/internal/domain/lsp"
)

// registerLSPTools registers the language intelligence tools.
func (s *Server) registerLSPTools() {
	s.addTool(mcplib.NewTool("lsp_diagnostics",
		mcplib.WithDescription("Get compiler and linter diagnostics for a workspace file"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
	), s.handleDiagnostics)

	s.addTool(mcplib.NewTool("lsp_completion",
		mcplib.WithDescription("Get code completion suggestions at a position (0-based line and character)"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Description("0-based line"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Description("0-based character"),
		),
	), s.handleCompletion)

	s.addTool(mcplib.NewTool("lsp_definition",
		mcplib.WithDescription("Find where the symbol at a position is defined"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Description("0-based line"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Description("0-based character"),
		),
	), s.handleDefinition)

	s.addTool(mcplib.NewTool("lsp_format",
		mcplib.WithDescription("Format a workspace file with its language server and write the result back"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
	), s.handleFormat)

	s.addTool(mcplib.NewTool("lsp_status",
		mcplib.WithDescription("Report the lifecycle state of every language server"),
	), s.handleLSPStatus)
}

func positionArgs(req mcplib.CallToolRequest) (string, lspDomain.Position, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	path, err := stringArg(req, "path")
	if err != nil {
		return "", lspDomain.Position{}, err
	}
	pos := lspDomain.Position{
		Line:      intArg(req, "line", 0),
		Character: intArg(req, "character", 0),
	}
	return path, pos, nil
}

func (s *Server) handleDiagnostics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.LSP == nil {
		return mcplib.NewToolResultError("lsp service not configured"), nil
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	diags, err := s.deps.LSP.GetDiagnostics(ctx, path)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get diagnostics", err), nil
	}
	if diags == nil {
		diags = []lspDomain.Diagnostic{}
	}
	return jsonResult(diags), nil
}

func (s *Server) handleCompletion(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.LSP == nil {
		return mcplib.NewToolResultError("lsp service not configured"), nil
	}
	path, pos, err := positionArgs(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	list, err := s.deps.LSP.GetCompletions(ctx, path, pos)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get completions", err), nil
	}
	return jsonResult(list), nil
}

func (s *Server) handleDefinition(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.LSP == nil {
		return mcplib.NewToolResultError("lsp service not configured"), nil
	}
	path, pos, err := positionArgs(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	locs, err := s.deps.LSP.GetDefinition(ctx, path, pos)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get definition", err), nil
	}
	if locs == nil {
		locs = []lspDomain.Location{}
	}
	return jsonResult(locs), nil
}

func (s *Server) handleFormat(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.LSP == nil {
		return mcplib.NewToolResultError("lsp service not configured"), nil
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	result, err := s.deps.LSP.FormatDocument(ctx, path)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to format document", err), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleLSPStatus(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.LSP == nil {
		return mcplib.NewToolResultError("lsp service not configured"), nil
	}
	infos := s.deps.LSP.Status()
	if infos == nil {
		infos = []lspDomain.ServerInfo{}
	}
	return jsonResult(infos), nil
}
