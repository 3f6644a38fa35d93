package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerExecTools registers command execution and change-log tools.
func (s *Server) registerExecTools() {
	s.addTool(mcplib.NewTool("run_command",
		mcplib.WithDescription("Run an allowlisted command in the workspace. No shell: arguments are passed verbatim."),
		mcplib.WithArray("argv",
			mcplib.Required(),
			mcplib.Description("Command and arguments, e.g. [\"go\", \"test\", \"./...\"]"),
		),
	), s.handleRunCommand)

	s.addTool(mcplib.NewTool("record_fact",
		mcplib.WithDescription("Append a free-form note to the change log"),
		mcplib.WithString("detail",
			mcplib.Required(),
			mcplib.Description("The note text"),
		),
		mcplib.WithString("path",
			mcplib.Description("Workspace-relative path the note refers to, if any"),
		),
	), s.handleRecordFact)

	s.addTool(mcplib.NewTool("list_facts",
		mcplib.WithDescription("List recent change-log entries, newest first"),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum entries to return, default 50"),
		),
	), s.handleListFacts)
}

func (s *Server) handleRunCommand(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Exec == nil {
		return mcplib.NewToolResultError("exec service not configured"), nil
	}

	raw, ok := req.GetArguments()["argv"].([]any)
	if !ok || len(raw) == 0 {
		return mcplib.NewToolResultError("argv is required and must be a non-empty array"), nil
	}
	argv := make([]string, len(raw))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			return mcplib.NewToolResultError(fmt.Sprintf("argv[%d] is not a string", i)), nil
		}
		argv[i] = str
	}

	if m := s.deps.Metrics; m != nil {
		m.CommandsRun.Add(ctx, 1)
	}
	result, err := s.deps.Exec.Run(ctx, argv)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("command failed", err), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleRecordFact(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	detail, err := stringArg(req, "detail")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	path := optionalString(req, "path")

	f, err := s.deps.Files.RecordNote(ctx, path, detail)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to record fact", err), nil
	}
	return jsonResult(f), nil
}

func (s *Server) handleListFacts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	limit := intArg(req, "limit", 50)

	facts, err := s.deps.Files.RecentFacts(ctx, limit)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list facts", err), nil
	}
	return jsonResult(facts), nil
}
