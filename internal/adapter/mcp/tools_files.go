package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// jsonResult marshals v into a text tool result.
func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err)
	}
	return mcplib.NewToolResultText(string(data))
}

// registerFileTools registers the workspace file tools.
func (s *Server) registerFileTools() {
	s.addTool(mcplib.NewTool("read_file",
		mcplib.WithDescription("Read the content of a workspace file"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
	), s.handleReadFile)

	s.addTool(mcplib.NewTool("write_file",
		mcplib.WithDescription("Write content to a workspace file, creating it if needed"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
		mcplib.WithString("content",
			mcplib.Required(),
			mcplib.Description("Complete new file content"),
		),
	), s.handleWriteFile)

	s.addTool(mcplib.NewTool("delete_file",
		mcplib.WithDescription("Delete a workspace file"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
	), s.handleDeleteFile)

	s.addTool(mcplib.NewTool("move_file",
		mcplib.WithDescription("Move or rename a workspace file"),
		mcplib.WithString("old_path",
			mcplib.Required(),
			mcplib.Description("Current workspace-relative path"),
		),
		mcplib.WithString("new_path",
			mcplib.Required(),
			mcplib.Description("New workspace-relative path"),
		),
	), s.handleMoveFile)

	s.addTool(mcplib.NewTool("list_dir",
		mcplib.WithDescription("List the entries of a workspace directory"),
		mcplib.WithString("path",
			mcplib.Description("Workspace-relative directory, defaults to the root"),
		),
	), s.handleListDir)

	s.addTool(mcplib.NewTool("stat_file",
		mcplib.WithDescription("Get metadata for a workspace file or directory"),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative path"),
		),
	), s.handleStatFile)

	s.addTool(mcplib.NewTool("search_replace",
		mcplib.WithDescription("Replace a string in a workspace file. Without replace_all the search string must match exactly once."),
		mcplib.WithString("path",
			mcplib.Required(),
			mcplib.Description("Workspace-relative file path"),
		),
		mcplib.WithString("search",
			mcplib.Required(),
			mcplib.Description("Exact string to find"),
		),
		mcplib.WithString("replace",
			mcplib.Description("Replacement string, may be empty"),
		),
		mcplib.WithBoolean("replace_all",
			mcplib.Description("Replace every occurrence instead of requiring a unique match"),
		),
	), s.handleSearchReplace)

	s.addTool(mcplib.NewTool("diff_files",
		mcplib.WithDescription("Produce a unified diff between two workspace files"),
		mcplib.WithString("path_a",
			mcplib.Required(),
			mcplib.Description("First file, shown as removed lines"),
		),
		mcplib.WithString("path_b",
			mcplib.Required(),
			mcplib.Description("Second file, shown as added lines"),
		),
	), s.handleDiffFiles)
}

func (s *Server) handleReadFile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	content, err := s.deps.Files.Read(ctx, path)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to read file", err), nil
	}
	return mcplib.NewToolResultText(content), nil
}

func (s *Server) handleWriteFile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	content, ok := req.GetArguments()["content"].(string)
	if !ok {
		return mcplib.NewToolResultError("content is required"), nil
	}
	if err := s.deps.Files.Write(ctx, path, content); err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to write file", err), nil
	}
	return jsonResult(map[string]any{"path": path, "bytes": len(content)}), nil
}

func (s *Server) handleDeleteFile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if err := s.deps.Files.Delete(ctx, path); err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to delete file", err), nil
	}
	return jsonResult(map[string]any{"deleted": path}), nil
}

func (s *Server) handleMoveFile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	oldPath, err := stringArg(req, "old_path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	newPath, err := stringArg(req, "new_path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if err := s.deps.Files.Move(ctx, oldPath, newPath); err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to move file", err), nil
	}
	return jsonResult(map[string]any{"from": oldPath, "to": newPath}), nil
}

func (s *Server) handleListDir(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	dir := optionalString(req, "path")
	if dir == "" {
		dir = "."
	}
	entries, err := s.deps.Files.List(ctx, dir)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list directory", err), nil
	}
	return jsonResult(entries), nil
}

func (s *Server) handleStatFile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	entry, err := s.deps.Files.Stat(ctx, path)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to stat file", err), nil
	}
	return jsonResult(entry), nil
}

func (s *Server) handleSearchReplace(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	path, err := stringArg(req, "path")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	search, err := stringArg(req, "search")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	replace := optionalString(req, "replace")
	replaceAll := optionalBool(req, "replace_all")

	n, err := s.deps.Files.SearchReplace(ctx, path, search, replace, replaceAll)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to replace", err), nil
	}
	return jsonResult(map[string]any{"path": path, "replacements": n}), nil
}

func (s *Server) handleDiffFiles(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Files == nil {
		return mcplib.NewToolResultError("file service not configured"), nil
	}
	pathA, err := stringArg(req, "path_a")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	pathB, err := stringArg(req, "path_b")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	diff, err := s.deps.Files.Diff(ctx, pathA, pathB)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to diff files", err), nil
	}
	if diff == "" {
		return mcplib.NewToolResultText("files are identical"), nil
	}
	return mcplib.NewToolResultText(diff), nil
}
