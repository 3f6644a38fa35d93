// Package mcp exposes the workbench tool surface over the Model Context
// Protocol: file operations, sandboxed command execution, the change log,
// and language intelligence.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tracefold/workbench/internal/adapter/otel"
	"github.com/tracefold/workbench/internal/domain/fact"
	lspDomain "github.com/tracefold/workbench/internal/domain/lsp"
	"github.com/tracefold/workbench/internal/logger"
	"github.com/tracefold/workbench/internal/port/storage"
	"github.com/tracefold/workbench/internal/service"
)

// FileAPI is the slice of the file service the tool handlers need.
type FileAPI interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, content string) error
	Delete(ctx context.Context, path string) error
	Move(ctx context.Context, oldPath, newPath string) error
	List(ctx context.Context, dir string) ([]storage.Entry, error)
	Stat(ctx context.Context, path string) (storage.Entry, error)
	SearchReplace(ctx context.Context, path, search, replace string, replaceAll bool) (int, error)
	Diff(ctx context.Context, pathA, pathB string) (string, error)
	RecordNote(ctx context.Context, path, detail string) (fact.Fact, error)
	RecentFacts(ctx context.Context, limit int) ([]fact.Fact, error)
}

// ExecAPI runs sandboxed commands.
type ExecAPI interface {
	Run(ctx context.Context, argv []string) (*service.ExecResult, error)
}

// LSPAPI is the slice of the LSP router the tool handlers need.
type LSPAPI interface {
	GetDiagnostics(ctx context.Context, path string) ([]lspDomain.Diagnostic, error)
	GetCompletions(ctx context.Context, path string, pos lspDomain.Position) (*lspDomain.CompletionList, error)
	GetDefinition(ctx context.Context, path string, pos lspDomain.Position) ([]lspDomain.Location, error)
	FormatDocument(ctx context.Context, path string) (*lspDomain.FormatResult, error)
	Status() []lspDomain.ServerInfo
}

// ServerConfig holds the MCP server configuration.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps are the services the tool handlers delegate to. Nil fields make
// the corresponding tools return a configuration error result.
type ServerDeps struct {
	Files   FileAPI
	Exec    ExecAPI
	LSP     LSPAPI
	Metrics *otel.Metrics
}

// Server wraps an mcp-go server with the workbench tools and resources and
// serves it over streamable HTTP.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
	tools      map[string]mcpserver.ServerTool
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(true, true),
		),
		tools: make(map[string]mcpserver.ServerTool),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Tools returns the registered tools by name.
func (s *Server) Tools() map[string]mcpserver.ServerTool {
	out := make(map[string]mcpserver.ServerTool, len(s.tools))
	for name, t := range s.tools {
		out[name] = t
	}
	return out
}

// Handler returns the streamable HTTP handler, with auth applied, suitable
// for mounting into an existing router.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}

// Start serves the MCP endpoint on its own listener. Use Handler to mount it
// into an existing router instead.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return errors.New("mcp server: no listen address configured")
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("mcp server: %v", err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the standalone listener, if one was started.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// addTool registers a tool and instruments its handler with a span and the
// tool-call counters.
func (s *Server) addTool(tool mcplib.Tool, handler mcpserver.ToolHandlerFunc) {
	name := tool.Name
	wrapped := func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		ctx = logger.WithTool(ctx, name)
		ctx, span := otel.StartToolSpan(ctx, name)
		defer span.End()

		if m := s.deps.Metrics; m != nil {
			m.ToolCalls.Add(ctx, 1)
		}
		result, err := handler(ctx, req)
		if m := s.deps.Metrics; m != nil && (err != nil || (result != nil && result.IsError)) {
			m.ToolErrors.Add(ctx, 1)
		}
		return result, err
	}

	st := mcpserver.ServerTool{Tool: tool, Handler: wrapped}
	s.tools[name] = st
	s.mcpServer.AddTools(st)
}

// registerTools registers the full tool surface.
func (s *Server) registerTools() {
	s.registerFileTools()
	s.registerExecTools()
	s.registerLSPTools()
}

// stringArg extracts a required string argument.
func stringArg(req mcplib.CallToolRequest, name string) (string, error) {
	v, ok := req.GetArguments()[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// optionalString extracts an optional string argument, "" when absent.
func optionalString(req mcplib.CallToolRequest, name string) string {
	v, _ := req.GetArguments()[name].(string)
	return v
}

// optionalBool extracts an optional bool argument, false when absent.
func optionalBool(req mcplib.CallToolRequest, name string) bool {
	v, _ := req.GetArguments()[name].(bool)
	return v
}

// intArg extracts an optional numeric argument (JSON numbers arrive as float64).
func intArg(req mcplib.CallToolRequest, name string, def int) int {
	if v, ok := req.GetArguments()[name].(float64); ok {
		return int(v)
	}
	return def
}
