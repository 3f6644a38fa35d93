package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	lspAdapter "github.com/tracefold/workbench/internal/adapter/lsp"
	"github.com/tracefold/workbench/internal/adapter/ws"
	"github.com/tracefold/workbench/internal/config"
	lspDomain "github.com/tracefold/workbench/internal/domain/lsp"
	"github.com/tracefold/workbench/internal/port/storage"
)

// ErrNoServerForFile indicates the file's extension matches no configured
// family and no default family is configured to absorb it.
var ErrNoServerForFile = errors.New("no language server configured for file type")

// diagDebounce spaces out WebSocket diagnostic broadcasts per file while a
// server is streaming updates.
const diagDebounce = 250 * time.Millisecond

// LSPService routes code-intelligence requests to per-family language server
// clients. Clients are owned by the service instance, created lazily on first
// use, and never restarted automatically: a family whose client lands in a
// terminal state keeps failing until the operator restarts the process.
type LSPService struct {
	cfg   *config.LSP
	hub   *ws.Hub
	files storage.FileStore

	mu      sync.Mutex
	clients map[string]*lspAdapter.Client // family -> client
	shut    bool

	// Last content synchronized to a server, keyed by absolute path. Used to
	// skip didChange notifications when nothing changed.
	syncMu sync.Mutex
	synced map[string]string

	// Debounce diagnostic broadcasts per absolute path.
	diagMu     sync.Mutex
	diagTimers map[string]*time.Timer
}

// NewLSPService creates an LSP router backed by the given file store. The hub
// may be nil to disable event broadcasting.
func NewLSPService(cfg *config.LSP, files storage.FileStore, hub *ws.Hub) *LSPService {
	return &LSPService{
		cfg:        cfg,
		hub:        hub,
		files:      files,
		clients:    make(map[string]*lspAdapter.Client),
		synced:     make(map[string]string),
		diagTimers: make(map[string]*time.Timer),
	}
}

// serverConfigs returns the configured family map, falling back to the
// built-in defaults when none is configured.
func (s *LSPService) serverConfigs() map[string]lspDomain.ServerConfig {
	if len(s.cfg.Servers) == 0 {
		return lspDomain.DefaultServers
	}
	out := make(map[string]lspDomain.ServerConfig, len(s.cfg.Servers))
	for family, ls := range s.cfg.Servers {
		out[family] = lspDomain.ServerConfig{
			Command:    ls.Command,
			Extensions: ls.Extensions,
			LanguageID: ls.LanguageID,
		}
	}
	return out
}

// familyForPath maps a file extension to the language family serving it.
// Unmatched extensions route to the configured default family, so routing
// only fails when the default family itself is absent.
func (s *LSPService) familyForPath(path string) (string, lspDomain.ServerConfig, error) {
	ext := strings.ToLower(filepath.Ext(path))
	configs := s.serverConfigs()
	for family, cfg := range configs {
		for _, e := range cfg.Extensions {
			if strings.EqualFold(e, ext) {
				return family, cfg, nil
			}
		}
	}
	if cfg, ok := configs[s.cfg.DefaultFamily]; ok {
		return s.cfg.DefaultFamily, cfg, nil
	}
	return "", lspDomain.ServerConfig{}, fmt.Errorf("%q: %w", ext, ErrNoServerForFile)
}

// clientFor returns the client serving path, launching it on first use.
func (s *LSPService) clientFor(ctx context.Context, path string) (*lspAdapter.Client, error) {
	family, cfg, err := s.familyForPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return nil, fmt.Errorf("lsp service: %w", lspAdapter.ErrUnavailable)
	}
	client, ok := s.clients[family]
	if !ok {
		client = lspAdapter.NewClient(family, cfg, s.cfg, s.workspaceRoot())
		s.clients[family] = client
		s.mu.Unlock()

		client.OnDiagnostics(func(absPath string, diags []lspDomain.Diagnostic) {
			s.onDiagnostics(family, absPath, diags)
		})
		s.broadcastStatus(ctx, family, lspDomain.StatusStarting, "")

		if err := client.Start(ctx); err != nil {
			s.broadcastStatus(ctx, family, client.Status(), err.Error())
			return nil, fmt.Errorf("lsp %s: %w", family, err)
		}
		s.broadcastStatus(ctx, family, lspDomain.StatusReady, "")
		return client, nil
	}
	s.mu.Unlock()

	if st := client.Status(); st.Terminal() {
		lastErr := client.LastError()
		if lastErr == nil {
			lastErr = lspAdapter.ErrUnavailable
		}
		return nil, fmt.Errorf("lsp %s is %s: %w", family, st, lastErr)
	}
	if err := client.WaitReady(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *LSPService) workspaceRoot() string {
	abs, err := s.files.Abs(".")
	if err != nil {
		return "."
	}
	return abs
}

// syncDocument makes sure the server's view of path matches the file content
// on disk: didOpen on first contact, didChange when the content moved since
// the last sync, nothing when it is already current. Returns the document
// version the current content corresponds to.
func (s *LSPService) syncDocument(ctx context.Context, client *lspAdapter.Client, absPath, relPath string) (int, error) {
	content, err := s.files.ReadText(ctx, relPath)
	if err != nil {
		return 0, err
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if !client.IsOpen(absPath) {
		if err := client.OpenDocument(ctx, absPath, content); err != nil {
			return 0, err
		}
		s.synced[absPath] = content
		return 1, nil
	}

	if s.synced[absPath] != content {
		if err := client.NotifyChanged(ctx, absPath, content); err != nil {
			return 0, err
		}
		s.synced[absPath] = content
	}

	v, _ := client.Version(absPath)
	return v, nil
}

// GetDiagnostics returns diagnostics for a workspace-relative path. It syncs
// the document, then waits a bounded interval for the server to publish a set
// covering the synced version; on timeout the latest cached set is returned
// rather than an error, since diagnostics are push-only and a quiet server
// usually means nothing changed.
func (s *LSPService) GetDiagnostics(ctx context.Context, relPath string) ([]lspDomain.Diagnostic, error) {
	client, err := s.clientFor(ctx, relPath)
	if err != nil {
		return nil, err
	}
	absPath, err := s.files.Abs(relPath)
	if err != nil {
		return nil, err
	}

	version, err := s.syncDocument(ctx, client, absPath, relPath)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.DiagnosticsWait)
	defer cancel()

	diags, err := client.WaitDiagnostics(waitCtx, absPath, version)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return client.Diagnostics(absPath), nil
		}
		return nil, err
	}
	return diags, nil
}

// GetCompletions returns completion items at a position.
func (s *LSPService) GetCompletions(ctx context.Context, relPath string, pos lspDomain.Position) (*lspDomain.CompletionList, error) {
	client, absPath, err := s.syncedClient(ctx, relPath)
	if err != nil {
		return nil, err
	}
	return client.Completion(ctx, absPath, pos)
}

// GetDefinition returns go-to-definition locations, with workspace-relative
// paths substituted for file URIs inside the workspace.
func (s *LSPService) GetDefinition(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error) {
	client, absPath, err := s.syncedClient(ctx, relPath)
	if err != nil {
		return nil, err
	}
	locs, err := client.Definition(ctx, absPath, pos)
	if err != nil {
		return nil, err
	}
	root := s.workspaceRoot()
	for i := range locs {
		p := lspAdapter.URIToPath(locs[i].URI)
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			locs[i].URI = rel
		}
	}
	return locs, nil
}

// FormatDocument requests formatting edits, applies them to the file, writes
// the result back, and re-syncs the server. No edits means no write.
func (s *LSPService) FormatDocument(ctx context.Context, relPath string) (*lspDomain.FormatResult, error) {
	client, absPath, err := s.syncedClient(ctx, relPath)
	if err != nil {
		return nil, err
	}

	edits, err := client.Formatting(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return &lspDomain.FormatResult{Applied: false}, nil
	}

	content, err := s.files.ReadText(ctx, relPath)
	if err != nil {
		return nil, err
	}
	formatted := lspAdapter.ApplyEdits(content, edits)
	if formatted == content {
		return &lspDomain.FormatResult{Applied: false}, nil
	}

	if err := s.files.WriteText(ctx, relPath, formatted); err != nil {
		return nil, err
	}

	s.syncMu.Lock()
	if err := client.NotifyChanged(ctx, absPath, formatted); err != nil {
		slog.Warn("lsp resync after format failed", "path", relPath, "error", err)
	} else {
		s.synced[absPath] = formatted
	}
	s.syncMu.Unlock()

	return &lspDomain.FormatResult{Applied: true, NewContent: formatted}, nil
}

// syncedClient resolves the client for relPath and brings its document view
// up to date with the file on disk.
func (s *LSPService) syncedClient(ctx context.Context, relPath string) (*lspAdapter.Client, string, error) {
	client, err := s.clientFor(ctx, relPath)
	if err != nil {
		return nil, "", err
	}
	absPath, err := s.files.Abs(relPath)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.syncDocument(ctx, client, absPath, relPath); err != nil {
		return nil, "", err
	}
	return client, absPath, nil
}

// FileChanged tells any client with the document open that the file was
// modified outside the LSP flow (a write_file or search_replace tool call).
// Best effort: a failed notification only logs.
func (s *LSPService) FileChanged(ctx context.Context, relPath, content string) {
	absPath, err := s.files.Abs(relPath)
	if err != nil {
		return
	}

	s.mu.Lock()
	clients := make([]*lspAdapter.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if !c.IsOpen(absPath) {
			continue
		}
		s.syncMu.Lock()
		if err := c.NotifyChanged(ctx, absPath, content); err != nil {
			slog.Debug("lsp change notification failed", "family", c.Family(), "path", relPath, "error", err)
		} else {
			s.synced[absPath] = content
		}
		s.syncMu.Unlock()
	}
}

// Status reports every client this instance has created, sorted by family.
func (s *LSPService) Status() []lspDomain.ServerInfo {
	s.mu.Lock()
	clients := make(map[string]*lspAdapter.Client, len(s.clients))
	for f, c := range s.clients {
		clients[f] = c
	}
	s.mu.Unlock()

	configs := s.serverConfigs()
	infos := make([]lspDomain.ServerInfo, 0, len(clients))
	for family, client := range clients {
		info := lspDomain.ServerInfo{
			Family:      family,
			Status:      client.Status(),
			Command:     strings.Join(configs[family].Command, " "),
			PID:         client.PID(),
			Diagnostics: client.DiagnosticCount(),
		}
		if err := client.LastError(); err != nil {
			info.Error = err.Error()
		}
		infos = append(infos, info)
	}
	return infos
}

// ShutdownAll stops every running client concurrently. The method is
// idempotent: the first call performs the shutdown, later calls return nil
// immediately. New clients cannot be created afterwards.
func (s *LSPService) ShutdownAll(ctx context.Context) error {
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return nil
	}
	s.shut = true
	clients := make([]*lspAdapter.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, client := range clients {
		g.Go(func() error {
			if err := client.Shutdown(gctx); err != nil {
				slog.Warn("lsp shutdown failed", "family", client.Family(), "error", err)
			}
			s.broadcastStatus(ctx, client.Family(), lspDomain.StatusExited, "")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("lsp servers stopped", "count", len(clients))
	return nil
}

// --- Event broadcasting ---

// onDiagnostics debounces WebSocket broadcasts per file while diagnostics
// stream in.
func (s *LSPService) onDiagnostics(family, absPath string, diags []lspDomain.Diagnostic) {
	if s.hub == nil {
		return
	}

	relPath := absPath
	if rel, err := filepath.Rel(s.workspaceRoot(), absPath); err == nil {
		relPath = rel
	}

	s.diagMu.Lock()
	defer s.diagMu.Unlock()

	if t, ok := s.diagTimers[absPath]; ok {
		t.Stop()
	}
	s.diagTimers[absPath] = time.AfterFunc(diagDebounce, func() {
		s.hub.BroadcastEvent(context.Background(), ws.EventDiagnostics, ws.DiagnosticsEvent{
			Path:        relPath,
			Family:      family,
			Diagnostics: diags,
		})
		s.diagMu.Lock()
		delete(s.diagTimers, absPath)
		s.diagMu.Unlock()
	})
}

func (s *LSPService) broadcastStatus(ctx context.Context, family string, status lspDomain.ServerStatus, errMsg string) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(ctx, ws.EventServerStatus, ws.ServerStatusEvent{
		Family: family,
		Status: string(status),
		Error:  errMsg,
	})
}
