package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tracefold/workbench/internal/config"
	lspdomain "github.com/tracefold/workbench/internal/domain/lsp"
)

// Client manages a single language server subprocess and provides code
// intelligence operations. One Client serves one language family; message
// handling is single-threaded per client (one read loop drives all dispatch),
// so the pending-request and document maps see no concurrent mutation from
// the receive path.
type Client struct {
	family    string
	cfg       lspdomain.ServerConfig
	lspCfg    *config.LSP
	workspace string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *frameWriter

	mu      sync.Mutex
	status  lspdomain.ServerStatus
	lastErr error

	nextID  atomic.Int64
	pendMu  sync.Mutex
	pending map[int64]chan *Message

	docMu sync.Mutex
	docs  map[string]int // absolute path -> version, monotonic and gapless

	diagMu       sync.RWMutex
	diags        map[string][]lspdomain.Diagnostic
	diagVersions map[string]int // path -> document version the cached set corresponds to
	diagWaiters  []chan struct{}
	onDiagnostic func(path string, diags []lspdomain.Diagnostic)

	ready     chan struct{} // closed when the handshake completes
	done      chan struct{} // closed when the connection is torn down
	exited    chan struct{} // closed by monitor once the subprocess is reaped
	closeOnce sync.Once
}

// NewClient creates a client for one language family. The subprocess is not
// launched until Start is called.
func NewClient(family string, cfg lspdomain.ServerConfig, lspCfg *config.LSP, workspace string) *Client {
	return &Client{
		family:       family,
		cfg:          cfg,
		lspCfg:       lspCfg,
		workspace:    workspace,
		status:       lspdomain.StatusUnstarted,
		pending:      make(map[int64]chan *Message),
		docs:         make(map[string]int),
		diags:        make(map[string][]lspdomain.Diagnostic),
		diagVersions: make(map[string]int),
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
	}
}

// Family returns the language family this client serves.
func (c *Client) Family() string { return c.family }

// Status returns the current lifecycle state.
func (c *Client) Status() lspdomain.ServerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the error that moved the client into a terminal state.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// PID returns the subprocess pid, or 0 when not running.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

// OnDiagnostics registers a callback invoked after each diagnostics push.
func (c *Client) OnDiagnostics(fn func(path string, diags []lspdomain.Diagnostic)) {
	c.diagMu.Lock()
	c.onDiagnostic = fn
	c.diagMu.Unlock()
}

// Start spawns the subprocess and performs the initialize handshake.
// On any failure the client lands in a terminal state; there is no automatic
// restart, that policy belongs to an outer supervisor.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != lspdomain.StatusUnstarted {
		st := c.status
		c.mu.Unlock()
		return fmt.Errorf("start %s: client already %s", c.family, st)
	}
	c.status = lspdomain.StatusStarting
	c.mu.Unlock()

	if len(c.cfg.Command) == 0 {
		return c.fail(fmt.Errorf("start %s: no command configured: %w", c.family, ErrLaunch))
	}
	if _, err := exec.LookPath(c.cfg.Command[0]); err != nil {
		return c.fail(fmt.Errorf("start %s: binary %q not found: %w", c.family, c.cfg.Command[0], ErrLaunch))
	}

	cmd := exec.Command(c.cfg.Command[0], c.cfg.Command[1:]...) //nolint:gosec // command from trusted config
	cmd.Dir = c.workspace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return c.fail(fmt.Errorf("start %s: stdin pipe: %w", c.family, err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return c.fail(fmt.Errorf("start %s: stdout pipe: %w", c.family, err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return c.fail(fmt.Errorf("start %s: stderr pipe: %w", c.family, err))
	}

	if err := cmd.Start(); err != nil {
		return c.fail(fmt.Errorf("start %s: %v: %w", c.family, err, ErrLaunch))
	}

	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.writer = &frameWriter{w: stdin}
	c.status = lspdomain.StatusInitializing
	c.mu.Unlock()

	go c.readLoop(stdout)
	go c.logStderr(stderr)
	go c.monitor(cmd)

	if err := c.initialize(ctx); err != nil {
		_ = cmd.Process.Kill()
		c.teardown(lspdomain.StatusFailed, err)
		return fmt.Errorf("start %s: %v: %w", c.family, err, ErrHandshake)
	}

	c.mu.Lock()
	c.status = lspdomain.StatusReady
	c.mu.Unlock()
	close(c.ready)

	slog.Info("lsp server started", "family", c.family, "pid", cmd.Process.Pid, "workspace", c.workspace)
	return nil
}

// fail records a launch failure before any subprocess exists.
func (c *Client) fail(err error) error {
	c.teardown(lspdomain.StatusFailed, err)
	return err
}

// WaitReady blocks until the handshake completes, the client dies, or ctx
// expires.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return fmt.Errorf("wait ready %s: %w", c.family, ErrNotReady)
	case <-ctx.Done():
		return fmt.Errorf("wait ready %s: %w", c.family, ctx.Err())
	}
}

// initialize performs the LSP initialize/initialized handshake.
func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   PathToURI(c.workspace),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"publishDiagnostics": map[string]any{},
				"completion":         map[string]any{},
				"definition":         map[string]any{},
				"formatting":         map[string]any{},
				"synchronization":    map[string]any{"didSave": false},
			},
		},
	}

	if _, err := c.request(ctx, "initialize", params, c.lspCfg.StartTimeout); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	if err := c.Notify("initialized", map[string]any{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// Call sends a request and waits for its response with the configured
// per-request timeout. Requests against a non-ready client fail immediately;
// nothing is queued.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.Status() != lspdomain.StatusReady {
		return nil, fmt.Errorf("%s %s: %w", method, c.family, ErrNotReady)
	}
	return c.request(ctx, method, params, c.lspCfg.RequestTimeout)
}

// request is the correlator: it allocates an id, registers a pending entry,
// writes the framed request, and resolves exactly once on response, timeout,
// connection loss, or ctx cancellation, whichever comes first. A response for
// an id whose entry has already been removed is discarded silently.
func (c *Client) request(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan *Message, 1)

	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()

	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	msg, err := newRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if err := c.writer.writeMessage(msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s %s: %w", method, c.family, resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s %s after %s: %w", method, c.family, timeout, ErrTimeout)
	case <-c.done:
		return nil, fmt.Errorf("%s %s: %w", method, c.family, ErrUnavailable)
	case <-ctx.Done():
		return nil, fmt.Errorf("%s %s: %w", method, c.family, ctx.Err())
	}
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(method string, params any) error {
	msg, err := newNotification(method, params)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := c.writer.writeMessage(msg); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	return nil
}

// --- Document synchronization ---

// IsOpen reports whether path is tracked as open.
func (c *Client) IsOpen(path string) bool {
	c.docMu.Lock()
	defer c.docMu.Unlock()
	_, ok := c.docs[path]
	return ok
}

// Version returns the current synchronized version of path.
func (c *Client) Version(path string) (int, bool) {
	c.docMu.Lock()
	defer c.docMu.Unlock()
	v, ok := c.docs[path]
	return v, ok
}

// OpenDocument sends textDocument/didOpen for path at version 1. It waits for
// the client to become ready first and is idempotent: a second call for an
// already-open path sends nothing and leaves the version untouched.
func (c *Client) OpenDocument(ctx context.Context, path, content string) error {
	if err := c.WaitReady(ctx); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	c.docMu.Lock()
	if _, ok := c.docs[path]; ok {
		c.docMu.Unlock()
		return nil
	}
	c.docs[path] = 1
	c.docMu.Unlock()

	params := map[string]any{
		"textDocument": map[string]any{
			"uri":        PathToURI(path),
			"languageId": c.languageID(path),
			"version":    1,
			"text":       content,
		},
	}
	if err := c.Notify("textDocument/didOpen", params); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return nil
}

// NotifyChanged sends textDocument/didChange with the complete new text
// (whole-document replacement) and bumps the version by exactly one.
func (c *Client) NotifyChanged(ctx context.Context, path, newText string) error {
	if c.Status() != lspdomain.StatusReady {
		return fmt.Errorf("change %s: %w", path, ErrNotReady)
	}

	c.docMu.Lock()
	version, ok := c.docs[path]
	if !ok {
		c.docMu.Unlock()
		return fmt.Errorf("change %s: %w", path, ErrDocumentNotOpen)
	}
	version++
	c.docs[path] = version
	c.docMu.Unlock()

	params := map[string]any{
		"textDocument": map[string]any{
			"uri":     PathToURI(path),
			"version": version,
		},
		"contentChanges": []map[string]any{{"text": newText}},
	}
	if err := c.Notify("textDocument/didChange", params); err != nil {
		return fmt.Errorf("change %s: %w", path, err)
	}
	return nil
}

// languageID picks the identifier sent in didOpen: the family's own id when
// the extension belongs to it, otherwise the global extension mapping.
func (c *Client) languageID(path string) string {
	if c.cfg.LanguageID != "" && slices.Contains(c.cfg.Extensions, filepath.Ext(path)) {
		return c.cfg.LanguageID
	}
	return lspdomain.LanguageIDForPath(path)
}

// --- Diagnostics ---

// Diagnostics returns the latest cached diagnostic set for path.
func (c *Client) Diagnostics(path string) []lspdomain.Diagnostic {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	return slices.Clone(c.diags[path])
}

// DiagnosticCount returns the total number of cached diagnostics.
func (c *Client) DiagnosticCount() int {
	c.diagMu.RLock()
	defer c.diagMu.RUnlock()
	n := 0
	for _, d := range c.diags {
		n += len(d)
	}
	return n
}

// WaitDiagnostics blocks until the cached diagnostics for path correspond to
// a document version >= minVersion, or ctx expires. Diagnostics are push-only;
// this replaces the fixed-delay guess with a wait keyed on the version a
// published set belongs to.
func (c *Client) WaitDiagnostics(ctx context.Context, path string, minVersion int) ([]lspdomain.Diagnostic, error) {
	for {
		c.diagMu.Lock()
		if c.diagVersions[path] >= minVersion {
			diags := slices.Clone(c.diags[path])
			c.diagMu.Unlock()
			return diags, nil
		}
		wake := make(chan struct{})
		c.diagWaiters = append(c.diagWaiters, wake)
		c.diagMu.Unlock()

		select {
		case <-wake:
		case <-c.done:
			return nil, fmt.Errorf("diagnostics %s: %w", path, ErrUnavailable)
		case <-ctx.Done():
			return nil, fmt.Errorf("diagnostics %s: %w", path, ctx.Err())
		}
	}
}

// --- Lifecycle teardown ---

// Shutdown performs the orderly shutdown sequence: a shutdown request with a
// short deadline, an exit notification, then forceful termination. It never
// blocks beyond the configured shutdown timeout and is safe to call twice.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.status.Terminal() || c.status == lspdomain.StatusUnstarted {
		c.mu.Unlock()
		return nil
	}
	cmd := c.cmd
	c.mu.Unlock()

	slog.Info("lsp server stopping", "family", c.family)

	shutdownCtx, cancel := context.WithTimeout(ctx, c.lspCfg.ShutdownTimeout)
	defer cancel()

	if _, err := c.request(shutdownCtx, "shutdown", nil, c.lspCfg.ShutdownTimeout); err != nil {
		slog.Warn("lsp shutdown request failed", "family", c.family, "error", err)
	}
	_ = c.Notify("exit", nil)
	_ = c.stdin.Close()

	// monitor owns the reap; wait for it instead of waiting the process a
	// second time.
	if cmd != nil && cmd.Process != nil {
		select {
		case <-c.exited:
		case <-shutdownCtx.Done():
			slog.Warn("lsp server did not exit gracefully, killing", "family", c.family)
			_ = cmd.Process.Kill()
			<-c.exited
		}
	}

	c.teardown(lspdomain.StatusExited, nil)
	slog.Info("lsp server stopped", "family", c.family)
	return nil
}

// teardown moves the client to a terminal state and releases every waiter:
// pending requests, ready waiters, and diagnostics waiters all observe done.
func (c *Client) teardown(status lspdomain.ServerStatus, err error) {
	c.mu.Lock()
	if !c.status.Terminal() {
		c.status = status
		c.lastErr = err
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
}

// monitor reaps the subprocess and fails all outstanding work the moment it
// exits, rather than letting each pending request run out its own timeout.
func (c *Client) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()
	close(c.exited)
	select {
	case <-c.done:
		// Shutdown path already tore the client down.
	default:
		slog.Warn("lsp server exited", "family", c.family, "error", err)
	}
	c.teardown(lspdomain.StatusExited, ErrUnavailable)
}

// logStderr captures the subprocess's stderr line by line. Logged, never parsed.
func (c *Client) logStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		slog.Debug("lsp stderr", "family", c.family, "line", sc.Text())
	}
}

// --- Receive path ---

// readLoop is the single event source for this client: it drains stdout,
// reassembles frames, and dispatches messages one at a time.
func (c *Client) readLoop(stdout io.Reader) {
	var framer Framer
	buf := make([]byte, 32*1024)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			msgs, ferr := framer.Feed(buf[:n])
			for _, payload := range msgs {
				c.dispatch(payload)
			}
			if ferr != nil {
				slog.Error("lsp stream framing lost", "family", c.family, "error", ferr)
				c.teardown(lspdomain.StatusExited, ferr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				slog.Warn("lsp stream read failed", "family", c.family, "error", err)
			}
			c.teardown(lspdomain.StatusExited, ErrUnavailable)
			return
		}
	}
}

// dispatch routes one reassembled payload. A payload that does not parse is
// logged and dropped; a single bad message never takes down the connection.
func (c *Client) dispatch(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("lsp dropping malformed message", "family", c.family, "error", err)
		return
	}

	switch {
	case msg.ID != nil && msg.Method == "":
		c.handleResponse(&msg)
	case msg.ID != nil && msg.Method != "":
		// Server-initiated request (workspace/configuration etc.). Decline
		// politely so the server does not stall waiting for an answer.
		_ = c.writer.writeMessage(&Message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error:   &RPCError{Code: -32601, Message: "method not supported"},
		})
	case msg.Method != "":
		c.handleNotification(&msg)
	}
}

// handleResponse resolves the matching pending request by id. Responses for
// ids that already timed out or failed are discarded.
func (c *Client) handleResponse(msg *Message) {
	c.pendMu.Lock()
	ch, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.pendMu.Unlock()

	if !ok {
		slog.Debug("lsp discarding late response", "family", c.family, "id", *msg.ID)
		return
	}
	ch <- msg
}

// handleNotification routes a server-initiated notification by method name.
func (c *Client) handleNotification(msg *Message) {
	switch msg.Method {
	case "textDocument/publishDiagnostics":
		c.handlePublishDiagnostics(msg.Params)
	case "window/logMessage", "$/logTrace":
		slog.Debug("lsp server log", "family", c.family, "params", string(msg.Params))
	case "window/showMessage":
		slog.Info("lsp server message", "family", c.family, "params", string(msg.Params))
	default:
		slog.Debug("lsp notification ignored", "family", c.family, "method", msg.Method)
	}
}

// handlePublishDiagnostics overwrites the cached set for the file and records
// the document version it corresponds to, waking any bounded waiters.
func (c *Client) handlePublishDiagnostics(raw json.RawMessage) {
	var params struct {
		URI         string                 `json:"uri"`
		Diagnostics []lspdomain.Diagnostic `json:"diagnostics"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		slog.Warn("lsp failed to unmarshal diagnostics", "family", c.family, "error", err)
		return
	}

	path := URIToPath(params.URI)
	diags := params.Diagnostics
	if c.lspCfg.MaxDiagnostics > 0 && len(diags) > c.lspCfg.MaxDiagnostics {
		diags = diags[:c.lspCfg.MaxDiagnostics]
	}

	version, _ := c.Version(path)

	c.diagMu.Lock()
	if len(diags) == 0 {
		delete(c.diags, path)
	} else {
		c.diags[path] = diags
	}
	c.diagVersions[path] = version
	waiters := c.diagWaiters
	c.diagWaiters = nil
	fn := c.onDiagnostic
	c.diagMu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if fn != nil {
		fn(path, diags)
	}
}

// --- Queries ---

// Completion requests completion items at a position.
func (c *Client) Completion(ctx context.Context, path string, pos lspdomain.Position) (*lspdomain.CompletionList, error) {
	result, err := c.Call(ctx, "textDocument/completion", textDocumentPositionParams(path, pos))
	if err != nil {
		return nil, err
	}
	return parseCompletionResult(result)
}

// Definition returns go-to-definition locations for a position.
func (c *Client) Definition(ctx context.Context, path string, pos lspdomain.Position) ([]lspdomain.Location, error) {
	result, err := c.Call(ctx, "textDocument/definition", textDocumentPositionParams(path, pos))
	if err != nil {
		return nil, err
	}
	return parseLocations(result)
}

// Formatting requests whole-document formatting edits. The edits address the
// document text at its current synchronized version; applying them is the
// caller's job (see ApplyEdits).
func (c *Client) Formatting(ctx context.Context, path string) ([]lspdomain.TextEdit, error) {
	params := map[string]any{
		"textDocument": map[string]string{"uri": PathToURI(path)},
		"options":      map[string]any{"tabSize": 4, "insertSpaces": false},
	}
	result, err := c.Call(ctx, "textDocument/formatting", params)
	if err != nil {
		return nil, err
	}
	if result == nil || string(result) == "null" {
		return nil, nil
	}
	var edits []lspdomain.TextEdit
	if err := json.Unmarshal(result, &edits); err != nil {
		return nil, fmt.Errorf("formatting %s: unmarshal edits: %w", path, err)
	}
	return edits, nil
}

// --- Helpers ---

func textDocumentPositionParams(path string, pos lspdomain.Position) map[string]any {
	return map[string]any{
		"textDocument": map[string]string{"uri": PathToURI(path)},
		"position":     map[string]int{"line": pos.Line, "character": pos.Character},
	}
}

// parseLocations accepts Location | Location[] | null.
func parseLocations(raw json.RawMessage) ([]lspdomain.Location, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}

	var locs []lspdomain.Location
	if err := json.Unmarshal(raw, &locs); err == nil {
		return locs, nil
	}

	var loc lspdomain.Location
	if err := json.Unmarshal(raw, &loc); err == nil {
		return []lspdomain.Location{loc}, nil
	}

	return nil, errors.New("unexpected definition result format")
}

// parseCompletionResult accepts CompletionItem[] | CompletionList | null.
func parseCompletionResult(raw json.RawMessage) (*lspdomain.CompletionList, error) {
	if raw == nil || string(raw) == "null" {
		return &lspdomain.CompletionList{}, nil
	}

	var items []lspdomain.CompletionItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return &lspdomain.CompletionList{Items: items}, nil
	}

	var list lspdomain.CompletionList
	if err := json.Unmarshal(raw, &list); err == nil {
		return &list, nil
	}

	return nil, errors.New("unexpected completion result format")
}
