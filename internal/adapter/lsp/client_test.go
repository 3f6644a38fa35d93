package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/tracefold/workbench/internal/config"
	lspdomain "github.com/tracefold/workbench/internal/domain/lsp"
)

// fakeServer speaks the framed protocol on the far side of a pipe pair. Every
// message the client sends lands on the messages channel; tests write replies
// through reply/notify or raw for hand-crafted frames.
type fakeServer struct {
	messages chan *Message
	writer   *frameWriter
	raw      io.Writer
}

func (s *fakeServer) serve(in io.Reader) {
	var f Framer
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			payloads, _ := f.Feed(buf[:n])
			for _, p := range payloads {
				var msg Message
				if json.Unmarshal(p, &msg) == nil {
					s.messages <- &msg
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *fakeServer) reply(t *testing.T, id int64, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := s.writer.writeMessage(&Message{JSONRPC: "2.0", ID: &id, Result: raw}); err != nil {
		t.Fatalf("reply: %v", err)
	}
}

func (s *fakeServer) notify(t *testing.T, method string, params any) {
	t.Helper()
	msg, err := newNotification(method, params)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := s.writer.writeMessage(msg); err != nil {
		t.Fatalf("notify: %v", err)
	}
}

// wait pulls messages until one matches the method, skipping others.
func (s *fakeServer) wait(t *testing.T, method string) *Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-s.messages:
			if msg.Method == method {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", method)
		}
	}
}

// newTestClient wires a client to a fake server over in-memory pipes, already
// in the ready state, skipping the subprocess launch and handshake.
func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()

	clientOut, clientIn := io.Pipe() // client writes -> server reads
	serverOut, serverIn := io.Pipe() // server writes -> client reads

	cfg := &config.LSP{
		StartTimeout:    time.Second,
		RequestTimeout:  time.Second,
		ShutdownTimeout: 200 * time.Millisecond,
		DiagnosticsWait: time.Second,
		MaxDiagnostics:  200,
	}
	c := NewClient("go", lspdomain.ServerConfig{
		Command:    []string{"gopls", "serve"},
		Extensions: []string{".go"},
		LanguageID: "go",
	}, cfg, t.TempDir())
	c.writer = &frameWriter{w: clientIn}
	c.stdin = clientIn
	c.status = lspdomain.StatusReady
	close(c.ready)

	srv := &fakeServer{
		messages: make(chan *Message, 32),
		writer:   &frameWriter{w: serverIn},
		raw:      serverIn,
	}
	go srv.serve(clientOut)
	go c.readLoop(serverOut)

	t.Cleanup(func() {
		clientIn.Close()
		serverIn.Close()
	})
	return c, srv
}

func TestCallCorrelatesOutOfOrderResponses(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	results := make(map[string]string)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, method := range []string{"test/alpha", "test/beta"} {
		wg.Add(1)
		go func(method string) {
			defer wg.Done()
			raw, err := c.Call(ctx, method, nil)
			if err != nil {
				t.Errorf("Call(%s) error = %v", method, err)
				return
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				t.Errorf("Call(%s) result %q: %v", method, raw, err)
				return
			}
			mu.Lock()
			results[method] = s
			mu.Unlock()
		}(method)
	}

	first := <-srv.messages
	second := <-srv.messages

	// Respond in reverse order; correlation is by id, not arrival order.
	srv.reply(t, *second.ID, "result-for-"+second.Method)
	srv.reply(t, *first.ID, "result-for-"+first.Method)
	wg.Wait()

	for _, method := range []string{"test/alpha", "test/beta"} {
		if results[method] != "result-for-"+method {
			t.Errorf("results[%s] = %q", method, results[method])
		}
	}
}

func TestCallTimeoutAndLateResponseDiscarded(t *testing.T) {
	c, srv := newTestClient(t)
	c.lspCfg.RequestTimeout = 50 * time.Millisecond
	ctx := context.Background()

	_, err := c.Call(ctx, "test/slow", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Call() error = %v, want ErrTimeout", err)
	}
	slow := srv.wait(t, "test/slow")

	// The late response must be discarded without disturbing the stream.
	srv.reply(t, *slow.ID, "too late")

	c.lspCfg.RequestTimeout = time.Second
	done := make(chan error, 1)
	go func() {
		_, err := c.Call(ctx, "test/fast", nil)
		done <- err
	}()
	fast := srv.wait(t, "test/fast")
	srv.reply(t, *fast.ID, "ok")
	if err := <-done; err != nil {
		t.Errorf("Call(test/fast) after late response: %v", err)
	}
}

func TestPendingRequestsFailOnTeardown(t *testing.T) {
	c, srv := newTestClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "test/hang", nil)
		done <- err
	}()
	srv.wait(t, "test/hang")

	c.teardown(lspdomain.StatusExited, ErrUnavailable)

	select {
	case err := <-done:
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("Call() error = %v, want ErrUnavailable", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("pending request did not fail promptly after teardown")
	}

	if got := c.Status(); got != lspdomain.StatusExited {
		t.Errorf("Status() = %s, want exited", got)
	}
	if _, err := c.Call(context.Background(), "test/after", nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("Call() after teardown error = %v, want ErrNotReady", err)
	}
}

func TestOpenDocumentIdempotent(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	path := "/work/main.go"

	if err := c.OpenDocument(ctx, path, "package main\n"); err != nil {
		t.Fatalf("OpenDocument() error = %v", err)
	}
	open := srv.wait(t, "textDocument/didOpen")

	var params struct {
		TextDocument struct {
			URI        string `json:"uri"`
			LanguageID string `json:"languageId"`
			Version    int    `json:"version"`
		} `json:"textDocument"`
	}
	if err := json.Unmarshal(open.Params, &params); err != nil {
		t.Fatalf("unmarshal didOpen params: %v", err)
	}
	if params.TextDocument.Version != 1 {
		t.Errorf("didOpen version = %d, want 1", params.TextDocument.Version)
	}
	if params.TextDocument.LanguageID != "go" {
		t.Errorf("didOpen languageId = %q, want go", params.TextDocument.LanguageID)
	}
	if params.TextDocument.URI != "file://"+path {
		t.Errorf("didOpen uri = %q", params.TextDocument.URI)
	}

	// Second open of the same path sends nothing and keeps the version.
	if err := c.OpenDocument(ctx, path, "package main\n\nfunc main() {}\n"); err != nil {
		t.Fatalf("OpenDocument() second call error = %v", err)
	}
	if v, _ := c.Version(path); v != 1 {
		t.Errorf("Version() after re-open = %d, want 1", v)
	}

	select {
	case msg := <-srv.messages:
		t.Errorf("unexpected message after idempotent open: %s", msg.Method)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyChangedVersionsAreGapless(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	path := "/work/main.go"

	if err := c.NotifyChanged(ctx, path, "x"); !errors.Is(err, ErrDocumentNotOpen) {
		t.Fatalf("NotifyChanged() on unopened doc error = %v, want ErrDocumentNotOpen", err)
	}

	if err := c.OpenDocument(ctx, path, "v1"); err != nil {
		t.Fatalf("OpenDocument() error = %v", err)
	}
	srv.wait(t, "textDocument/didOpen")

	for want := 2; want <= 4; want++ {
		if err := c.NotifyChanged(ctx, path, fmt.Sprintf("v%d", want)); err != nil {
			t.Fatalf("NotifyChanged() error = %v", err)
		}
		change := srv.wait(t, "textDocument/didChange")

		var params struct {
			TextDocument struct {
				Version int `json:"version"`
			} `json:"textDocument"`
			ContentChanges []struct {
				Text string `json:"text"`
			} `json:"contentChanges"`
		}
		if err := json.Unmarshal(change.Params, &params); err != nil {
			t.Fatalf("unmarshal didChange params: %v", err)
		}
		if params.TextDocument.Version != want {
			t.Errorf("didChange version = %d, want %d", params.TextDocument.Version, want)
		}
		if len(params.ContentChanges) != 1 || params.ContentChanges[0].Text != fmt.Sprintf("v%d", want) {
			t.Errorf("didChange carries %+v, want whole-document text", params.ContentChanges)
		}
	}
}

func TestWaitDiagnostics(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	path := "/work/broken.go"

	if err := c.OpenDocument(ctx, path, "package main\nbad\n"); err != nil {
		t.Fatalf("OpenDocument() error = %v", err)
	}
	srv.wait(t, "textDocument/didOpen")

	type result struct {
		diags []lspdomain.Diagnostic
		err   error
	}
	got := make(chan result, 1)
	go func() {
		diags, err := c.WaitDiagnostics(ctx, path, 1)
		got <- result{diags, err}
	}()

	srv.notify(t, "textDocument/publishDiagnostics", map[string]any{
		"uri": "file://" + path,
		"diagnostics": []lspdomain.Diagnostic{{
			Range:    lspdomain.Range{Start: lspdomain.Position{Line: 1}},
			Severity: lspdomain.SeverityError,
			Message:  "expected declaration",
		}},
	})

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("WaitDiagnostics() error = %v", r.err)
		}
		if len(r.diags) != 1 || r.diags[0].Message != "expected declaration" {
			t.Errorf("WaitDiagnostics() = %+v", r.diags)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitDiagnostics did not wake on publish")
	}

	// Cached set satisfies the same version immediately.
	diags, err := c.WaitDiagnostics(ctx, path, 1)
	if err != nil || len(diags) != 1 {
		t.Errorf("cached WaitDiagnostics() = %v, %v", diags, err)
	}

	// A wait for a version never published times out with the ctx error.
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := c.WaitDiagnostics(shortCtx, path, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitDiagnostics(future version) error = %v, want deadline exceeded", err)
	}
}

func TestServerRequestDeclined(t *testing.T) {
	c, srv := newTestClient(t)
	_ = c

	id := int64(99)
	raw, _ := json.Marshal(map[string]any{"items": []any{}})
	if err := srv.writer.writeMessage(&Message{
		JSONRPC: "2.0", ID: &id, Method: "workspace/configuration", Params: raw,
	}); err != nil {
		t.Fatalf("write server request: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-srv.messages:
			if msg.ID != nil && *msg.ID == 99 && msg.Method == "" {
				if msg.Error == nil || msg.Error.Code != -32601 {
					t.Errorf("server request answered with %+v, want method-not-found", msg.Error)
				}
				return
			}
		case <-deadline:
			t.Fatal("no response to server-initiated request")
		}
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	path := "/work/a.go"

	if err := c.OpenDocument(ctx, path, "package a\n"); err != nil {
		t.Fatalf("OpenDocument() error = %v", err)
	}
	srv.wait(t, "textDocument/didOpen")

	// A frame whose payload is not JSON must be dropped, not kill the stream.
	garbage := "{not json"
	if _, err := fmt.Fprintf(srv.raw, "Content-Length: %d\r\n\r\n%s", len(garbage), garbage); err != nil {
		t.Fatalf("write garbage frame: %v", err)
	}

	srv.notify(t, "textDocument/publishDiagnostics", map[string]any{
		"uri":         "file://" + path,
		"diagnostics": []lspdomain.Diagnostic{{Message: "still alive"}},
	})

	diagCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	diags, err := c.WaitDiagnostics(diagCtx, path, 1)
	if err != nil {
		t.Fatalf("WaitDiagnostics() after garbage frame: %v", err)
	}
	if len(diags) != 1 || diags[0].Message != "still alive" {
		t.Errorf("diagnostics after garbage frame = %+v", diags)
	}
}

func TestDiagnosticsCapped(t *testing.T) {
	c, srv := newTestClient(t)
	c.lspCfg.MaxDiagnostics = 3
	ctx := context.Background()
	path := "/work/noisy.go"

	if err := c.OpenDocument(ctx, path, "package noisy\n"); err != nil {
		t.Fatalf("OpenDocument() error = %v", err)
	}
	srv.wait(t, "textDocument/didOpen")

	many := make([]lspdomain.Diagnostic, 10)
	for i := range many {
		many[i] = lspdomain.Diagnostic{Message: fmt.Sprintf("issue %d", i)}
	}
	srv.notify(t, "textDocument/publishDiagnostics", map[string]any{
		"uri": "file://" + path, "diagnostics": many,
	})

	diagCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	diags, err := c.WaitDiagnostics(diagCtx, path, 1)
	if err != nil {
		t.Fatalf("WaitDiagnostics() error = %v", err)
	}
	if len(diags) != 3 {
		t.Errorf("cached %d diagnostics, want cap of 3", len(diags))
	}
}

// Some servers send the diagnostic code as a bare number rather than a
// string. A set carrying one must still be cached, with the code kept as text.
func TestDiagnosticsWithNumericCode(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	path := "/work/typed.go"

	if err := c.OpenDocument(ctx, path, "package typed\n"); err != nil {
		t.Fatalf("OpenDocument() error = %v", err)
	}
	srv.wait(t, "textDocument/didOpen")

	srv.notify(t, "textDocument/publishDiagnostics", map[string]any{
		"uri": "file://" + path,
		"diagnostics": []map[string]any{
			{"message": "cannot find name", "severity": 1, "code": 2304},
			{"message": "type mismatch", "severity": 1, "code": "E0308"},
		},
	})

	diagCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	diags, err := c.WaitDiagnostics(diagCtx, path, 1)
	if err != nil {
		t.Fatalf("WaitDiagnostics() error = %v", err)
	}
	if len(diags) != 2 {
		t.Fatalf("cached %d diagnostics, want 2", len(diags))
	}
	if diags[0].Code != "2304" {
		t.Errorf("diags[0].Code = %q, want %q", diags[0].Code, "2304")
	}
	if diags[1].Code != "E0308" {
		t.Errorf("diags[1].Code = %q, want %q", diags[1].Code, "E0308")
	}
}

// The monitor goroutine owns the subprocess reap; Shutdown must wait on its
// signal rather than waiting the process itself a second time.
func TestShutdownWaitsForMonitorReap(t *testing.T) {
	c, srv := newTestClient(t)

	cmd := exec.Command("cat")
	procIn, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("StdinPipe() error = %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start cat: %v", err)
	}
	c.mu.Lock()
	c.cmd = cmd
	c.stdin = procIn // Shutdown closes this, which makes cat exit
	c.mu.Unlock()
	go c.monitor(cmd)

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(context.Background()) }()

	req := srv.wait(t, "shutdown")
	srv.reply(t, *req.ID, nil)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	if got := c.Status(); got != lspdomain.StatusExited {
		t.Errorf("Status() = %s, want exited", got)
	}
	// Shutdown returned after the monitor's reap, so the exit status is set.
	if cmd.ProcessState == nil {
		t.Error("subprocess not reaped")
	}
	// A second Shutdown on a terminal client is a no-op.
	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestStartRejectsMissingBinary(t *testing.T) {
	cfg := &config.LSP{
		StartTimeout:    time.Second,
		RequestTimeout:  time.Second,
		ShutdownTimeout: time.Second,
	}
	c := NewClient("ghost", lspdomain.ServerConfig{
		Command: []string{"definitely-not-a-real-language-server-binary"},
	}, cfg, t.TempDir())

	err := c.Start(context.Background())
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("Start() error = %v, want ErrLaunch", err)
	}
	if got := c.Status(); got != lspdomain.StatusFailed {
		t.Errorf("Status() = %s, want failed", got)
	}
	// A failed client stays failed; a second start does not resurrect it.
	if err := c.Start(context.Background()); err == nil {
		t.Error("Start() on failed client succeeded")
	}
}

func TestParseLocations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"null", "null", 0},
		{"single location", `{"uri":"file:///a.go","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":5}}}`, 1},
		{"location array", `[{"uri":"file:///a.go","range":{}},{"uri":"file:///b.go","range":{}}]`, 2},
		{"empty array", `[]`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, err := parseLocations(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("parseLocations() error = %v", err)
			}
			if len(locs) != tt.want {
				t.Errorf("parseLocations() = %d locations, want %d", len(locs), tt.want)
			}
		})
	}
}

func TestParseCompletionResult(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantItems  int
		incomplete bool
	}{
		{"null", "null", 0, false},
		{"bare items", `[{"label":"Println"},{"label":"Printf"}]`, 2, false},
		{"completion list", `{"isIncomplete":true,"items":[{"label":"Println"}]}`, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := parseCompletionResult(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("parseCompletionResult() error = %v", err)
			}
			if len(list.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(list.Items), tt.wantItems)
			}
			if list.IsIncomplete != tt.incomplete {
				t.Errorf("isIncomplete = %v, want %v", list.IsIncomplete, tt.incomplete)
			}
		})
	}
}
