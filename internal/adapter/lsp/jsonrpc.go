// Package lsp implements the language-intelligence client engine: one
// JSON-RPC 2.0 client per language server subprocess, speaking the LSP base
// protocol (Content-Length framed messages) over stdin/stdout.
package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Message represents a JSON-RPC 2.0 message (request, response, or notification).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`     // nil for notifications
	Method  string          `json:"method,omitempty"` // present for requests/notifications
	Params  json.RawMessage `json:"params,omitempty"` // request/notification params
	Result  json.RawMessage `json:"result,omitempty"` // response result
	Error   *RPCError       `json:"error,omitempty"`  // response error
}

// RPCError represents a JSON-RPC 2.0 error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Framer reassembles Content-Length framed payloads from an arbitrary
// sequence of byte chunks. A header and its payload may arrive split across
// any number of chunks; a single chunk may carry several complete messages.
// Bytes are buffered until a frame completes and are never lost or duplicated.
type Framer struct {
	buf bytes.Buffer
}

// headerTerm separates the header block from the payload.
const headerTerm = "\r\n\r\n"

// Feed appends chunk to the internal buffer and returns every payload that is
// now complete, in stream order. A corrupt header (missing or unparseable
// Content-Length) is unrecoverable because the frame boundary is lost.
func (f *Framer) Feed(chunk []byte) ([][]byte, error) {
	f.buf.Write(chunk)

	var msgs [][]byte
	for {
		data := f.buf.Bytes()
		idx := bytes.Index(data, []byte(headerTerm))
		if idx < 0 {
			return msgs, nil
		}

		length, err := parseContentLength(string(data[:idx]))
		if err != nil {
			return msgs, err
		}

		total := idx + len(headerTerm) + length
		if len(data) < total {
			return msgs, nil
		}

		payload := make([]byte, length)
		copy(payload, data[idx+len(headerTerm):total])
		msgs = append(msgs, payload)
		f.buf.Next(total)
	}
}

// Buffered returns the number of bytes held waiting for a complete frame.
func (f *Framer) Buffered() int {
	return f.buf.Len()
}

// parseContentLength extracts the Content-Length value from a header block.
// Other headers (e.g. Content-Type) are ignored.
func parseContentLength(header string) (int, error) {
	for _, line := range strings.Split(header, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("parse Content-Length %q: invalid value", strings.TrimSpace(value))
		}
		return n, nil
	}
	return 0, fmt.Errorf("missing Content-Length header in %q", header)
}

// frameWriter serializes framed writes to the subprocess's stdin. Requests and
// notifications issued by concurrent callers are written whole, in issue order.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// writeMessage marshals msg and writes it with a Content-Length header.
func (fw *frameWriter) writeMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(fw.w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func newRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}, nil
}

func newNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}
