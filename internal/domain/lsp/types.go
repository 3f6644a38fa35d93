// Package lsp defines domain types for Language Server Protocol integration.
// These types represent LSP concepts (diagnostics, locations, edits) in a
// transport-independent way for use across the service, adapter, and tool layers.
package lsp

import "encoding/json"

// Position in a text document (0-based line and character).
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document. End is exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location links a URI to a range.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// DiagnosticSeverity mirrors LSP DiagnosticSeverity.
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

// Diagnostic represents a compiler/linter diagnostic. The engine stores these
// verbatim as pushed by the server and never interprets them.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"` // 1=Error, 2=Warning, 3=Info, 4=Hint
	Source   string `json:"source"`
	Message  string `json:"message"`
	Code     Code   `json:"code,omitempty"`
}

// Code identifies a diagnostic. Servers send it as either a JSON string
// ("E0308") or a number (2304); both forms are kept as text.
type Code string

// UnmarshalJSON accepts string, number, or null.
func (c *Code) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Code(n.String())
	return nil
}

// TextEdit is a range-based replacement returned by formatting requests.
// The range addresses the document text the request was issued against.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// CompletionItem is a single completion suggestion.
type CompletionItem struct {
	Label         string `json:"label"`
	Kind          int    `json:"kind,omitempty"` // LSP CompletionItemKind enum
	Detail        string `json:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	InsertText    string `json:"insertText,omitempty"`
	SortText      string `json:"sortText,omitempty"`
}

// CompletionList is the result of a completion request.
type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// FormatResult reports the outcome of a format operation.
type FormatResult struct {
	Applied    bool   `json:"applied"`
	NewContent string `json:"new_content,omitempty"`
}

// ServerStatus represents the lifecycle state of a language server client.
type ServerStatus string

const (
	StatusUnstarted    ServerStatus = "unstarted"
	StatusStarting     ServerStatus = "starting"
	StatusInitializing ServerStatus = "initializing" // handshake in flight
	StatusReady        ServerStatus = "ready"
	StatusFailed       ServerStatus = "failed" // terminal
	StatusExited       ServerStatus = "exited" // terminal
)

// Terminal reports whether the status is one the client never leaves.
func (s ServerStatus) Terminal() bool {
	return s == StatusFailed || s == StatusExited
}

// ServerInfo describes a running language server instance.
type ServerInfo struct {
	Family      string       `json:"family"`
	Status      ServerStatus `json:"status"`
	Command     string       `json:"command"`
	PID         int          `json:"pid,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnostics int          `json:"diagnostics"` // count of cached diagnostics
}
