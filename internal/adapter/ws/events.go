package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	lspdomain "github.com/tracefold/workbench/internal/domain/lsp"
)

// Event type constants for WebSocket messages.
const (
	EventDiagnostics  = "lsp.diagnostics"
	EventServerStatus = "lsp.server_status"
	EventFactRecorded = "fact.recorded"
)

// DiagnosticsEvent is broadcast when a language server pushes a new
// diagnostic set for a file.
type DiagnosticsEvent struct {
	Path        string                 `json:"path"` // workspace-relative
	Family      string                 `json:"family"`
	Diagnostics []lspdomain.Diagnostic `json:"diagnostics"`
}

// ServerStatusEvent is broadcast when a language server changes lifecycle state.
type ServerStatusEvent struct {
	Family string `json:"family"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// FactRecordedEvent is broadcast when a mutating operation appends to the
// change log.
type FactRecordedEvent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Path string `json:"path,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
