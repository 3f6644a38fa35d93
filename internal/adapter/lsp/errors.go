package lsp

import "errors"

// Sentinel errors for the client engine. Wrapped errors always name the
// operation and target path so callers never see a bare condition.
var (
	// ErrNotReady indicates a request was issued against a client that is
	// not in the ready state. Requests are failed immediately, never queued.
	ErrNotReady = errors.New("language server not ready")

	// ErrLaunch indicates the subprocess could not be started.
	ErrLaunch = errors.New("language server launch failed")

	// ErrHandshake indicates the initialize handshake timed out or failed.
	ErrHandshake = errors.New("language server handshake failed")

	// ErrTimeout indicates a single request exceeded its deadline.
	// The client itself remains usable.
	ErrTimeout = errors.New("language server request timed out")

	// ErrUnavailable indicates the subprocess exited while requests were
	// outstanding; those requests fail immediately rather than timing out.
	ErrUnavailable = errors.New("language server unavailable")

	// ErrDocumentNotOpen indicates a change notification for an untracked path.
	ErrDocumentNotOpen = errors.New("document not open")
)
