// Package fact defines the append-only change-log record.
// Every mutating tool operation (file write, delete, move, command run)
// appends a fact; facts are never updated or removed.
package fact

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies what a fact records.
type Kind string

const (
	KindFileWritten Kind = "file_written"
	KindFileDeleted Kind = "file_deleted"
	KindFileMoved   Kind = "file_moved"
	KindEditApplied Kind = "edit_applied"
	KindCommandRun  Kind = "command_run"
	KindNote        Kind = "note"
)

// Fact is one immutable change-log entry.
type Fact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path,omitempty"` // workspace-relative target, if any
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a Fact with a fresh UUID and the current timestamp.
func New(kind Kind, path, detail string) Fact {
	return Fact{
		ID:        uuid.NewString(),
		Kind:      kind,
		Path:      path,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}
