// Package storage defines the port interface for workspace file access.
package storage

import (
	"context"
	"io/fs"
	"time"
)

// Entry describes one directory listing entry.
type Entry struct {
	Name    string      `json:"name"`
	Path    string      `json:"path"` // workspace-relative
	IsDir   bool        `json:"is_dir"`
	Size    int64       `json:"size"`
	Mode    fs.FileMode `json:"-"`
	ModTime time.Time   `json:"mod_time"`
}

// FileStore is the port interface for reading and writing workspace files.
// Paths are workspace-relative; implementations must reject escapes from the
// workspace root.
type FileStore interface {
	ReadText(ctx context.Context, path string) (string, error)
	WriteText(ctx context.Context, path, content string) error
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	List(ctx context.Context, dir string) ([]Entry, error)
	Stat(ctx context.Context, path string) (Entry, error)
	// Abs resolves a workspace-relative path to an absolute one,
	// or fails if the path escapes the workspace root.
	Abs(path string) (string, error)
}
