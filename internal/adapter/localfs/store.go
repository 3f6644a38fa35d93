// Package localfs implements the file storage port against a directory tree
// on the local filesystem, confined to a single workspace root.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tracefold/workbench/internal/port/cache"
	"github.com/tracefold/workbench/internal/port/storage"
)

// ErrPathEscape indicates a path that resolves outside the workspace root.
var ErrPathEscape = errors.New("path escapes workspace root")

// ErrNotFound indicates the requested path does not exist.
var ErrNotFound = errors.New("file not found")

// Store implements storage.FileStore for a workspace directory. Reads go
// through an optional cache keyed by relative path; any mutation invalidates
// the affected keys.
type Store struct {
	root     string // absolute, cleaned
	cache    cache.Cache
	cacheTTL time.Duration
}

// New creates a Store rooted at root. The cache may be nil to disable read
// caching.
func New(root string, c cache.Cache, ttl time.Duration) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %q is not a directory", abs)
	}
	return &Store{root: abs, cache: c, cacheTTL: ttl}, nil
}

// Root returns the absolute workspace root.
func (s *Store) Root() string { return s.root }

// Abs resolves a workspace-relative path to an absolute one, rejecting any
// path that escapes the root after cleaning.
func (s *Store) Abs(path string) (string, error) {
	cleaned := filepath.Clean("/" + path) // collapses .. against a fake root
	abs := filepath.Join(s.root, cleaned)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("resolve %q: %w", path, ErrPathEscape)
	}
	return abs, nil
}

// rel converts an absolute path under the root back to the relative form used
// as cache key.
func (s *Store) rel(abs string) string {
	r, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return r
}

// ReadText returns the file content at path. Cached reads are served without
// touching the disk until the entry expires or the path is written.
func (s *Store) ReadText(ctx context.Context, path string) (string, error) {
	abs, err := s.Abs(path)
	if err != nil {
		return "", err
	}
	key := s.rel(abs)

	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return string(data), nil
		}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %q: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("read %q: %w", path, err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, data, s.cacheTTL)
	}
	return string(data), nil
}

// WriteText writes content to path, creating parent directories as needed.
func (s *Store) WriteText(ctx context.Context, path, content string) error {
	abs, err := s.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent dirs for %q: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, s.rel(abs))
	}
	return nil
}

// Remove deletes the file at path. Directories are refused.
func (s *Store) Remove(ctx context.Context, path string) error {
	abs, err := s.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %q: %w", path, ErrNotFound)
		}
		return fmt.Errorf("remove %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("remove %q: is a directory", path)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, s.rel(abs))
	}
	return nil
}

// Rename moves a file within the workspace, creating the destination's parent
// directories as needed.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) error {
	oldAbs, err := s.Abs(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := s.Abs(newPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(oldAbs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("rename %q: %w", oldPath, ErrNotFound)
		}
		return fmt.Errorf("rename %q: %w", oldPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return fmt.Errorf("create parent dirs for %q: %w", newPath, err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("rename %q -> %q: %w", oldPath, newPath, err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, s.rel(oldAbs))
		_ = s.cache.Delete(ctx, s.rel(newAbs))
	}
	return nil
}

// List returns the entries of dir sorted by name, directories first.
func (s *Store) List(_ context.Context, dir string) ([]storage.Entry, error) {
	abs, err := s.Abs(dir)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %q: %w", dir, ErrNotFound)
		}
		return nil, fmt.Errorf("list %q: %w", dir, err)
	}

	entries := make([]storage.Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			continue // entry vanished between readdir and stat
		}
		entries = append(entries, storage.Entry{
			Name:    de.Name(),
			Path:    s.rel(filepath.Join(abs, de.Name())),
			IsDir:   de.IsDir(),
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Stat returns metadata for a single path.
func (s *Store) Stat(_ context.Context, path string) (storage.Entry, error) {
	abs, err := s.Abs(path)
	if err != nil {
		return storage.Entry{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.Entry{}, fmt.Errorf("stat %q: %w", path, ErrNotFound)
		}
		return storage.Entry{}, fmt.Errorf("stat %q: %w", path, err)
	}
	return storage.Entry{
		Name:    info.Name(),
		Path:    s.rel(abs),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}, nil
}
