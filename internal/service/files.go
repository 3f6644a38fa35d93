package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tracefold/workbench/internal/adapter/ws"
	"github.com/tracefold/workbench/internal/domain/fact"
	"github.com/tracefold/workbench/internal/port/factstore"
	"github.com/tracefold/workbench/internal/port/storage"
)

// ErrNoMatch indicates a search/replace target string was not found.
var ErrNoMatch = errors.New("search string not found")

// ErrAmbiguousMatch indicates a search string that matches more than once
// when a unique match was required.
var ErrAmbiguousMatch = errors.New("search string matches multiple times")

// FileService implements the workspace file operations. Every mutation
// appends a fact to the change log and re-syncs any language server that has
// the file open.
type FileService struct {
	files storage.FileStore
	facts factstore.Store
	hub   *ws.Hub
	lsp   *LSPService
}

// NewFileService creates a FileService. facts, hub, and lsp may each be nil;
// the corresponding side effects are skipped.
func NewFileService(files storage.FileStore, facts factstore.Store, hub *ws.Hub, lsp *LSPService) *FileService {
	return &FileService{files: files, facts: facts, hub: hub, lsp: lsp}
}

// Read returns the content of a workspace file.
func (s *FileService) Read(ctx context.Context, path string) (string, error) {
	return s.files.ReadText(ctx, path)
}

// Write replaces the file content, creating the file if needed.
func (s *FileService) Write(ctx context.Context, path, content string) error {
	if err := s.files.WriteText(ctx, path, content); err != nil {
		return err
	}
	s.record(ctx, fact.New(fact.KindFileWritten, path, fmt.Sprintf("%d bytes", len(content))))
	if s.lsp != nil {
		s.lsp.FileChanged(ctx, path, content)
	}
	return nil
}

// Delete removes a workspace file.
func (s *FileService) Delete(ctx context.Context, path string) error {
	if err := s.files.Remove(ctx, path); err != nil {
		return err
	}
	s.record(ctx, fact.New(fact.KindFileDeleted, path, ""))
	return nil
}

// Move renames a file within the workspace.
func (s *FileService) Move(ctx context.Context, oldPath, newPath string) error {
	if err := s.files.Rename(ctx, oldPath, newPath); err != nil {
		return err
	}
	s.record(ctx, fact.New(fact.KindFileMoved, newPath, oldPath+" -> "+newPath))
	return nil
}

// List returns directory entries.
func (s *FileService) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	return s.files.List(ctx, dir)
}

// Stat returns metadata for one path.
func (s *FileService) Stat(ctx context.Context, path string) (storage.Entry, error) {
	return s.files.Stat(ctx, path)
}

// SearchReplace replaces occurrences of search with replace in the file.
// With replaceAll false the search string must match exactly once; zero
// matches and multiple matches are both errors so a caller never silently
// edits the wrong spot.
func (s *FileService) SearchReplace(ctx context.Context, path, search, replace string, replaceAll bool) (int, error) {
	if search == "" {
		return 0, errors.New("search string is empty")
	}

	content, err := s.files.ReadText(ctx, path)
	if err != nil {
		return 0, err
	}

	count := strings.Count(content, search)
	switch {
	case count == 0:
		return 0, fmt.Errorf("replace in %q: %w", path, ErrNoMatch)
	case count > 1 && !replaceAll:
		return 0, fmt.Errorf("replace in %q: %d matches: %w", path, count, ErrAmbiguousMatch)
	}

	n := 1
	if replaceAll {
		n = count
	}
	updated := strings.Replace(content, search, replace, n)

	if err := s.files.WriteText(ctx, path, updated); err != nil {
		return 0, err
	}
	s.record(ctx, fact.New(fact.KindEditApplied, path, fmt.Sprintf("%d replacement(s)", n)))
	if s.lsp != nil {
		s.lsp.FileChanged(ctx, path, updated)
	}
	return n, nil
}

// Diff returns a unified diff between two workspace files.
func (s *FileService) Diff(ctx context.Context, pathA, pathB string) (string, error) {
	a, err := s.files.ReadText(ctx, pathA)
	if err != nil {
		return "", err
	}
	b, err := s.files.ReadText(ctx, pathB)
	if err != nil {
		return "", err
	}
	return UnifiedDiff(pathA, pathB, a, b), nil
}

// record appends a fact and broadcasts it, logging failures without
// propagating them: the change log must never block the file operation
// that already succeeded.
func (s *FileService) record(ctx context.Context, f fact.Fact) {
	if s.facts != nil {
		if err := s.facts.Append(ctx, f); err != nil {
			slog.Warn("append fact failed", "kind", f.Kind, "path", f.Path, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventFactRecorded, ws.FactRecordedEvent{
			ID:   f.ID,
			Kind: string(f.Kind),
			Path: f.Path,
		})
	}
}

// RecordNote appends a free-form note fact, used by the record_fact tool.
func (s *FileService) RecordNote(ctx context.Context, path, detail string) (fact.Fact, error) {
	f := fact.New(fact.KindNote, path, detail)
	if s.facts == nil {
		return f, errors.New("facts store not configured")
	}
	if err := s.facts.Append(ctx, f); err != nil {
		return f, err
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventFactRecorded, ws.FactRecordedEvent{
			ID:   f.ID,
			Kind: string(f.Kind),
			Path: f.Path,
		})
	}
	return f, nil
}

// RecentFacts returns up to limit change-log entries, newest first.
func (s *FileService) RecentFacts(ctx context.Context, limit int) ([]fact.Fact, error) {
	if s.facts == nil {
		return nil, errors.New("facts store not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.facts.Recent(ctx, limit)
}
