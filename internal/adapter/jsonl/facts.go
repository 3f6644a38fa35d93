// Package jsonl implements the facts port as an append-only JSONL file,
// used when no PostgreSQL DSN is configured.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tracefold/workbench/internal/domain/fact"
)

// FactStore appends one JSON object per line to a single file. Writes are
// serialized; reads scan the whole file, which is fine at change-log scale.
type FactStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFactStore opens (or creates) the JSONL file at path.
func NewFactStore(path string) (*FactStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create facts dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open facts file %q: %w", path, err)
	}
	return &FactStore{path: path, f: f}, nil
}

// Append writes one fact as a single JSON line.
func (s *FactStore) Append(_ context.Context, fc fact.Fact) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append fact: %w", err)
	}
	return nil
}

// Recent returns up to limit facts, newest first. Lines that fail to parse
// are skipped; a partially written trailing line must not poison the log.
func (s *FactStore) Recent(_ context.Context, limit int) ([]fact.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open facts file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var all []fact.Fact
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var fc fact.Fact
		if err := json.Unmarshal(sc.Bytes(), &fc); err != nil {
			continue
		}
		all = append(all, fc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan facts file: %w", err)
	}

	// File order is oldest first; reverse and cap.
	result := make([]fact.Fact, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

// Close closes the underlying file.
func (s *FactStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
