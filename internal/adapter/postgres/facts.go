package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracefold/workbench/internal/domain/fact"
)

// FactStore implements the facts port on PostgreSQL.
type FactStore struct {
	pool *pgxpool.Pool
}

// NewFactStore creates a FactStore using the given pool.
func NewFactStore(pool *pgxpool.Pool) *FactStore {
	return &FactStore{pool: pool}
}

// Append inserts one fact. Facts are immutable; there is no update path.
func (s *FactStore) Append(ctx context.Context, f fact.Fact) error {
	const q = `
		INSERT INTO facts (id, kind, path, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, q, f.ID, string(f.Kind), f.Path, f.Detail, f.CreatedAt); err != nil {
		return fmt.Errorf("append fact: %w", err)
	}
	return nil
}

// Recent returns up to limit facts, newest first.
func (s *FactStore) Recent(ctx context.Context, limit int) ([]fact.Fact, error) {
	const q = `
		SELECT id, kind, path, detail, created_at
		FROM facts
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent facts: %w", err)
	}
	defer rows.Close()

	var result []fact.Fact
	for rows.Next() {
		var f fact.Fact
		if err := rows.Scan(&f.ID, &f.Kind, &f.Path, &f.Detail, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// Close releases the underlying pool.
func (s *FactStore) Close() error {
	s.pool.Close()
	return nil
}
