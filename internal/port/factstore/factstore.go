// Package factstore defines the port interface for the append-only change log.
package factstore

import (
	"context"

	"github.com/tracefold/workbench/internal/domain/fact"
)

// Store is the port interface for the facts log. Facts are append-only;
// implementations never mutate or delete existing records.
type Store interface {
	Append(ctx context.Context, f fact.Fact) error
	// Recent returns up to limit facts, newest first.
	Recent(ctx context.Context, limit int) ([]fact.Fact, error)
	Close() error
}
