// Package storage holds the Postgres-backed adapters for every persistence
// port defined elsewhere in this module (queue.Store/Notifier,
// credentials.Store, opaque.RecordStore, as.Store, qs.Store, and the DS
// group envelope store).
// It is the only package that imports jackc/pgx/v5 directly — every other
// package depends on its own narrow interface instead.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps a pgxpool.Pool. Every adapter in this package is constructed
// from one shared Pool so connections are pooled across the AS, QS and DS
// stores rather than per-adapter.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to dsn and verifies connectivity with a ping before
// returning, so a misconfigured deployment fails at startup rather than on
// the first request.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: pinging database: %w", err)
	}
	return &Pool{pool}, nil
}

func (p *Pool) Close() { p.Pool.Close() }
