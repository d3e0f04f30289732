// Package store persists completed valuation syntheses. Persistence is
// optional: the engine runs fully in-memory and only the demo/reporting
// paths write here.
package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool     *pgxpool.Pool
	dialOnce sync.Once
)

// Connect dials the pool named by the DATABASE_URL environment variable and
// verifies it with a ping. Safe to call repeatedly; only the first call
// dials, and a failed dial keeps reporting an error on later calls.
func Connect(ctx context.Context) error {
	var dialErr error
	dialOnce.Do(func() {
		url := os.Getenv("DATABASE_URL")
		if url == "" {
			dialErr = fmt.Errorf("DATABASE_URL environment variable not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(url)
		if err != nil {
			dialErr = fmt.Errorf("failed to parse database config: %w", err)
			return
		}

		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			dialErr = fmt.Errorf("failed to create database pool: %w", err)
			return
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			dialErr = fmt.Errorf("database unreachable: %w", err)
			return
		}
		pool = p
	})
	if dialErr != nil {
		return dialErr
	}
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	return nil
}

// Pool returns the shared connection pool, nil until Connect succeeds.
func Pool() *pgxpool.Pool {
	return pool
}

// Close releases the pool at process shutdown.
func Close() {
	if pool != nil {
		pool.Close()
		pool = nil
	}
}
