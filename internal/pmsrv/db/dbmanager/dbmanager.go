// Package dbmanager maintains the process-wide database pools: one
// eagerly created pool for the global database and a lazily populated,
// cached pool per tenant namespace. The registry is the sole owner of
// every pool; callers obtain handles through it and never cache them
// across calls.
package dbmanager

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/workdeck/workdeck/internal/common/apperrors"
)

// DbHandle is the pool surface exposed to callers. *pgxpool.Pool
// satisfies it.
type DbHandle interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// ConnectionStats is a diagnostic snapshot of the registry. It is
// informational only and never used for control flow.
type ConnectionStats struct {
	GlobalConnected bool     `json:"globalConnected"`
	TenantCount     int      `json:"tenantCount"`
	Namespaces      []string `json:"namespaces"`
}

// PoolRegistry caches one live pool per tenant namespace plus the
// global pool.
type PoolRegistry interface {
	// Global returns the global database pool, or an error if the
	// registry was never initialized or already shut down.
	Global() (DbHandle, apperrors.Error)

	// Get returns the cached pool for namespace, creating and caching
	// it on first access. Concurrent first requests for the same
	// namespace are coalesced into a single creation.
	Get(ctx context.Context, namespace string) (DbHandle, apperrors.Error)

	// Evict closes and removes a single tenant's pool. Other tenants
	// are unaffected. Evicting an unknown namespace is a no-op.
	Evict(ctx context.Context, namespace string)

	// CloseAll closes every registered pool including the global pool
	// and clears the registry. Safe to call more than once.
	CloseAll(ctx context.Context)

	// Stats returns a diagnostic snapshot.
	Stats() ConnectionStats
}
