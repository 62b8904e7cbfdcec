package dbmanager

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/log/zerologadapter"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/workdeck/workdeck/internal/common/apperrors"
	"github.com/workdeck/workdeck/internal/pmsrv/config"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
)

// validNamespaceRegex constrains namespaces to strings that are safe to
// embed in a database name.
var validNamespaceRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidNamespace reports whether namespace is well-formed.
func ValidNamespace(namespace string) bool {
	return validNamespaceRegex.MatchString(namespace)
}

// postgresRegistry implements PoolRegistry over pgxpool. The map is the
// only shared mutable structure; every mutation holds mu, and creation
// of a missing entry is coalesced per namespace through the
// singleflight group so two concurrent first requests never build two
// pools.
type postgresRegistry struct {
	mu      sync.RWMutex
	global  DbHandle
	tenants map[string]DbHandle
	group   singleflight.Group
	closed  bool

	// openTenant is swapped in tests.
	openTenant func(ctx context.Context, namespace string) (DbHandle, error)
}

// NewPostgresRegistry creates the registry and eagerly connects the
// global pool, retrying with backoff so a briefly unavailable database
// at process start does not abort boot.
func NewPostgresRegistry(ctx context.Context) (PoolRegistry, apperrors.Error) {
	var global DbHandle
	err := retry.Do(func() error {
		pool, err := openPool(ctx, config.Config().GlobalDSN(),
			config.Config().DB.MaxConns, config.Config().DB.MinConns)
		if err != nil {
			return err
		}
		global = pool
		return nil
	}, retry.Attempts(3), retry.Delay(1*time.Second), retry.DelayType(retry.BackOffDelay))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to connect global database pool")
		return nil, dberror.ErrConnection.MsgErr("failed to connect global database", err)
	}

	return &postgresRegistry{
		global:     global,
		tenants:    make(map[string]DbHandle),
		openTenant: openTenantPool,
	}, nil
}

// openPool opens and validates a pgx pool with the given bounds.
func openPool(ctx context.Context, dsn string, maxConns, minConns int32) (DbHandle, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	poolCfg.MaxConnIdleTime = config.Config().TenantDB.GetMaxConnIdleTimeOrDefault()
	poolCfg.ConnConfig.ConnectTimeout = config.Config().TenantDB.GetConnectTimeoutOrDefault()

	// Pool-level faults (a backend closing a connection, failed health
	// checks) are logged through zerolog instead of surfacing as
	// panics in the host process.
	poolCfg.ConnConfig.Logger = zerologadapter.NewLogger(log.Logger)
	poolCfg.ConnConfig.LogLevel = pgx.LogLevelWarn

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	// Validate with a trivial round trip before handing the pool out.
	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func openTenantPool(ctx context.Context, namespace string) (DbHandle, error) {
	return openPool(ctx, config.Config().TenantDSN(namespace),
		config.Config().TenantDB.MaxConns, config.Config().TenantDB.MinConns)
}

func (r *postgresRegistry) Global() (DbHandle, apperrors.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || r.global == nil {
		return nil, dberror.ErrNotInitialized.Msg("global database pool is not available")
	}
	return r.global, nil
}

func (r *postgresRegistry) Get(ctx context.Context, namespace string) (DbHandle, apperrors.Error) {
	if !ValidNamespace(namespace) {
		return nil, dberror.ErrInvalidNamespace.Msg("invalid namespace: " + namespace)
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, dberror.ErrNotInitialized.Msg("pool registry is shut down")
	}
	if pool, ok := r.tenants[namespace]; ok {
		r.mu.RUnlock()
		return pool, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(namespace, func() (interface{}, error) {
		// Re-check under the lock: an earlier flight may have
		// registered the pool between our miss and this call.
		r.mu.RLock()
		if pool, ok := r.tenants[namespace]; ok {
			r.mu.RUnlock()
			return pool, nil
		}
		closed := r.closed
		r.mu.RUnlock()
		if closed {
			return nil, dberror.ErrNotInitialized.Msg("pool registry is shut down")
		}

		pool, err := r.openTenant(ctx, namespace)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("namespace", namespace).Msg("failed to create tenant pool")
			return nil, dberror.ErrConnection.MsgErr("failed to connect tenant database: "+namespace, err)
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			pool.Close()
			return nil, dberror.ErrNotInitialized.Msg("pool registry is shut down")
		}
		r.tenants[namespace] = pool
		r.mu.Unlock()

		log.Ctx(ctx).Info().Str("namespace", namespace).Msg("tenant pool created")
		return pool, nil
	})
	if err != nil {
		if appErr, ok := err.(apperrors.Error); ok {
			return nil, appErr
		}
		return nil, dberror.ErrConnection.Err(err)
	}
	return v.(DbHandle), nil
}

func (r *postgresRegistry) Evict(ctx context.Context, namespace string) {
	r.mu.Lock()
	pool, ok := r.tenants[namespace]
	if ok {
		delete(r.tenants, namespace)
	}
	r.mu.Unlock()

	if ok {
		pool.Close()
		log.Ctx(ctx).Info().Str("namespace", namespace).Msg("tenant pool evicted")
	}
}

func (r *postgresRegistry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	for namespace, pool := range r.tenants {
		pool.Close()
		delete(r.tenants, namespace)
	}
	if r.global != nil {
		r.global.Close()
		r.global = nil
	}
	log.Ctx(ctx).Info().Msg("all database pools closed")
}

func (r *postgresRegistry) Stats() ConnectionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	namespaces := make([]string, 0, len(r.tenants))
	for namespace := range r.tenants {
		namespaces = append(namespaces, namespace)
	}
	sort.Strings(namespaces)

	return ConnectionStats{
		GlobalConnected: !r.closed && r.global != nil,
		TenantCount:     len(namespaces),
		Namespaces:      namespaces,
	}
}
