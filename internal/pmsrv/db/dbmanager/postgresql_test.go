package dbmanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
)

// fakePool is a DbHandle stand-in; the registry never issues queries on
// pools itself beyond creation, so only Close matters here.
type fakePool struct {
	name   string
	closed atomic.Bool
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag("OK"), nil
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func (f *fakePool) Ping(ctx context.Context) error { return nil }

func (f *fakePool) Close() { f.closed.Store(true) }

func newTestRegistry(open func(ctx context.Context, namespace string) (DbHandle, error)) *postgresRegistry {
	return &postgresRegistry{
		global:     &fakePool{name: "global"},
		tenants:    make(map[string]DbHandle),
		openTenant: open,
	}
}

func TestGetReturnsSamePool(t *testing.T) {
	ctx := context.Background()
	var opened int32
	r := newTestRegistry(func(ctx context.Context, namespace string) (DbHandle, error) {
		atomic.AddInt32(&opened, 1)
		return &fakePool{name: namespace}, nil
	})

	first, err := r.Get(ctx, "acme_1")
	require.Nil(t, err)
	second, err := r.Get(ctx, "acme_1")
	require.Nil(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&opened))
}

func TestGetSingleFlight(t *testing.T) {
	ctx := context.Background()
	var opened int32
	r := newTestRegistry(func(ctx context.Context, namespace string) (DbHandle, error) {
		atomic.AddInt32(&opened, 1)
		time.Sleep(100 * time.Millisecond)
		return &fakePool{name: namespace}, nil
	})

	const callers = 16
	handles := make([]DbHandle, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			h, err := r.Get(ctx, "shared_ns")
			assert.Nil(t, err)
			handles[i] = h
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&opened), "concurrent first requests must coalesce")
	for i := 1; i < callers; i++ {
		assert.Same(t, handles[0], handles[i])
	}
}

func TestGetRejectsInvalidNamespace(t *testing.T) {
	r := newTestRegistry(nil)
	for _, ns := range []string{"", "Acme", "1abc", "a-b", "a.b", "a;drop"} {
		_, err := r.Get(context.Background(), ns)
		require.NotNil(t, err, ns)
		assert.ErrorIs(t, err, dberror.ErrInvalidNamespace, ns)
	}
}

func TestGetDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	var opened int32
	r := newTestRegistry(func(ctx context.Context, namespace string) (DbHandle, error) {
		if atomic.AddInt32(&opened, 1) == 1 {
			return nil, errors.New("connection refused")
		}
		return &fakePool{name: namespace}, nil
	})

	_, err := r.Get(ctx, "flaky")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrConnection)
	assert.Equal(t, 0, r.Stats().TenantCount)

	// The failure is not cached; the next call retries creation.
	h, err := r.Get(ctx, "flaky")
	require.Nil(t, err)
	assert.NotNil(t, h)
	assert.EqualValues(t, 2, atomic.LoadInt32(&opened))
}

func TestEvict(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(func(ctx context.Context, namespace string) (DbHandle, error) {
		return &fakePool{name: namespace}, nil
	})

	a, err := r.Get(ctx, "tenant_a")
	require.Nil(t, err)
	b, err := r.Get(ctx, "tenant_b")
	require.Nil(t, err)

	r.Evict(ctx, "tenant_a")
	assert.True(t, a.(*fakePool).closed.Load())
	assert.False(t, b.(*fakePool).closed.Load())

	stats := r.Stats()
	assert.Equal(t, 1, stats.TenantCount)
	assert.Equal(t, []string{"tenant_b"}, stats.Namespaces)

	// Unknown namespaces are a no-op.
	r.Evict(ctx, "never_seen")

	// A fresh pool is created on the next request.
	a2, err := r.Get(ctx, "tenant_a")
	require.Nil(t, err)
	assert.NotSame(t, a, a2)
}

func TestCloseAll(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(func(ctx context.Context, namespace string) (DbHandle, error) {
		return &fakePool{name: namespace}, nil
	})
	global, err := r.Global()
	require.Nil(t, err)

	a, gerr := r.Get(ctx, "tenant_a")
	require.Nil(t, gerr)

	r.CloseAll(ctx)
	assert.True(t, a.(*fakePool).closed.Load())
	assert.True(t, global.(*fakePool).closed.Load())

	// Idempotent.
	r.CloseAll(ctx)

	// Subsequent access fails with a clear error, never a hang or a
	// low-level fault.
	_, err = r.Global()
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrNotInitialized)

	_, err = r.Get(ctx, "tenant_a")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrNotInitialized)

	stats := r.Stats()
	assert.False(t, stats.GlobalConnected)
	assert.Equal(t, 0, stats.TenantCount)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(func(ctx context.Context, namespace string) (DbHandle, error) {
		return &fakePool{name: namespace}, nil
	})

	stats := r.Stats()
	assert.True(t, stats.GlobalConnected)
	assert.Equal(t, 0, stats.TenantCount)
	assert.Empty(t, stats.Namespaces)

	for _, ns := range []string{"zeta", "alpha", "mid"} {
		_, err := r.Get(ctx, ns)
		require.Nil(t, err)
	}
	stats = r.Stats()
	assert.Equal(t, 3, stats.TenantCount)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, stats.Namespaces)
}

func TestValidNamespace(t *testing.T) {
	assert.True(t, ValidNamespace("acme"))
	assert.True(t, ValidNamespace("acme_1"))
	assert.True(t, ValidNamespace("a1_b2_c3"))
	assert.False(t, ValidNamespace(""))
	assert.False(t, ValidNamespace("_acme"))
	assert.False(t, ValidNamespace("ACME"))
	assert.False(t, ValidNamespace("acme-1"))
	assert.False(t, ValidNamespace("acme 1"))
}
