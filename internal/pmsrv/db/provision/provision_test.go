package provision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workdeck/workdeck/internal/pmsrv/config"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
)

func TestMain(m *testing.M) {
	config.TestInit()
	m.Run()
}

type fakeRow struct {
	scan func(dest ...interface{}) error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	return r.scan(dest...)
}

// fakeConn records executed statements and serves scripted results.
type fakeConn struct {
	execs   []string
	execErr func(sql string) error
	rows    []fakeRow
	closed  bool
}

func (c *fakeConn) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	if c.execErr != nil {
		if err := c.execErr(sql); err != nil {
			return nil, err
		}
	}
	return pgconn.CommandTag("OK"), nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if len(c.rows) == 0 {
		return fakeRow{scan: func(dest ...interface{}) error {
			return errors.New("no row queued")
		}}
	}
	row := c.rows[0]
	c.rows = c.rows[1:]
	return row
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

// markerFound queues a schema verification result.
func markerFound(found bool) fakeRow {
	return fakeRow{scan: func(dest ...interface{}) error {
		*(dest[0].(*bool)) = found
		return nil
	}}
}

// newTestProvisioner wires a Provisioner to the fake admin connection
// and a sequence of fake tenant connections handed out in order.
func newTestProvisioner(t *testing.T, admin *fakeConn, tenants ...*fakeConn) *Provisioner {
	t.Helper()
	i := 0
	return &Provisioner{
		connectAdmin: func(ctx context.Context) (tenantConn, error) {
			return admin, nil
		},
		connectTenant: func(ctx context.Context, namespace string) (tenantConn, error) {
			require.Less(t, i, len(tenants), "unexpected extra tenant connection")
			conn := tenants[i]
			i++
			return conn, nil
		},
	}
}

func TestProvisionHappyPath(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{}
	schemaConn := &fakeConn{}
	seedConn := &fakeConn{rows: []fakeRow{markerFound(true)}}
	p := newTestProvisioner(t, admin, schemaConn, seedConn)

	err := p.Provision(ctx, "acme")
	require.Nil(t, err)

	require.Len(t, admin.execs, 1)
	assert.Equal(t, `CREATE DATABASE "wd_acme"`, admin.execs[0])

	// The schema connection runs the schema script.
	require.NotEmpty(t, schemaConn.execs)
	assert.Contains(t, schemaConn.execs[0], "CREATE TABLE projects_core")

	// The seed connection runs after the marker check on a fresh
	// session.
	require.NotEmpty(t, seedConn.execs)
	assert.Contains(t, seedConn.execs[0], "INSERT INTO task_statuses")

	assert.True(t, admin.closed)
	assert.True(t, schemaConn.closed)
	assert.True(t, seedConn.closed)
}

func TestProvisionInvalidNamespace(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{}
	p := newTestProvisioner(t, admin)

	for _, ns := range []string{"", "Acme", "1acme", "acme-inc", "a b"} {
		err := p.Provision(ctx, ns)
		require.NotNil(t, err, ns)
		assert.ErrorIs(t, err, dberror.ErrInvalidNamespace)
	}
	assert.Empty(t, admin.execs)
}

func TestProvisionDuplicateDatabase(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{
		execErr: func(sql string) error {
			if strings.HasPrefix(sql, "CREATE DATABASE") {
				return &pgconn.PgError{Code: "42P04", Message: "database already exists"}
			}
			return nil
		},
	}
	p := newTestProvisioner(t, admin)

	err := p.Provision(ctx, "acme")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)

	// Losing the creation race must not drop the winner's database.
	for _, sql := range admin.execs {
		assert.NotContains(t, sql, "DROP DATABASE")
	}
}

func TestProvisionSchemaFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{}
	schemaConn := &fakeConn{
		execErr: func(sql string) error {
			return errors.New("relation does not exist")
		},
	}
	p := newTestProvisioner(t, admin, schemaConn)

	err := p.Provision(ctx, "acme")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrProvisioning)
	assert.Contains(t, err.Error(), "load schema")

	require.Len(t, admin.execs, 2)
	assert.Equal(t, `DROP DATABASE IF EXISTS "wd_acme"`, admin.execs[1])
}

func TestProvisionSeedFailureKeepsDatabase(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{}
	schemaConn := &fakeConn{}
	seedConn := &fakeConn{
		rows: []fakeRow{markerFound(true)},
		execErr: func(sql string) error {
			return errors.New("deadlock detected")
		},
	}
	p := newTestProvisioner(t, admin, schemaConn, seedConn)

	err := p.Provision(ctx, "acme")
	assert.Nil(t, err)

	for _, sql := range admin.execs {
		assert.NotContains(t, sql, "DROP DATABASE")
	}
}

func TestProvisionCleanupFailureKeepsOriginalError(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{
		execErr: func(sql string) error {
			if strings.HasPrefix(sql, "DROP DATABASE") {
				return errors.New("drop refused")
			}
			return nil
		},
	}
	schemaConn := &fakeConn{
		execErr: func(sql string) error {
			return errors.New("syntax error")
		},
	}
	p := newTestProvisioner(t, admin, schemaConn)

	err := p.Provision(ctx, "acme")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrProvisioning)
	assert.NotContains(t, err.Error(), "drop refused")
}

func TestDeprovision(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{}
	p := newTestProvisioner(t, admin)

	err := p.Deprovision(ctx, "acme")
	require.Nil(t, err)

	require.Len(t, admin.execs, 2)
	assert.Contains(t, admin.execs[0], "pg_terminate_backend")
	assert.Equal(t, `DROP DATABASE IF EXISTS "wd_acme"`, admin.execs[1])
	assert.True(t, admin.closed)
}

func TestDeprovisionDropFailure(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{
		execErr: func(sql string) error {
			if strings.HasPrefix(sql, "DROP DATABASE") {
				return errors.New("database is being accessed")
			}
			return nil
		},
	}
	p := newTestProvisioner(t, admin)

	err := p.Deprovision(ctx, "acme")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrProvisioning)
	assert.Contains(t, err.Error(), "drop database")
}

func TestDeprovisionInvalidNamespace(t *testing.T) {
	ctx := context.Background()
	admin := &fakeConn{}
	p := newTestProvisioner(t, admin)

	err := p.Deprovision(ctx, "Not-Valid")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrInvalidNamespace)
	assert.Empty(t, admin.execs)
}
