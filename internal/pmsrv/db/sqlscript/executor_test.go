package sqlscript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
)

// fakeConn scripts Exec results per statement and QueryRow results per
// query substring.
type fakeConn struct {
	executed []string
	execErr  map[int]error // 0-based statement index -> error
	rows     []fakeRow
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	idx := len(f.executed)
	f.executed = append(f.executed, sql)
	if err, ok := f.execErr[idx]; ok {
		return nil, err
	}
	return pgconn.CommandTag("OK"), nil
}

func (f *fakeConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if len(f.rows) == 0 {
		return fakeRow{err: errors.New("no row scripted")}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

type fakeRow struct {
	scan func(dest ...interface{}) error
	err  error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return r.scan(dest...)
}

func pgError(code string) error {
	return &pgconn.PgError{Code: code, Message: "scripted failure"}
}

func TestExecuteScriptRunsInOrder(t *testing.T) {
	db := &fakeConn{}
	err := ExecuteScript(context.Background(), db, "SELECT 1; SELECT 2; SELECT 3;")
	require.Nil(t, err)
	assert.Equal(t, []string{"SELECT 1", "SELECT 2", "SELECT 3"}, db.executed)
}

func TestExecuteScriptSkipsIdempotentFailures(t *testing.T) {
	db := &fakeConn{execErr: map[int]error{
		0: pgError("42P07"), // duplicate_table
		1: pgError("23505"), // unique_violation
	}}
	err := ExecuteScript(context.Background(), db, "CREATE TABLE t (id int); INSERT INTO t VALUES (1); SELECT 1;")
	require.Nil(t, err)
	assert.Len(t, db.executed, 3)
}

func TestExecuteScriptAbortsOnHardFailure(t *testing.T) {
	db := &fakeConn{execErr: map[int]error{
		1: pgError("42601"), // syntax_error
	}}
	err := ExecuteScript(context.Background(), db, "SELECT 1; SELEC oops; SELECT 3;")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrScriptExecution)
	assert.Contains(t, err.Error(), "statement 2 of 3")
	assert.Contains(t, err.Error(), "SELEC oops")

	// The failing statement aborts the sequence.
	assert.Len(t, db.executed, 2)
}

func TestExecuteScriptBoundsFailurePreview(t *testing.T) {
	long := "INSERT INTO t VALUES ('" + strings.Repeat("x", 500) + "');"
	db := &fakeConn{execErr: map[int]error{0: pgError("42601")}}
	err := ExecuteScript(context.Background(), db, long)
	require.NotNil(t, err)
	assert.Less(t, len(err.Error()), 300)
	assert.Contains(t, err.Error(), "...")
}

func TestIsIdempotentError(t *testing.T) {
	for _, code := range []string{"42P04", "42P06", "42P07", "42701", "42710", "23505"} {
		assert.True(t, IsIdempotentError(pgError(code)), code)
	}
	assert.False(t, IsIdempotentError(pgError("42601")))
	assert.False(t, IsIdempotentError(pgError("28P01")))

	// Message fallback for errors without a structured code.
	assert.True(t, IsIdempotentError(errors.New(`relation "tasks" already exists`)))
	assert.True(t, IsIdempotentError(errors.New("ERROR: duplicate key value violates unique constraint")))
	assert.False(t, IsIdempotentError(errors.New("connection refused")))
	assert.False(t, IsIdempotentError(nil))

	// Wrapped structured errors are still classified by code.
	wrapped := fmt.Errorf("exec failed: %w", pgError("42P07"))
	assert.True(t, IsIdempotentError(wrapped))
}

func TestStatementPreview(t *testing.T) {
	assert.Equal(t, "SELECT 1", StatementPreview("  SELECT\n\t1  "))

	long := strings.Repeat("a", 500)
	preview := StatementPreview(long)
	assert.Len(t, preview, previewLimit+3)
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestVerifySchema(t *testing.T) {
	t.Run("marker present", func(t *testing.T) {
		db := &fakeConn{rows: []fakeRow{{scan: func(dest ...interface{}) error {
			*(dest[0].(*bool)) = true
			return nil
		}}}}
		assert.Nil(t, VerifySchema(context.Background(), db, "projects_core"))
	})

	t.Run("marker missing reports existing tables", func(t *testing.T) {
		db := &fakeConn{rows: []fakeRow{
			{scan: func(dest ...interface{}) error {
				*(dest[0].(*bool)) = false
				return nil
			}},
			{scan: func(dest ...interface{}) error {
				*(dest[0].(*[]string)) = []string{"labels", "tasks"}
				return nil
			}},
		}}
		err := VerifySchema(context.Background(), db, "projects_core")
		require.NotNil(t, err)
		assert.ErrorIs(t, err, dberror.ErrScriptExecution)
		assert.Contains(t, err.Error(), `"projects_core"`)
		assert.Contains(t, err.Error(), "labels")
		assert.Contains(t, err.Error(), "tasks")
	})

	t.Run("query failure", func(t *testing.T) {
		db := &fakeConn{rows: []fakeRow{{err: errors.New("broken pipe")}}}
		err := VerifySchema(context.Background(), db, "projects_core")
		require.NotNil(t, err)
		assert.ErrorIs(t, err, dberror.ErrDatabase)
	})
}

func TestExecuteSeedScriptGatesOnSchema(t *testing.T) {
	db := &fakeConn{rows: []fakeRow{
		{scan: func(dest ...interface{}) error {
			*(dest[0].(*bool)) = false
			return nil
		}},
		{scan: func(dest ...interface{}) error {
			*(dest[0].(*[]string)) = nil
			return nil
		}},
	}}
	err := ExecuteSeedScript(context.Background(), db, "INSERT INTO projects_core VALUES (1);", "projects_core")
	require.NotNil(t, err)
	assert.Empty(t, db.executed, "seed must not run against an unready schema")
}
