package sqlscript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/apperrors"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
)

// Execer executes a single SQL statement. *pgx.Conn and *pgxpool.Pool
// both satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// RowQuerier runs a single-row query. *pgx.Conn and *pgxpool.Pool both
// satisfy it.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Conn is the connection surface the executor needs.
type Conn interface {
	Execer
	RowQuerier
}

// previewLimit bounds how much of a failing statement is reported.
// Seed scripts can be large; error messages must not be.
const previewLimit = 120

// Postgres error codes treated as idempotency-class: the object the
// statement creates already exists, so the desired end state is
// already in place.
var idempotentPgCodes = map[string]bool{
	"42P04": true, // duplicate_database
	"42P06": true, // duplicate_schema
	"42P07": true, // duplicate_table
	"42701": true, // duplicate_column
	"42710": true, // duplicate_object
	"23505": true, // unique_violation
}

// IsIdempotentError reports whether err indicates a condition that is
// safe to skip during script loading because the target state already
// exists. Structured Postgres error codes are checked first; message
// inspection is the fallback for errors that carry no code.
func IsIdempotentError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return idempotentPgCodes[pgErr.Code]
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate key")
}

// StatementPreview returns a bounded, whitespace-collapsed preview of a
// statement for error messages and logs.
func StatementPreview(stmt string) string {
	collapsed := strings.Join(strings.Fields(stmt), " ")
	if len(collapsed) > previewLimit {
		return collapsed[:previewLimit] + "..."
	}
	return collapsed
}

// ExecuteScript runs every statement of script in order against db.
// Statements run strictly sequentially since later DDL may depend on
// earlier statements. Idempotency-class failures are logged and
// skipped; any other failure aborts the sequence and reports the
// 1-based statement index with a bounded preview. There is no rollback
// across statements: this is a best-effort loader, not a migration
// tool.
func ExecuteScript(ctx context.Context, db Execer, script string) apperrors.Error {
	stmts := Split(script)
	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			if IsIdempotentError(err) {
				log.Ctx(ctx).Debug().
					Int("statement", i+1).
					Str("preview", StatementPreview(stmt)).
					Msg("skipping statement, target already exists")
				continue
			}
			log.Ctx(ctx).Error().Err(err).
				Int("statement", i+1).
				Int("total", len(stmts)).
				Str("preview", StatementPreview(stmt)).
				Msg("script statement failed")
			return dberror.ErrScriptExecution.
				Msg(fmt.Sprintf("statement %d of %d failed: %s", i+1, len(stmts), StatementPreview(stmt))).
				Err(err)
		}
	}
	return nil
}

// VerifySchema checks that the marker table exists in the public schema
// of the connected database. When the marker is missing, the error
// lists the tables that do exist to aid diagnosis.
func VerifySchema(ctx context.Context, db RowQuerier, markerTable string) apperrors.Error {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, markerTable).Scan(&exists)
	if err != nil {
		return dberror.ErrDatabase.MsgErr("failed to verify schema readiness", err)
	}
	if exists {
		return nil
	}

	var tables []string
	err = db.QueryRow(ctx,
		`SELECT coalesce(array_agg(table_name ORDER BY table_name), '{}')
		 FROM information_schema.tables
		 WHERE table_schema = 'public'`).Scan(&tables)
	if err != nil {
		tables = nil
	}
	return dberror.ErrScriptExecution.Msg(
		fmt.Sprintf("schema not ready: marker table %q not found, existing tables: %v", markerTable, tables))
}

// ExecuteSeedScript verifies schema readiness via the marker table and
// then runs the seed script. Seeding against an unready schema aborts
// immediately rather than producing a cascade of statement failures.
func ExecuteSeedScript(ctx context.Context, db Conn, script, markerTable string) apperrors.Error {
	if err := VerifySchema(ctx, db, markerTable); err != nil {
		return err
	}
	return ExecuteScript(ctx, db, script)
}
