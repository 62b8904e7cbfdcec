// Package provision creates and tears down tenant databases. A
// provisioning run issues CREATE DATABASE through an administrative
// connection, loads the shared schema script, then loads the seed
// script over a fresh session. Schema failures roll the database back;
// seed failures are tolerated, since seed data is default content, not
// structure.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/apperrors"
	"github.com/workdeck/workdeck/internal/pmsrv/config"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dbmanager"
	"github.com/workdeck/workdeck/internal/pmsrv/db/sqlscript"
)

// tenantConn is the connection surface a provisioning step needs.
// *pgx.Conn satisfies it.
type tenantConn interface {
	sqlscript.Conn
	Close(ctx context.Context) error
}

// Provisioner creates tenant databases. The connection hooks are
// swapped in tests.
type Provisioner struct {
	connectAdmin  func(ctx context.Context) (tenantConn, error)
	connectTenant func(ctx context.Context, namespace string) (tenantConn, error)
}

// New creates a Provisioner using the configured administrative and
// tenant DSNs.
func New() *Provisioner {
	return &Provisioner{
		connectAdmin: func(ctx context.Context) (tenantConn, error) {
			return pgx.Connect(ctx, config.Config().AdminDSN())
		},
		connectTenant: func(ctx context.Context, namespace string) (tenantConn, error) {
			return pgx.Connect(ctx, config.Config().TenantDSN(namespace))
		},
	}
}

// Provision creates the database for namespace, loads the schema
// script, and loads the seed script. On an unrecoverable failure it
// attempts to drop the partially created database and returns
// ErrProvisioning identifying the namespace and the failing step. A
// seed-only failure keeps the database and is reported as a warning in
// the logs, not an error to the caller.
func (p *Provisioner) Provision(ctx context.Context, namespace string) apperrors.Error {
	if !dbmanager.ValidNamespace(namespace) {
		return dberror.ErrInvalidNamespace.Msg("invalid namespace: " + namespace)
	}

	dbName := config.Config().TenantDBName(namespace)
	slog := log.Ctx(ctx).With().Str("namespace", namespace).Str("database", dbName).Logger()

	schemaScript, err := os.ReadFile(config.Config().TenantDB.SchemaScript)
	if err != nil {
		return provisioningError(namespace, "read schema script", err)
	}
	seedScript, err := os.ReadFile(config.Config().TenantDB.SeedScript)
	if err != nil {
		return provisioningError(namespace, "read seed script", err)
	}

	admin, err := p.connectAdmin(ctx)
	if err != nil {
		slog.Error().Err(err).Msg("failed to open administrative connection")
		return dberror.ErrConnection.MsgErr("failed to open administrative connection", err)
	}
	defer admin.Close(ctx)

	// Step 1: create the database. Losing a creation race to a
	// concurrent provisioner for the same namespace is not a failure
	// to clean up: the winner's database must be left alone.
	_, err = admin.Exec(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	if err != nil {
		if isDuplicateDatabase(err) {
			slog.Info().Msg("database already exists")
			return dberror.ErrAlreadyExists.Msg("database already exists for namespace: " + namespace)
		}
		slog.Error().Err(err).Msg("CREATE DATABASE failed")
		return provisioningError(namespace, "create database", err)
	}
	slog.Info().Msg("tenant database created")

	// Steps 2-3: load the schema over a short-lived connection.
	if err := p.runScript(ctx, namespace, string(schemaScript), ""); err != nil {
		slog.Error().Err(err).Msg("schema load failed, rolling back database")
		p.dropDatabase(ctx, admin, dbName)
		return dberror.ErrProvisioning.
			Msg(fmt.Sprintf("provisioning %s failed at step: load schema", namespace)).
			Err(err)
	}

	// Steps 4-6: reconnect for a clean session, verify readiness, then
	// seed. A database with a valid schema but incomplete seed data is
	// kept.
	marker := config.Config().TenantDB.SchemaMarkerTable
	if err := p.runScript(ctx, namespace, string(seedScript), marker); err != nil {
		slog.Warn().Err(err).Msg("seed load failed, keeping database with schema only")
		return nil
	}

	slog.Info().Msg("tenant database provisioned")
	return nil
}

// runScript opens a fresh connection to the tenant database, optionally
// verifies the schema marker, executes the script, and closes the
// connection.
func (p *Provisioner) runScript(ctx context.Context, namespace, script, markerTable string) apperrors.Error {
	conn, err := p.connectTenant(ctx, namespace)
	if err != nil {
		return dberror.ErrConnection.MsgErr("failed to connect tenant database: "+namespace, err)
	}
	defer conn.Close(ctx)

	if markerTable != "" {
		return sqlscript.ExecuteSeedScript(ctx, conn, script, markerTable)
	}
	return sqlscript.ExecuteScript(ctx, conn, script)
}

// dropDatabase is best-effort cleanup after a failed provisioning run.
// Failures are logged, never propagated: they must not mask the error
// that triggered the rollback.
func (p *Provisioner) dropDatabase(ctx context.Context, admin tenantConn, dbName string) {
	_, err := admin.Exec(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(dbName))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("database", dbName).Msg("cleanup drop failed")
		return
	}
	log.Ctx(ctx).Info().Str("database", dbName).Msg("partially provisioned database dropped")
}

// Deprovision drops the database for namespace. The caller is expected
// to have evicted the namespace's pool first so no pooled connections
// block the drop. Dropping an absent database is a no-op.
func (p *Provisioner) Deprovision(ctx context.Context, namespace string) apperrors.Error {
	if !dbmanager.ValidNamespace(namespace) {
		return dberror.ErrInvalidNamespace.Msg("invalid namespace: " + namespace)
	}

	dbName := config.Config().TenantDBName(namespace)

	admin, err := p.connectAdmin(ctx)
	if err != nil {
		return dberror.ErrConnection.MsgErr("failed to open administrative connection", err)
	}
	defer admin.Close(ctx)

	// Terminate lingering backends so the drop does not fail on a
	// stray session. Best effort: the drop below reports the real
	// outcome.
	_, _ = admin.Exec(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`,
		dbName)

	_, err = admin.Exec(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(dbName))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("database", dbName).Msg("DROP DATABASE failed")
		return provisioningError(namespace, "drop database", err)
	}

	log.Ctx(ctx).Info().Str("database", dbName).Msg("tenant database dropped")
	return nil
}

func provisioningError(namespace, step string, err error) apperrors.Error {
	return dberror.ErrProvisioning.
		Msg(fmt.Sprintf("provisioning %s failed at step: %s", namespace, step)).
		Err(err)
}

// isDuplicateDatabase reports whether err is Postgres duplicate_database.
func isDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P04"
}
