// Package db is the entry point to the Workdeck database layer. It
// defines the MetadataStore interface over the global database and the
// Manager, which owns the pool registry, the metadata store, and the
// tenant provisioner. Callers construct one Manager at startup and pass
// it down; nothing in this layer is a package-level singleton.
package db

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/apperrors"
	"github.com/workdeck/workdeck/internal/common/uuid"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dbmanager"
	"github.com/workdeck/workdeck/internal/pmsrv/db/models"
	"github.com/workdeck/workdeck/internal/pmsrv/db/postgresql"
	"github.com/workdeck/workdeck/internal/pmsrv/db/provision"
)

// MetadataStore handles the records kept in the global database: users,
// projects with their namespace bindings, and project memberships. All
// operations require a valid context and may return apperrors.Error.
type MetadataStore interface {
	// Project
	CreateProject(ctx context.Context, project *models.Project) apperrors.Error
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, apperrors.Error)
	GetProjectNamespace(ctx context.Context, projectID uuid.UUID) (string, apperrors.Error)
	DeleteProject(ctx context.Context, projectID uuid.UUID) (string, apperrors.Error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]*models.Project, apperrors.Error)
	DeriveNamespace(ctx context.Context, name string) (string, apperrors.Error)

	// User and membership
	CreateUser(ctx context.Context, user *models.User) apperrors.Error
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, apperrors.Error)
	DeleteUser(ctx context.Context, userID uuid.UUID) apperrors.Error
	AddProjectMember(ctx context.Context, member *models.ProjectMember) apperrors.Error
	RemoveProjectMember(ctx context.Context, projectID, userID uuid.UUID) apperrors.Error
	ListProjectMembers(ctx context.Context, projectID uuid.UUID) ([]*models.ProjectMember, apperrors.Error)
}

// Provisioner creates and drops tenant databases.
type Provisioner interface {
	Provision(ctx context.Context, namespace string) apperrors.Error
	Deprovision(ctx context.Context, namespace string) apperrors.Error
}

// Manager owns the database layer: the pool registry, the metadata
// store over the global database, and the tenant provisioner.
type Manager struct {
	registry    dbmanager.PoolRegistry
	metadata    MetadataStore
	provisioner Provisioner
}

// NewManager connects the global pool and wires up the database layer.
// It fails if the global database is unreachable after the connection
// retries are exhausted.
func NewManager(ctx context.Context) (*Manager, apperrors.Error) {
	registry, err := dbmanager.NewPostgresRegistry(ctx)
	if err != nil {
		return nil, err
	}
	global, err := registry.Global()
	if err != nil {
		registry.CloseAll(ctx)
		return nil, err
	}
	return &Manager{
		registry:    registry,
		metadata:    postgresql.NewMetadataManager(global),
		provisioner: provision.New(),
	}, nil
}

// NewManagerWithDeps wires a Manager from explicit components. Used by
// tests and by deployments that supply their own registry or store.
func NewManagerWithDeps(registry dbmanager.PoolRegistry, metadata MetadataStore, provisioner Provisioner) *Manager {
	return &Manager{
		registry:    registry,
		metadata:    metadata,
		provisioner: provisioner,
	}
}

// Metadata returns the metadata store over the global database.
func (m *Manager) Metadata() MetadataStore {
	return m.metadata
}

// GlobalDB returns the global database pool.
func (m *Manager) GlobalDB() (dbmanager.DbHandle, apperrors.Error) {
	return m.registry.Global()
}

// TenantDB returns the pool for a tenant namespace, creating it on
// first access.
func (m *Manager) TenantDB(ctx context.Context, namespace string) (dbmanager.DbHandle, apperrors.Error) {
	return m.registry.Get(ctx, namespace)
}

// ResolveProject looks up the namespace bound to a project and returns
// its tenant pool. This is the request router: handlers call it with
// the project from the URL and work against the returned handle.
func (m *Manager) ResolveProject(ctx context.Context, projectID uuid.UUID) (dbmanager.DbHandle, apperrors.Error) {
	namespace, err := m.metadata.GetProjectNamespace(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return m.registry.Get(ctx, namespace)
}

// ProvisionProject creates the tenant database for a project and warms
// its pool. The project record must already exist with its namespace
// bound.
func (m *Manager) ProvisionProject(ctx context.Context, namespace string) apperrors.Error {
	if err := m.provisioner.Provision(ctx, namespace); err != nil {
		return err
	}
	// Warming the pool immediately surfaces connectivity problems at
	// provisioning time instead of on the first request.
	if _, err := m.registry.Get(ctx, namespace); err != nil {
		log.Ctx(ctx).Warn().Str("namespace", namespace).Msg("provisioned but pool warmup failed")
	}
	return nil
}

// DeprovisionProject evicts the namespace's pool and drops its
// database.
func (m *Manager) DeprovisionProject(ctx context.Context, namespace string) apperrors.Error {
	m.registry.Evict(ctx, namespace)
	return m.provisioner.Deprovision(ctx, namespace)
}

// EvictTenant closes and removes a single tenant's pool without
// touching its database.
func (m *Manager) EvictTenant(ctx context.Context, namespace string) {
	m.registry.Evict(ctx, namespace)
}

// Stats returns a diagnostic snapshot of the pool registry.
func (m *Manager) Stats() dbmanager.ConnectionStats {
	return m.registry.Stats()
}

// Ping verifies the global database is reachable.
func (m *Manager) Ping(ctx context.Context) apperrors.Error {
	global, err := m.registry.Global()
	if err != nil {
		return err
	}
	if pingErr := global.Ping(ctx); pingErr != nil {
		return dberror.ErrConnection.MsgErr("global database unreachable", pingErr)
	}
	return nil
}

// Close shuts down every pool. The Manager is unusable afterwards.
func (m *Manager) Close(ctx context.Context) {
	m.registry.CloseAll(ctx)
}
