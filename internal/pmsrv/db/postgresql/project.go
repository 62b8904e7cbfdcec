package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/apperrors"
	"github.com/workdeck/workdeck/internal/common/uuid"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
	"github.com/workdeck/workdeck/internal/pmsrv/db/models"
)

// CreateProject inserts a new project together with its namespace
// record. The two are one row, so the namespace binding is atomic with
// project creation.
func (mm *metadataManager) CreateProject(ctx context.Context, project *models.Project) apperrors.Error {
	if project.ProjectID == uuid.Nil {
		project.ProjectID = uuid.New()
	}

	query := `
		INSERT INTO projects (project_id, name, namespace, owner_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id) DO NOTHING
		RETURNING project_id;
	`

	row := mm.db.QueryRow(ctx, query, project.ProjectID, project.Name, project.Namespace, project.OwnerID)
	var insertedID uuid.UUID
	err := row.Scan(&insertedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Ctx(ctx).Info().Str("project_id", project.ProjectID.String()).Msg("project already exists")
			return dberror.ErrAlreadyExists.Msg("project already exists")
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Ctx(ctx).Info().Str("namespace", project.Namespace).Msg("namespace already taken")
			return dberror.ErrAlreadyExists.Msg("namespace already taken: " + project.Namespace)
		}
		log.Ctx(ctx).Error().Err(err).Str("project_id", project.ProjectID.String()).Msg("failed to insert project")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

// GetProject retrieves a project from the global database.
func (mm *metadataManager) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, apperrors.Error) {
	query := `
		SELECT project_id, name, namespace, owner_id, created_at, updated_at
		FROM projects
		WHERE project_id = $1;
	`

	var project models.Project
	err := mm.db.QueryRow(ctx, query, projectID).Scan(
		&project.ProjectID, &project.Name, &project.Namespace,
		&project.OwnerID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Ctx(ctx).Info().Str("project_id", projectID.String()).Msg("project not found")
			return nil, dberror.ErrNotFound.Msg("project not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("project_id", projectID.String()).Msg("failed to retrieve project")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return &project, nil
}

// GetProjectNamespace resolves a project's namespace. An absent project
// or an empty namespace both surface as "project has no database"
// rather than a raw lookup miss.
func (mm *metadataManager) GetProjectNamespace(ctx context.Context, projectID uuid.UUID) (string, apperrors.Error) {
	query := `
		SELECT namespace
		FROM projects
		WHERE project_id = $1;
	`

	var namespace string
	err := mm.db.QueryRow(ctx, query, projectID).Scan(&namespace)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", dberror.ErrNotFound.Msg("project has no database")
		}
		log.Ctx(ctx).Error().Err(err).Str("project_id", projectID.String()).Msg("failed to resolve namespace")
		return "", dberror.ErrDatabase.Err(err)
	}
	if namespace == "" {
		return "", dberror.ErrNotFound.Msg("project has no database")
	}

	return namespace, nil
}

// DeleteProject removes a project record and returns the namespace it
// held, so the caller can tear down the tenant database afterward.
func (mm *metadataManager) DeleteProject(ctx context.Context, projectID uuid.UUID) (string, apperrors.Error) {
	query := `
		DELETE FROM projects
		WHERE project_id = $1
		RETURNING namespace;
	`

	var namespace string
	err := mm.db.QueryRow(ctx, query, projectID).Scan(&namespace)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", dberror.ErrNotFound.Msg("project not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("project_id", projectID.String()).Msg("failed to delete project")
		return "", dberror.ErrDatabase.Err(err)
	}

	return namespace, nil
}

// ListProjects returns all projects a user is a member of or owns.
func (mm *metadataManager) ListProjects(ctx context.Context, userID uuid.UUID) ([]*models.Project, apperrors.Error) {
	query := `
		SELECT DISTINCT p.project_id, p.name, p.namespace, p.owner_id, p.created_at, p.updated_at
		FROM projects p
		LEFT JOIN project_members m ON m.project_id = p.project_id
		WHERE p.owner_id = $1 OR m.user_id = $1
		ORDER BY p.name;
	`

	rows, err := mm.db.Query(ctx, query, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list projects")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var project models.Project
		if err := rows.Scan(&project.ProjectID, &project.Name, &project.Namespace,
			&project.OwnerID, &project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		projects = append(projects, &project)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return projects, nil
}
