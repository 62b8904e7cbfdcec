package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/apperrors"
	"github.com/workdeck/workdeck/internal/common/uuid"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
	"github.com/workdeck/workdeck/internal/pmsrv/db/models"
)

// CreateUser inserts a new user. If the email is already registered it
// returns ErrAlreadyExists.
func (mm *metadataManager) CreateUser(ctx context.Context, user *models.User) apperrors.Error {
	if user.UserID == uuid.Nil {
		user.UserID = uuid.New()
	}

	query := `
		INSERT INTO users (user_id, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING user_id;
	`

	var insertedID uuid.UUID
	err := mm.db.QueryRow(ctx, query, user.UserID, user.Email, user.FullName).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dberror.ErrAlreadyExists.Msg("user already exists")
		}
		log.Ctx(ctx).Error().Err(err).Str("email", user.Email).Msg("failed to insert user")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

// GetUser retrieves a user by ID.
func (mm *metadataManager) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, apperrors.Error) {
	query := `
		SELECT user_id, email, full_name, created_at, updated_at
		FROM users
		WHERE user_id = $1;
	`

	var user models.User
	err := mm.db.QueryRow(ctx, query, userID).Scan(
		&user.UserID, &user.Email, &user.FullName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dberror.ErrNotFound.Msg("user not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("user_id", userID.String()).Msg("failed to retrieve user")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return &user, nil
}

// DeleteUser removes a user. Deleting an unknown user is a no-op.
func (mm *metadataManager) DeleteUser(ctx context.Context, userID uuid.UUID) apperrors.Error {
	_, err := mm.db.Exec(ctx, `DELETE FROM users WHERE user_id = $1;`, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", userID.String()).Msg("failed to delete user")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// AddProjectMember adds a user to a project. Adding an existing member
// updates the role.
func (mm *metadataManager) AddProjectMember(ctx context.Context, member *models.ProjectMember) apperrors.Error {
	query := `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role;
	`

	_, err := mm.db.Exec(ctx, query, member.ProjectID, member.UserID, member.Role)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("project_id", member.ProjectID.String()).
			Str("user_id", member.UserID.String()).
			Msg("failed to add project member")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// RemoveProjectMember removes a user from a project.
func (mm *metadataManager) RemoveProjectMember(ctx context.Context, projectID, userID uuid.UUID) apperrors.Error {
	_, err := mm.db.Exec(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2;`, projectID, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("project_id", projectID.String()).
			Str("user_id", userID.String()).
			Msg("failed to remove project member")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// ListProjectMembers returns the members of a project.
func (mm *metadataManager) ListProjectMembers(ctx context.Context, projectID uuid.UUID) ([]*models.ProjectMember, apperrors.Error) {
	query := `
		SELECT project_id, user_id, role, created_at
		FROM project_members
		WHERE project_id = $1
		ORDER BY created_at;
	`

	rows, err := mm.db.Query(ctx, query, projectID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("project_id", projectID.String()).Msg("failed to list project members")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var members []*models.ProjectMember
	for rows.Next() {
		var member models.ProjectMember
		if err := rows.Scan(&member.ProjectID, &member.UserID, &member.Role, &member.CreatedAt); err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		members = append(members, &member)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}

	return members, nil
}
