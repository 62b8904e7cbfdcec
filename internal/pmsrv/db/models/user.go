package models

import (
	"time"

	"github.com/workdeck/workdeck/internal/common/uuid"
)

// User lives in the global database and is shared across all projects.
type User struct {
	UserID    uuid.UUID
	Email     string
	FullName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectMember binds a user to a project with a role. Membership is
// global metadata; the member's activity data lives in the project's
// own database.
type ProjectMember struct {
	ProjectID uuid.UUID
	UserID    uuid.UUID
	Role      string
	CreatedAt time.Time
}
