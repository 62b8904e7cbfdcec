package models

import (
	"time"

	"github.com/workdeck/workdeck/internal/common/uuid"
	"github.com/workdeck/workdeck/internal/pmsrv/pmcommon"
)

/*
  Column    |           Type           | Nullable | Default
------------+--------------------------+----------+---------
 project_id | uuid                     | not null |
 name       | character varying(128)   | not null |
 namespace  | character varying(64)    | not null |
 owner_id   | uuid                     | not null |
 created_at | timestamp with time zone |          | now()
 updated_at | timestamp with time zone |          | now()
Indexes:
    "projects_pkey" PRIMARY KEY, btree (project_id)
    "projects_namespace_key" UNIQUE, btree (namespace)
Check constraints:
    "projects_namespace_check" CHECK (namespace::text ~ '^[a-z][a-z0-9_]*$'::text)
*/

// Project is the tenant database record: it binds a project to the
// namespace naming its isolated database. The namespace is assigned
// once at creation and never changes or gets reused.
type Project struct {
	ProjectID uuid.UUID
	Name      string
	Namespace string
	OwnerID   uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ID returns the project identifier in its context form.
func (p *Project) ID() pmcommon.ProjectId {
	return pmcommon.ProjectId(p.ProjectID.String())
}
