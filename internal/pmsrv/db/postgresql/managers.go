// Package postgresql implements the global-database metadata store:
// users, projects with their namespace records, and project
// memberships. All queries run against the global pool owned by the
// registry.
package postgresql

import (
	"github.com/workdeck/workdeck/internal/pmsrv/db/dbmanager"
)

// metadataManager executes metadata queries against the global
// database.
type metadataManager struct {
	db dbmanager.DbHandle
}

// NewMetadataManager creates a metadata manager over the given global
// database handle.
func NewMetadataManager(db dbmanager.DbHandle) *metadataManager {
	return &metadataManager{db: db}
}
