// Package pmcommon holds the shared identifiers and version constants
// used across the Workdeck project-management service.
package pmcommon

// ServerVersion is the reported server build version.
const ServerVersion = "0.1.0"

// ApiVersion is the reported API version.
const ApiVersion = "0.1.0-alpha.1"

// ProjectId identifies a project in the global database. Every project
// is a tenant: its entity data lives in its own database, addressed by
// the project's namespace.
type ProjectId string
