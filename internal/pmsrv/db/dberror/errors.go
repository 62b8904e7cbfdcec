// Package dberror defines the error taxonomy for the database layer.
// All errors derive from ErrDatabase so callers can match broadly with
// errors.Is, or narrowly against a specific condition.
package dberror

import (
	"net/http"

	"github.com/workdeck/workdeck/internal/common/apperrors"
)

var (
	ErrDatabase apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)

	// ErrConnection covers failures to reach or authenticate to a
	// database. Retrying is the caller's decision, not this layer's.
	ErrConnection apperrors.Error = ErrDatabase.New("connection failed").SetStatusCode(http.StatusServiceUnavailable)

	// ErrNotInitialized is returned when a handle is requested before
	// initialization or after shutdown. This is an ordering bug in the
	// caller, not a transient condition.
	ErrNotInitialized apperrors.Error = ErrDatabase.New("database not initialized").SetStatusCode(http.StatusInternalServerError)

	// ErrProvisioning covers unrecoverable failures while creating a
	// tenant database. The message always identifies the namespace and
	// the failing step.
	ErrProvisioning apperrors.Error = ErrDatabase.New("provisioning failed").SetStatusCode(http.StatusInternalServerError)

	// ErrScriptExecution covers non-idempotent statement failures
	// during schema or seed loading.
	ErrScriptExecution apperrors.Error = ErrDatabase.New("script execution failed").SetStatusCode(http.StatusInternalServerError)

	ErrAlreadyExists    apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound         apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput     apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrInvalidNamespace apperrors.Error = ErrInvalidInput.New("invalid namespace").SetStatusCode(http.StatusBadRequest)
	ErrMissingProjectID apperrors.Error = ErrInvalidInput.New("missing project ID").SetStatusCode(http.StatusBadRequest)
)
