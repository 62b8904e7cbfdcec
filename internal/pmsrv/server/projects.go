package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/httpx"
	"github.com/workdeck/workdeck/internal/common/uuid"
	"github.com/workdeck/workdeck/internal/pmsrv/db/models"
)

var reqValidator = validator.New(validator.WithRequiredStructEnabled())

// createProjectReq is the request body for project creation. The
// namespace is never client-supplied; it is derived from the name.
type createProjectReq struct {
	Name    string `json:"name" validate:"required,min=1,max=128"`
	OwnerID string `json:"ownerId" validate:"required,uuid"`
}

// projectRsp is the wire form of a project.
type projectRsp struct {
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toProjectRsp(p *models.Project) *projectRsp {
	return &projectRsp{
		ProjectID: p.ProjectID.String(),
		Name:      p.Name,
		Namespace: p.Namespace,
		OwnerID:   p.OwnerID.String(),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// createProject registers a project, derives its namespace, and
// provisions its tenant database. The project record and the database
// are created in that order; if provisioning fails the record is
// removed so a retry starts clean.
func (s *PmServer) createProject(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	req := &createProjectReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := reqValidator.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest("invalid project request: " + err.Error())
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return nil, httpx.ErrInvalidRequest("invalid owner id")
	}

	namespace, apperr := s.dbm.Metadata().DeriveNamespace(ctx, req.Name)
	if apperr != nil {
		return nil, apperr
	}

	project := &models.Project{
		ProjectID: uuid.New(),
		Name:      req.Name,
		Namespace: namespace,
		OwnerID:   ownerID,
	}
	if apperr := s.dbm.Metadata().CreateProject(ctx, project); apperr != nil {
		return nil, apperr
	}

	if apperr := s.dbm.ProvisionProject(ctx, namespace); apperr != nil {
		log.Ctx(ctx).Error().Err(apperr).
			Str("namespace", namespace).
			Msg("tenant database provisioning failed, removing project record")
		if _, delErr := s.dbm.Metadata().DeleteProject(ctx, project.ProjectID); delErr != nil {
			log.Ctx(ctx).Error().Err(delErr).Msg("failed to remove project record after provisioning failure")
		}
		return nil, apperr
	}

	created, apperr := s.dbm.Metadata().GetProject(ctx, project.ProjectID)
	if apperr != nil {
		return nil, apperr
	}

	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/projects/" + project.ProjectID.String(),
		Response:   toProjectRsp(created),
	}, nil
}

func (s *PmServer) getProject(r *http.Request) (*httpx.Response, error) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		return nil, httpx.ErrInvalidRequest("invalid project id")
	}

	project, apperr := s.dbm.Metadata().GetProject(r.Context(), projectID)
	if apperr != nil {
		return nil, apperr
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   toProjectRsp(project),
	}, nil
}

// deleteProject removes the project record and drops its tenant
// database. The record goes first so no new requests can route to the
// namespace while the database is being dropped.
func (s *PmServer) deleteProject(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		return nil, httpx.ErrInvalidRequest("invalid project id")
	}

	namespace, apperr := s.dbm.Metadata().DeleteProject(ctx, projectID)
	if apperr != nil {
		return nil, apperr
	}

	if namespace != "" {
		if apperr := s.dbm.DeprovisionProject(ctx, namespace); apperr != nil {
			// The record is gone; the leftover database needs an
			// operator, not a failed response.
			log.Ctx(ctx).Error().Err(apperr).
				Str("namespace", namespace).
				Msg("project deleted but tenant database drop failed")
		}
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]string{"status": "deleted"},
	}, nil
}

func (s *PmServer) listProjects(r *http.Request) (*httpx.Response, error) {
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		return nil, httpx.ErrInvalidRequest("missing or invalid userId query parameter")
	}

	projects, apperr := s.dbm.Metadata().ListProjects(r.Context(), userID)
	if apperr != nil {
		return nil, apperr
	}

	rsp := make([]*projectRsp, 0, len(projects))
	for _, p := range projects {
		rsp = append(rsp, toProjectRsp(p))
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   rsp,
	}, nil
}
