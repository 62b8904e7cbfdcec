// Package server provides the Workdeck project-management HTTP server.
// It exposes project lifecycle endpoints backed by the database layer:
// creating a project provisions its tenant database, deleting a project
// drops it. System endpoints report version, readiness, and pool
// statistics.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/httpx"
	"github.com/workdeck/workdeck/internal/common/logtrace"
	"github.com/workdeck/workdeck/internal/common/middleware"
	"github.com/workdeck/workdeck/internal/pmsrv/config"
	"github.com/workdeck/workdeck/internal/pmsrv/db"
	"github.com/workdeck/workdeck/internal/pmsrv/pmcommon"
)

// requestTimeout bounds request handling. Project creation includes
// tenant database provisioning, so the bound is generous.
const requestTimeout = 60 * time.Second

// PmServer is the project-management HTTP server. It owns the router
// and holds the database manager all handlers work through.
type PmServer struct {
	Router *chi.Mux
	dbm    *db.Manager
}

// CreateNewServer creates a PmServer over the given database manager.
func CreateNewServer(dbm *db.Manager) (*PmServer, error) {
	if dbm == nil {
		return nil, fmt.Errorf("database manager is required")
	}
	s := &PmServer{
		Router: chi.NewRouter(),
		dbm:    dbm,
	}
	return s, nil
}

// MountHandlers sets up all HTTP routes and middleware for the server.
func (s *PmServer) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	if config.Config().HandleCORS {
		s.Router.Use(s.HandleCORS)
	}
	s.Router.Use(limitRequestBody)
	s.Router.Use(middleware.SetTimeout(requestTimeout))
	s.mountResourceHandlers(s.Router)
	if logtrace.IsTraceEnabled() {
		fmt.Println("Routes in project-management router")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("Error walking router")
		}
	}
}

func (s *PmServer) mountResourceHandlers(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Method(http.MethodPost, "/", httpx.WrapHttpRsp(s.createProject))
		r.Method(http.MethodGet, "/", httpx.WrapHttpRsp(s.listProjects))
		r.Method(http.MethodGet, "/{projectID}", httpx.WrapHttpRsp(s.getProject))
		r.Method(http.MethodDelete, "/{projectID}", httpx.WrapHttpRsp(s.deleteProject))
	})
	r.Get("/version", s.getVersion)
	r.Get("/ready", s.getReadiness)
	r.Get("/stats", s.getStats)
}

// limitRequestBody caps request bodies at the configured maximum.
func limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if max := config.Config().MaxRequestBodySize; max > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

// GetVersionRsp represents the response for version information.
type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *PmServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Workdeck Project Server: " + pmcommon.ServerVersion,
		ApiVersion:    pmcommon.ApiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

func (s *PmServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")

	if err := s.dbm.Ping(r.Context()); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("global database unreachable during readiness check")
		httpx.SendJsonRsp(r.Context(), w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}

	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (s *PmServer) getStats(w http.ResponseWriter, r *http.Request) {
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, s.dbm.Stats())
}

// HandleCORS provides CORS middleware for cross-origin requests.
func (s *PmServer) HandleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{"Link", "Location", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
