// Package api exposes the access-control service over HTTP. Handlers are
// thin: identity comes from the gateway-supplied X-User-ID header, decisions
// and mutations go through the evaluator, and domain errors map onto HTTP
// status codes in one place.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/carevoice/accessd/pkg/httputil"
	"github.com/carevoice/accessd/pkg/policy"
	"github.com/carevoice/accessd/pkg/rbac"
)

// Server is the HTTP front of the evaluator.
type Server struct {
	evaluator *rbac.Evaluator
	router    *mux.Router
	log       *logrus.Entry
}

// NewServer creates the API server over an evaluator. obs may be nil.
func NewServer(evaluator *rbac.Evaluator, log *logrus.Entry, obs httputil.HTTPObserver) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		evaluator: evaluator,
		router:    mux.NewRouter(),
		log:       log,
	}
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log, obs),
		httputil.RecoveryMiddleware(log),
		httputil.MaxBytesMiddleware(1<<20),
	)
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Permission catalog
	s.router.HandleFunc("/api/v1/permissions", s.listPermissions).Methods("GET")

	// Role routes
	s.router.HandleFunc("/api/v1/tenants/{tenant}/roles", s.createRole).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/roles", s.listRoles).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/roles/{role}", s.getRole).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/roles/{role}", s.updateRole).Methods("PATCH")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/roles/{role}", s.deleteRole).Methods("DELETE")

	// Grant routes
	s.router.HandleFunc("/api/v1/tenants/{tenant}/users/{user}/roles", s.assignRole).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/users/{user}/roles", s.listUserRoles).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/users/{user}/roles/{role}", s.revokeRole).Methods("DELETE")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/users/{user}/roles/{role}/elevation", s.setElevation).Methods("PUT")

	// Policy routes
	s.router.HandleFunc("/api/v1/tenants/{tenant}/policies", s.createPolicy).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/policies", s.listPolicies).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/policies/{policy}", s.getPolicy).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/policies/{policy}", s.updatePolicy).Methods("PUT")
	s.router.HandleFunc("/api/v1/tenants/{tenant}/policies/{policy}", s.deletePolicy).Methods("DELETE")

	// Decision routes
	s.router.HandleFunc("/api/v1/check", s.checkPermission).Methods("POST")
	s.router.HandleFunc("/api/v1/check/batch", s.checkPermissionBatch).Methods("POST")

	// Session routes
	s.router.HandleFunc("/api/v1/sessions", s.startSession).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions", s.listSessions).Methods("GET")
	s.router.HandleFunc("/api/v1/sessions/{session}", s.getSession).Methods("GET")
	s.router.HandleFunc("/api/v1/sessions/switch", s.switchTenant).Methods("POST")
	s.router.HandleFunc("/api/v1/sessions/end", s.endSessions).Methods("POST")

	// Access log routes
	s.router.HandleFunc("/api/v1/access-log", s.searchAccessLog).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireActor resolves the calling user's id from the gateway-supplied
// X-User-ID header. Administrative handlers demand an identity: a request
// without the header is rejected with 401 up front, so the empty-actor
// trusted path stays reachable only for in-process callers.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	who := r.Header.Get("X-User-ID")
	if who == "" {
		httputil.WriteUnauthorized(w, "X-User-ID header required")
		return "", false
	}
	return who, true
}

// writeDomainError maps evaluator errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound) || errors.Is(err, policy.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, rbac.ErrUnauthorized):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, rbac.ErrSystemRoleImmutable):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, rbac.ErrInvalidPermission):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, rbac.ErrConfiguration):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, rbac.ErrAlreadyGranted),
		errors.Is(err, rbac.ErrNotGranted),
		errors.Is(err, rbac.ErrRoleInUse),
		errors.Is(err, rbac.ErrSessionLimit):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
