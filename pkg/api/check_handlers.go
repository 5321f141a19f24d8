package api

import (
	"net/http"

	"github.com/carevoice/accessd/pkg/httputil"
	"github.com/carevoice/accessd/pkg/rbac"
)

type checkRequest struct {
	UserID     string             `json:"user_id"`
	Permission string             `json:"permission"`
	TenantID   string             `json:"tenant_id"`
	Context    *rbac.CheckContext `json:"context,omitempty"`
}

type checkBatchRequest struct {
	UserID      string             `json:"user_id"`
	Permissions []string           `json:"permissions"`
	TenantID    string             `json:"tenant_id"`
	Context     *rbac.CheckContext `json:"context,omitempty"`
}

// checkPermission handles POST /api/v1/check
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, req.Permission, "permission") ||
		!httputil.RequireNonEmpty(w, req.TenantID, "tenant_id") {
		return
	}

	decision, err := s.evaluator.HasPermission(r.Context(), req.UserID, req.Permission, req.TenantID, req.Context)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, decision)
}

// checkPermissionBatch handles POST /api/v1/check/batch
func (s *Server) checkPermissionBatch(w http.ResponseWriter, r *http.Request) {
	var req checkBatchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, req.TenantID, "tenant_id") {
		return
	}
	if len(req.Permissions) == 0 {
		httputil.WriteBadRequest(w, "permissions is required")
		return
	}

	results, err := s.evaluator.CheckPermissions(r.Context(), req.UserID, req.Permissions, req.TenantID, req.Context)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"results": results})
}
