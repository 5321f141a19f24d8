package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carevoice/accessd/pkg/httputil"
	"github.com/carevoice/accessd/pkg/rbac"
)

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.evaluator.Catalog().List())
}

// createRole handles POST /api/v1/tenants/{tenant}/roles
func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	tenant := mux.Vars(r)["tenant"]

	var role rbac.Role
	if !httputil.ParseJSONOrError(w, r, &role) {
		return
	}
	if !httputil.RequireNonEmpty(w, role.Name, "name") {
		return
	}
	role.TenantID = tenant

	created, err := s.evaluator.CreateRole(r.Context(), who, &role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// listRoles handles GET /api/v1/tenants/{tenant}/roles
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.evaluator.RolesForTenant(r.Context(), mux.Vars(r)["tenant"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// getRole handles GET /api/v1/tenants/{tenant}/roles/{role}
func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roles, err := s.evaluator.RolesForTenant(r.Context(), vars["tenant"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for i := range roles {
		if roles[i].ID == vars["role"] {
			httputil.WriteSuccess(w, roles[i])
			return
		}
	}
	httputil.WriteNotFoundError(w, "role not found")
}

// updateRole handles PATCH /api/v1/tenants/{tenant}/roles/{role}
func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	var upd rbac.RoleUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}
	role, err := s.evaluator.UpdateRole(r.Context(), who, mux.Vars(r)["role"], upd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// deleteRole handles DELETE /api/v1/tenants/{tenant}/roles/{role}
func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := s.evaluator.DeleteRole(r.Context(), who, mux.Vars(r)["role"]); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type assignRoleRequest struct {
	RoleID    string     `json:"role_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// assignRole handles POST /api/v1/tenants/{tenant}/users/{user}/roles
func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RoleID, "role_id") {
		return
	}

	grant, err := s.evaluator.AssignRole(r.Context(), who, vars["user"], req.RoleID, vars["tenant"], req.ExpiresAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, grant)
}

// listUserRoles handles GET /api/v1/tenants/{tenant}/users/{user}/roles
func (s *Server) listUserRoles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	grants, err := s.evaluator.UserRoles(r.Context(), vars["user"], vars["tenant"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, grants)
}

// revokeRole handles DELETE /api/v1/tenants/{tenant}/users/{user}/roles/{role}
func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	err := s.evaluator.RevokeRole(r.Context(), who, vars["user"], vars["role"], vars["tenant"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// setElevation handles PUT /api/v1/tenants/{tenant}/users/{user}/roles/{role}/elevation
func (s *Server) setElevation(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	var elev rbac.TemporaryElevation
	if !httputil.ParseJSONOrError(w, r, &elev) {
		return
	}
	err := s.evaluator.SetElevation(r.Context(), who, vars["user"], vars["role"], vars["tenant"], &elev)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "elevated"})
}
