package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carevoice/accessd/pkg/httputil"
	"github.com/carevoice/accessd/pkg/policy"
)

// createPolicy handles POST /api/v1/tenants/{tenant}/policies
func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	var p policy.Policy
	if !httputil.ParseJSONOrError(w, r, &p) {
		return
	}
	if !httputil.RequireNonEmpty(w, p.Name, "name") {
		return
	}
	p.TenantID = mux.Vars(r)["tenant"]

	created, err := s.evaluator.CreatePolicy(r.Context(), who, &p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// listPolicies handles GET /api/v1/tenants/{tenant}/policies
func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := s.evaluator.PoliciesForTenant(r.Context(), mux.Vars(r)["tenant"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, policies)
}

// getPolicy handles GET /api/v1/tenants/{tenant}/policies/{policy}
func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := s.evaluator.GetPolicy(r.Context(), vars["tenant"], vars["policy"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// updatePolicy handles PUT /api/v1/tenants/{tenant}/policies/{policy}
func (s *Server) updatePolicy(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	var p policy.Policy
	if !httputil.ParseJSONOrError(w, r, &p) {
		return
	}
	p.ID = vars["policy"]
	p.TenantID = vars["tenant"]

	updated, err := s.evaluator.UpdatePolicy(r.Context(), who, &p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

// deletePolicy handles DELETE /api/v1/tenants/{tenant}/policies/{policy}
func (s *Server) deletePolicy(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := s.evaluator.DeletePolicy(r.Context(), who, vars["tenant"], vars["policy"]); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
