package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carevoice/accessd/pkg/audit"
	"github.com/carevoice/accessd/pkg/httputil"
)

type sessionRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

type tenantSwitchRequest struct {
	UserID     string `json:"user_id"`
	FromTenant string `json:"from_tenant"`
	ToTenant   string `json:"to_tenant"`
}

// startSession handles POST /api/v1/sessions
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, req.TenantID, "tenant_id") {
		return
	}

	session, err := s.evaluator.OnSessionStart(r.Context(), req.UserID, req.TenantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, session)
}

// listSessions handles GET /api/v1/sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	tenant := httputil.ParseQueryString(r, "tenant_id", "")
	httputil.WriteSuccess(w, s.evaluator.Sessions().Active(tenant))
}

// getSession handles GET /api/v1/sessions/{session}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.evaluator.Sessions().Get(mux.Vars(r)["session"])
	if !ok {
		httputil.WriteNotFoundError(w, "session not found")
		return
	}
	httputil.WriteSuccess(w, session)
}

// switchTenant handles POST /api/v1/sessions/switch
func (s *Server) switchTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantSwitchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") ||
		!httputil.RequireNonEmpty(w, req.ToTenant, "to_tenant") {
		return
	}

	session, err := s.evaluator.OnTenantSwitch(r.Context(), req.UserID, req.FromTenant, req.ToTenant)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

// endSessions handles POST /api/v1/sessions/end
func (s *Server) endSessions(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	s.evaluator.OnSessionEnd(req.UserID, req.TenantID)
	httputil.WriteNoContent(w)
}

// searchAccessLog handles GET /api/v1/access-log
func (s *Server) searchAccessLog(w http.ResponseWriter, r *http.Request) {
	who, ok := requireActor(w, r)
	if !ok {
		return
	}
	tenant := httputil.ParseQueryString(r, "tenant_id", "")

	// Reading the log is itself a guarded operation.
	d, err := s.evaluator.HasPermission(r.Context(), who, "access:view-log", tenant, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !d.Allowed {
		httputil.WriteForbidden(w, "access:view-log required")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := audit.SearchFilter{
		UserID:     httputil.ParseQueryString(r, "user_id", ""),
		TenantID:   tenant,
		EventType:  audit.EventType(httputil.ParseQueryString(r, "event", "")),
		DeniedOnly: httputil.ParseQueryString(r, "denied", "") == "true",
	}
	if v := httputil.ParseQueryString(r, "since", ""); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid since timestamp")
			return
		}
		filter.Since = &ts
	}
	if v := httputil.ParseQueryString(r, "until", ""); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid until timestamp")
			return
		}
		filter.Until = &ts
	}

	httputil.WriteSuccess(w, s.evaluator.SearchAccessLog(filter, limit))
}
