// Package audit records access-control decisions and administrative actions.
// Decision records are retained in a bounded in-memory ring; external sinks
// receive everything fire-and-forget.
package audit

import (
	"time"
)

// EventType categorizes an audit event
type EventType string

const (
	EventPermissionCheck EventType = "authz.permission_check"
	EventAccessDenied    EventType = "authz.access_denied"
	EventRoleCreate      EventType = "authz.role_create"
	EventRoleUpdate      EventType = "authz.role_update"
	EventRoleDelete      EventType = "authz.role_delete"
	EventRoleAssign      EventType = "authz.role_assign"
	EventRoleRevoke      EventType = "authz.role_revoke"
	EventPolicyChange    EventType = "authz.policy_change"
	EventSessionStart    EventType = "authz.session_start"
	EventSessionEnd      EventType = "authz.session_end"
)

// AccessRecord is one evaluated decision or administrative action. Records
// are immutable once written.
type AccessRecord struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	UserID     string         `json:"user_id"`
	TenantID   string         `json:"tenant_id"`
	Permission string         `json:"permission,omitempty"`
	Allowed    bool           `json:"allowed"`
	Reason     string         `json:"reason,omitempty"`
	Actor      string         `json:"actor,omitempty"` // who performed an admin action
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchFilter narrows AccessRecord queries over the ring.
type SearchFilter struct {
	UserID    string
	TenantID  string
	EventType EventType
	// DeniedOnly keeps only records with Allowed false.
	DeniedOnly bool
	Since      *time.Time
	Until      *time.Time
}

func (f SearchFilter) matches(r *AccessRecord) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.TenantID != "" && r.TenantID != f.TenantID {
		return false
	}
	if f.EventType != "" && r.EventType != f.EventType {
		return false
	}
	if f.DeniedOnly && r.Allowed {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.Timestamp.After(*f.Until) {
		return false
	}
	return true
}
