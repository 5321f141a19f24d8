package rbac

import (
	"time"
)

// TenantSystem is the reserved tenant that owns system-defined roles and
// permissions. Roles in this tenant are visible to every tenant and cannot be
// mutated through the API surface.
const TenantSystem = "system"

// ActorSystem identifies internal callers (seeding, migrations) that bypass
// the meta-permission check on administrative operations.
const ActorSystem = "system"

// PermissionScope represents the scope at which a permission applies
type PermissionScope string

const (
	ScopeGlobal   PermissionScope = "global"
	ScopeTenant   PermissionScope = "tenant"
	ScopeUser     PermissionScope = "user"
	ScopeResource PermissionScope = "resource"
)

// Permission represents a registered permission in the catalog
type Permission struct {
	ID          string          `json:"id"` // "resource:action"
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Resource    string          `json:"resource"`
	Action      string          `json:"action"`
	Scope       PermissionScope `json:"scope"`
	Category    string          `json:"category,omitempty"`
	IsSystem    bool            `json:"is_system"`
}

// RoleKind distinguishes system-defined roles from tenant-custom ones
type RoleKind string

const (
	RoleKindSystem RoleKind = "system"
	RoleKindCustom RoleKind = "custom"
)

// TimeWindow restricts a grant to certain days and hours. Start and End are
// inclusive "HH:MM" values interpreted in Timezone (UTC when empty).
type TimeWindow struct {
	Days     []time.Weekday `json:"days"`
	Start    string         `json:"start"`
	End      string         `json:"end"`
	Timezone string         `json:"timezone,omitempty"`
}

// RoleConstraints narrows when and where a role's permissions apply. A zero
// value places no restrictions.
type RoleConstraints struct {
	TimeWindows           []TimeWindow  `json:"time_windows,omitempty"`
	AllowedIPPatterns     []string      `json:"allowed_ip_patterns,omitempty"`
	AllowedDeviceIDs      []string      `json:"allowed_device_ids,omitempty"`
	MaxConcurrentSessions int           `json:"max_concurrent_sessions,omitempty"`
	MaxSessionDuration    time.Duration `json:"max_session_duration,omitempty"`
	RequireMFA            bool          `json:"require_mfa,omitempty"`
}

// IsZero reports whether no restriction is set.
func (c RoleConstraints) IsZero() bool {
	return len(c.TimeWindows) == 0 &&
		len(c.AllowedIPPatterns) == 0 &&
		len(c.AllowedDeviceIDs) == 0 &&
		c.MaxConcurrentSessions == 0 &&
		c.MaxSessionDuration == 0 &&
		!c.RequireMFA
}

// Role represents a named, reusable bundle of permissions
type Role struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	TenantID    string           `json:"tenant_id"` // TenantSystem for system roles
	Kind        RoleKind         `json:"kind"`
	Permissions []string         `json:"permissions"` // identifiers or wildcard patterns
	Inherits    []string         `json:"inherits,omitempty"`
	Constraints *RoleConstraints `json:"constraints,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CreatedBy   string           `json:"created_by,omitempty"`
}

// IsSystem reports whether the role is system-defined and therefore immutable
// through the API surface.
func (r *Role) IsSystem() bool {
	return r.Kind == RoleKindSystem
}

// TemporaryElevation is an approved, short-lived extension of a grant's
// permission set.
type TemporaryElevation struct {
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	ApprovedBy  string    `json:"approved_by"`
}

// Grant assigns a role to a user within a tenant
type Grant struct {
	ID         string              `json:"id"`
	UserID     string              `json:"user_id"`
	RoleID     string              `json:"role_id"`
	TenantID   string              `json:"tenant_id"`
	AssignedBy string              `json:"assigned_by"`
	AssignedAt time.Time           `json:"assigned_at"`
	ExpiresAt  *time.Time          `json:"expires_at,omitempty"`
	Active     bool                `json:"active"`
	Elevation  *TemporaryElevation `json:"elevation,omitempty"`
}

// Expired reports whether the grant's expiry, if any, has passed.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// RoleUpdate carries the mutable fields of a role for UpdateRole. Nil fields
// are left unchanged.
type RoleUpdate struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Permissions []string         `json:"permissions,omitempty"`
	Inherits    []string         `json:"inherits,omitempty"`
	Constraints *RoleConstraints `json:"constraints,omitempty"`
}

// CheckContext carries request attributes consulted by constraints and
// security policies. A nil context is valid; constrained grants then fail
// closed.
type CheckContext struct {
	IPAddress string         `json:"ip_address,omitempty"`
	DeviceID  string         `json:"device_id,omitempty"`
	At        time.Time      `json:"at,omitempty"` // zero means "now"
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// ReasonCode classifies the outcome of a permission check
type ReasonCode string

const (
	ReasonGrantedByRole    ReasonCode = "granted_by_role"
	ReasonAllowedByPolicy  ReasonCode = "allowed_by_policy"
	ReasonDeniedByPolicy   ReasonCode = "denied_by_policy"
	ReasonRequiresApproval ReasonCode = "requires_approval"
	ReasonNoMatchingGrant  ReasonCode = "no_matching_grant"
	ReasonCached           ReasonCode = "cached"
)

// Decision is the result of a permission check
type Decision struct {
	Allowed      bool       `json:"allowed"`
	Reason       ReasonCode `json:"reason"`
	Message      string     `json:"message,omitempty"`
	MatchedRoles []string   `json:"matched_roles,omitempty"`
	Cached       bool       `json:"cached"`
	CheckedAt    time.Time  `json:"checked_at"`
}

// AccessSession binds a user and tenant to their resolved role set for the
// lifetime of a login.
type AccessSession struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	TenantID     string          `json:"tenant_id"`
	RoleIDs      []string        `json:"role_ids"`
	Permissions  []string        `json:"permissions"`
	Constraints  RoleConstraints `json:"constraints"`
	StartedAt    time.Time       `json:"started_at"`
	LastActivity time.Time       `json:"last_activity"`
}

// BuiltInRoles returns the system role set seeded at startup.
func BuiltInRoles() []Role {
	return []Role{
		{
			ID:          "system-org-admin",
			Name:        "Organization Admin",
			Description: "Full access to clinic administration",
			TenantID:    TenantSystem,
			Kind:        RoleKindSystem,
			Permissions: []string{"*"},
		},
		{
			ID:          "system-clinician",
			Name:        "Clinician",
			Description: "Manages assigned patients and therapy sessions",
			TenantID:    TenantSystem,
			Kind:        RoleKindSystem,
			Permissions: []string{
				"patients:assigned",
				"patients:view",
				"sessions:manage",
				"sessions:view",
				"boards:view",
				"boards:edit",
			},
		},
		{
			ID:          "system-billing-clerk",
			Name:        "Billing Clerk",
			Description: "Handles claims and billing records",
			TenantID:    TenantSystem,
			Kind:        RoleKindSystem,
			Permissions: []string{"billing:*", "patients:view", "reports:view"},
		},
		{
			ID:          "system-device-manager",
			Name:        "AAC Device Manager",
			Description: "Provisions and configures communication devices",
			TenantID:    TenantSystem,
			Kind:        RoleKindSystem,
			Permissions: []string{"devices:*", "boards:view"},
		},
		{
			ID:          "system-viewer",
			Name:        "Viewer",
			Description: "Read-only access",
			TenantID:    TenantSystem,
			Kind:        RoleKindSystem,
			Permissions: []string{"patients:view", "sessions:view", "reports:view", "boards:view"},
		},
	}
}
