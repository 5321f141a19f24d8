package rbac

import (
	"context"
)

// RoleStore persists role definitions. Implementations must be safe for
// concurrent use; the evaluator serializes mutations per tenant above this
// layer.
type RoleStore interface {
	// CreateRole stores a new role definition.
	CreateRole(ctx context.Context, role *Role) error

	// GetRole returns the role with the given id, or ErrNotFound.
	GetRole(ctx context.Context, roleID string) (*Role, error)

	// UpdateRole replaces the stored definition of the role.
	UpdateRole(ctx context.Context, role *Role) error

	// DeleteRole removes the role definition.
	DeleteRole(ctx context.Context, roleID string) error

	// ListRoles returns the tenant's custom roles plus all system roles.
	ListRoles(ctx context.Context, tenantID string) ([]Role, error)
}

// GrantStore persists user-role assignments.
type GrantStore interface {
	// CreateGrant stores a new grant.
	CreateGrant(ctx context.Context, grant *Grant) error

	// UpdateGrant replaces the stored grant (used to deactivate on revoke or
	// terminal expiry).
	UpdateGrant(ctx context.Context, grant *Grant) error

	// UserGrants returns the user's grants. An empty tenantID matches all
	// tenants. Inactive grants are included; callers filter.
	UserGrants(ctx context.Context, userID, tenantID string) ([]Grant, error)

	// ActiveGrant returns the user's active grant of the role in the tenant,
	// or ErrNotFound.
	ActiveGrant(ctx context.Context, userID, roleID, tenantID string) (*Grant, error)

	// GrantsForRole returns every active grant referencing the role, across
	// tenants. This is the reverse index used for cache invalidation on role
	// definition changes.
	GrantsForRole(ctx context.Context, roleID string) ([]Grant, error)
}
