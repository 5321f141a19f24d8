// Package rbac implements role-based access control for the carevoice clinic
// platform.
//
// # Overview
//
// The package resolves which operations a user may perform within a tenant by
// combining role inheritance, wildcard permission matching, per-role
// constraints (time windows, IP and device restrictions, session limits),
// tenant-scoped security policies, and a short-TTL decision cache.
//
// # Architecture
//
// The evaluator composes six components:
//
//  1. Catalog: the static registry of known permission identifiers
//  2. RoleStore / GrantStore: role definitions and user-role assignments
//  3. Resolver: effective permission sets across role inheritance
//  4. Constraint checking: time/IP/device restrictions, evaluated per grant
//  5. PolicyEvaluator: the tenant security policy override layer (pkg/policy)
//  6. DecisionCache and SessionTracker
//
// # Permissions
//
// Permission identifiers are lowercase "resource:action" strings, for example
// "patients:view" or "sessions:manage". Role definitions may use shell-glob
// patterns ('*' and '?') that expand against the catalog:
//
//	role := &rbac.Role{
//		TenantID:    "clinic-a",
//		Name:        "Billing",
//		Permissions: []string{"billing:*", "reports:view"},
//	}
//
// The literal permission "*" grants everything without expansion.
//
// # Decision flow
//
// HasPermission consults the cache, then collects the user's active grants,
// matches each grant's effective permission set and checks its constraints,
// and finally runs the tenant's security policies, whose allow/deny effects
// override the role-layer outcome:
//
//	eval := rbac.NewEvaluator(store, store, rbac.DefaultCatalog(),
//		rbac.WithPolicyEngine(engine),
//		rbac.WithAuditRing(ring),
//	)
//	d, err := eval.HasPermission(ctx, "user-1", "sessions:manage", "clinic-a", &rbac.CheckContext{
//		IPAddress: "10.0.4.7",
//	})
//
// Absence of any satisfying grant is a denial, not an error; only a
// malformed or unregistered permission string returns ErrInvalidPermission.
//
// # Concurrency
//
// Decisions are safe for concurrent invocation and deduplicated with
// singleflight. Mutations are serialized per tenant so cache invalidation
// cannot interleave with a concurrent role edit.
package rbac
