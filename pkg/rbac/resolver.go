package rbac

import (
	"context"
	"fmt"
	"sort"
)

// Resolver computes effective permission sets across role inheritance.
type Resolver struct {
	roles RoleStore
}

// NewResolver creates a resolver over the given role store.
func NewResolver(roles RoleStore) *Resolver {
	return &Resolver{roles: roles}
}

// EffectivePermissions returns the role's own permissions plus those of every
// directly or transitively inherited role, deduplicated and sorted. A cycle
// in the inheritance graph is reported as ErrConfiguration rather than
// recursing indefinitely.
func (r *Resolver) EffectivePermissions(ctx context.Context, roleID string) ([]string, error) {
	set := make(map[string]struct{})
	visiting := make(map[string]bool)
	if err := r.collect(ctx, roleID, set, visiting); err != nil {
		return nil, err
	}
	if _, ok := set[Wildcard]; ok {
		// The literal wildcard grants everything; no expansion needed.
		return []string{Wildcard}, nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) collect(ctx context.Context, roleID string, set map[string]struct{}, visiting map[string]bool) error {
	if visiting[roleID] {
		return fmt.Errorf("%w: cyclic role inheritance through %q", ErrConfiguration, roleID)
	}
	visiting[roleID] = true
	defer delete(visiting, roleID)

	role, err := r.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, p := range role.Permissions {
		set[p] = struct{}{}
	}
	for _, parent := range role.Inherits {
		if err := r.collect(ctx, parent, set, visiting); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether any entry of the effective permission set covers
// the requested identifier, and returns the matching entry.
func Matches(effective []string, requested string) (string, bool) {
	for _, p := range effective {
		if MatchPermission(p, requested) {
			return p, true
		}
	}
	return "", false
}

// CheckInheritance validates that the role's inheritance graph, as it would
// exist after saving the role, is acyclic and references only existing roles.
// Called at role-save time so misconfiguration never reaches evaluation.
func (r *Resolver) CheckInheritance(ctx context.Context, role *Role) error {
	visiting := map[string]bool{role.ID: true}
	for _, parent := range role.Inherits {
		if err := r.walk(ctx, parent, visiting); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) walk(ctx context.Context, roleID string, visiting map[string]bool) error {
	if visiting[roleID] {
		return fmt.Errorf("%w: cyclic role inheritance through %q", ErrConfiguration, roleID)
	}
	role, err := r.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	visiting[roleID] = true
	defer delete(visiting, roleID)
	for _, parent := range role.Inherits {
		if err := r.walk(ctx, parent, visiting); err != nil {
			return err
		}
	}
	return nil
}
