package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory RoleStore and GrantStore. It is the default
// backend; deployments that need durability use the postgres store.
type MemoryStore struct {
	mu     sync.RWMutex
	roles  map[string]Role
	grants map[string]Grant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:  make(map[string]Role),
		grants: make(map[string]Grant),
	}
}

// CreateRole stores a new role definition.
func (s *MemoryStore) CreateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; ok {
		return fmt.Errorf("%w: role %q already exists", ErrConfiguration, role.ID)
	}
	s.roles[role.ID] = copyRole(*role)
	return nil
}

// GetRole returns the role with the given id.
func (s *MemoryStore) GetRole(ctx context.Context, roleID string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %q: %w", roleID, ErrNotFound)
	}
	r := copyRole(role)
	return &r, nil
}

// UpdateRole replaces the stored definition of the role.
func (s *MemoryStore) UpdateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return fmt.Errorf("role %q: %w", role.ID, ErrNotFound)
	}
	s.roles[role.ID] = copyRole(*role)
	return nil
}

// DeleteRole removes the role definition.
func (s *MemoryStore) DeleteRole(ctx context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("role %q: %w", roleID, ErrNotFound)
	}
	delete(s.roles, roleID)
	return nil
}

// ListRoles returns the tenant's custom roles plus all system roles, system
// roles first, then by name.
func (s *MemoryStore) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Role
	for _, r := range s.roles {
		if r.TenantID == tenantID || r.TenantID == TenantSystem {
			out = append(out, copyRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].TenantID == TenantSystem) != (out[j].TenantID == TenantSystem) {
			return out[i].TenantID == TenantSystem
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// CreateGrant stores a new grant.
func (s *MemoryStore) CreateGrant(ctx context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grant.ID]; ok {
		return fmt.Errorf("%w: grant %q already exists", ErrConfiguration, grant.ID)
	}
	s.grants[grant.ID] = copyGrant(*grant)
	return nil
}

// UpdateGrant replaces the stored grant.
func (s *MemoryStore) UpdateGrant(ctx context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grant.ID]; !ok {
		return fmt.Errorf("grant %q: %w", grant.ID, ErrNotFound)
	}
	s.grants[grant.ID] = copyGrant(*grant)
	return nil
}

// UserGrants returns the user's grants, most recent first.
func (s *MemoryStore) UserGrants(ctx context.Context, userID, tenantID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for _, g := range s.grants {
		if g.UserID != userID {
			continue
		}
		if tenantID != "" && g.TenantID != tenantID {
			continue
		}
		out = append(out, copyGrant(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

// ActiveGrant returns the user's active grant of the role in the tenant.
func (s *MemoryStore) ActiveGrant(ctx context.Context, userID, roleID, tenantID string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grants {
		if g.UserID == userID && g.RoleID == roleID && g.TenantID == tenantID && g.Active {
			out := copyGrant(g)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("grant of role %q to user %q: %w", roleID, userID, ErrNotFound)
}

// GrantsForRole returns every active grant referencing the role.
func (s *MemoryStore) GrantsForRole(ctx context.Context, roleID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for _, g := range s.grants {
		if g.RoleID == roleID && g.Active {
			out = append(out, copyGrant(g))
		}
	}
	return out, nil
}

func copyRole(r Role) Role {
	r.Permissions = append([]string(nil), r.Permissions...)
	r.Inherits = append([]string(nil), r.Inherits...)
	if r.Constraints != nil {
		c := *r.Constraints
		c.TimeWindows = append([]TimeWindow(nil), c.TimeWindows...)
		c.AllowedIPPatterns = append([]string(nil), c.AllowedIPPatterns...)
		c.AllowedDeviceIDs = append([]string(nil), c.AllowedDeviceIDs...)
		r.Constraints = &c
	}
	return r
}

func copyGrant(g Grant) Grant {
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		g.ExpiresAt = &t
	}
	if g.Elevation != nil {
		e := *g.Elevation
		e.Permissions = append([]string(nil), e.Permissions...)
		g.Elevation = &e
	}
	return g
}
