package rbac

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is the static registry of known permission identifiers. Entries are
// immutable once registered. It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	perms map[string]Permission
}

// NewCatalog creates a catalog pre-seeded with the given permissions.
func NewCatalog(perms ...Permission) (*Catalog, error) {
	c := &Catalog{perms: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		if err := c.Register(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a permission to the catalog. Re-registering an existing
// identifier is an error; entries are immutable.
func (c *Catalog) Register(p Permission) error {
	if p.ID == "" && p.Resource != "" && p.Action != "" {
		p.ID = p.Resource + ":" + p.Action
	}
	if !ValidPermissionID(p.ID) {
		return invalidPermission(p.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.perms[p.ID]; ok {
		return fmt.Errorf("%w: permission %q already registered", ErrConfiguration, p.ID)
	}
	c.perms[p.ID] = p
	return nil
}

// Lookup returns the permission registered under id.
func (c *Catalog) Lookup(id string) (Permission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.perms[id]
	return p, ok
}

// List returns all registered permissions sorted by identifier.
func (c *Catalog) List() []Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Permission, 0, len(c.perms))
	for _, p := range c.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidatePermissions checks every string in perms against the catalog. A
// string is valid when it is the literal wildcard, an exact catalog entry, or
// a pattern that expands to at least one catalog entry. The returned error is
// an *InvalidPermissionError listing every offender.
func (c *Catalog) ValidatePermissions(perms []string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var bad []string
	for _, s := range perms {
		if !c.validLocked(s) {
			bad = append(bad, s)
		}
	}
	if len(bad) > 0 {
		return invalidPermission(bad...)
	}
	return nil
}

func (c *Catalog) validLocked(s string) bool {
	if s == Wildcard {
		return true
	}
	if !ValidPermissionPattern(s) {
		return false
	}
	if !HasWildcard(s) {
		_, ok := c.perms[s]
		return ok
	}
	for id := range c.perms {
		if globMatch(s, id) {
			return true
		}
	}
	return false
}

// DefaultCatalog returns the catalog of permissions the clinic platform ships
// with. Tenant deployments extend it from the seed file.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultPermissions()...)
	if err != nil {
		// Static data; a failure here is a programming error.
		panic(err)
	}
	return c
}

func defaultPermissions() []Permission {
	mk := func(resource, action string, scope PermissionScope, category string) Permission {
		return Permission{
			ID:       resource + ":" + action,
			Name:     resource + " " + action,
			Resource: resource,
			Action:   action,
			Scope:    scope,
			Category: category,
			IsSystem: true,
		}
	}
	return []Permission{
		mk("patients", "view", ScopeTenant, "clinical"),
		mk("patients", "edit", ScopeTenant, "clinical"),
		mk("patients", "assigned", ScopeUser, "clinical"),
		mk("sessions", "view", ScopeTenant, "clinical"),
		mk("sessions", "manage", ScopeTenant, "clinical"),
		mk("boards", "view", ScopeTenant, "aac"),
		mk("boards", "edit", ScopeTenant, "aac"),
		mk("devices", "view", ScopeTenant, "aac"),
		mk("devices", "manage", ScopeTenant, "aac"),
		mk("billing", "view", ScopeTenant, "billing"),
		mk("billing", "submit", ScopeTenant, "billing"),
		mk("reports", "view", ScopeTenant, "reporting"),
		mk("users", "view", ScopeTenant, "admin"),
		mk("users", "edit", ScopeTenant, "admin"),
		mk("access", "manage-roles", ScopeTenant, "admin"),
		mk("access", "assign-roles", ScopeTenant, "admin"),
		mk("access", "manage-policies", ScopeTenant, "admin"),
		mk("access", "view-log", ScopeTenant, "admin"),
	}
}
