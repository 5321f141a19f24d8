package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRoles(t *testing.T, store *MemoryStore, roles ...Role) {
	t.Helper()
	for _, role := range roles {
		r := role
		if r.TenantID == "" {
			r.TenantID = "clinic-a"
		}
		if r.Kind == "" {
			r.Kind = RoleKindCustom
		}
		require.NoError(t, store.CreateRole(context.Background(), &r))
	}
}

func TestEffectivePermissionsUnionsInheritance(t *testing.T) {
	store := NewMemoryStore()
	seedRoles(t, store,
		Role{ID: "base", Permissions: []string{"patients:view", "sessions:view"}},
		Role{ID: "mid", Permissions: []string{"sessions:manage"}, Inherits: []string{"base"}},
		Role{ID: "top", Permissions: []string{"boards:edit"}, Inherits: []string{"mid"}},
	)

	perms, err := NewResolver(store).EffectivePermissions(context.Background(), "top")
	require.NoError(t, err)
	assert.Equal(t, []string{"boards:edit", "patients:view", "sessions:manage", "sessions:view"}, perms)
}

func TestEffectivePermissionsDiamond(t *testing.T) {
	store := NewMemoryStore()
	seedRoles(t, store,
		Role{ID: "base", Permissions: []string{"patients:view"}},
		Role{ID: "left", Permissions: []string{"boards:view"}, Inherits: []string{"base"}},
		Role{ID: "right", Permissions: []string{"reports:view"}, Inherits: []string{"base"}},
		Role{ID: "top", Inherits: []string{"left", "right"}},
	)

	perms, err := NewResolver(store).EffectivePermissions(context.Background(), "top")
	require.NoError(t, err)
	assert.Equal(t, []string{"boards:view", "patients:view", "reports:view"}, perms)
}

func TestEffectivePermissionsWildcardShortCircuits(t *testing.T) {
	store := NewMemoryStore()
	seedRoles(t, store,
		Role{ID: "base", Permissions: []string{"patients:view"}},
		Role{ID: "admin", Permissions: []string{"*", "users:edit"}, Inherits: []string{"base"}},
	)

	perms, err := NewResolver(store).EffectivePermissions(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{Wildcard}, perms)
}

func TestEffectivePermissionsCycleIsConfigurationError(t *testing.T) {
	// A cycle written directly to the store, bypassing save-time checks.
	store := NewMemoryStore()
	seedRoles(t, store,
		Role{ID: "a", Inherits: []string{"b"}},
		Role{ID: "b", Inherits: []string{"a"}},
	)

	_, err := NewResolver(store).EffectivePermissions(context.Background(), "a")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestEffectivePermissionsMissingParent(t *testing.T) {
	store := NewMemoryStore()
	seedRoles(t, store, Role{ID: "orphan", Inherits: []string{"gone"}})

	_, err := NewResolver(store).EffectivePermissions(context.Background(), "orphan")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckInheritanceRejectsCycle(t *testing.T) {
	store := NewMemoryStore()
	seedRoles(t, store,
		Role{ID: "parent", Inherits: []string{"grandparent"}},
		Role{ID: "grandparent"},
	)
	r := NewResolver(store)

	// Making grandparent inherit from parent would close the loop.
	err := r.CheckInheritance(context.Background(), &Role{ID: "grandparent", Inherits: []string{"parent"}})
	assert.ErrorIs(t, err, ErrConfiguration)

	// Self-inheritance is the degenerate cycle.
	err = r.CheckInheritance(context.Background(), &Role{ID: "selfish", Inherits: []string{"selfish"}})
	assert.ErrorIs(t, err, ErrConfiguration)

	// A clean chain passes.
	err = r.CheckInheritance(context.Background(), &Role{ID: "new", Inherits: []string{"parent"}})
	assert.NoError(t, err)
}

func TestMatches(t *testing.T) {
	entry, ok := Matches([]string{"patients:view", "users:*"}, "users:edit")
	assert.True(t, ok)
	assert.Equal(t, "users:*", entry)

	_, ok = Matches([]string{"patients:view"}, "billing:view")
	assert.False(t, ok)

	entry, ok = Matches([]string{Wildcard}, "anything:here")
	assert.True(t, ok)
	assert.Equal(t, Wildcard, entry)
}
