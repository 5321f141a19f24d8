package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRegisterImmutable(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)

	require.NoError(t, c.Register(Permission{ID: "notes:view"}))
	err = c.Register(Permission{ID: "notes:view"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	p, ok := c.Lookup("notes:view")
	assert.True(t, ok)
	assert.Equal(t, "notes:view", p.ID)
}

func TestCatalogRegisterDerivesID(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)

	require.NoError(t, c.Register(Permission{Resource: "notes", Action: "edit"}))
	_, ok := c.Lookup("notes:edit")
	assert.True(t, ok)
}

func TestCatalogRejectsMalformedID(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)

	err = c.Register(Permission{ID: "Bad:ID"})
	assert.ErrorIs(t, err, ErrInvalidPermission)
}

func TestCatalogListSorted(t *testing.T) {
	c := DefaultCatalog()
	list := c.List()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestValidatePermissionsReportsAllOffenders(t *testing.T) {
	c := DefaultCatalog()

	err := c.ValidatePermissions([]string{
		"patients:view",     // exact catalog entry
		"billing:*",         // pattern with matches
		"*",                 // literal wildcard
		"unknown:thing",     // well-formed but unregistered
		"nothing-matches:*", // pattern with no matches
		"Bad Syntax",        // malformed
	})
	require.Error(t, err)

	var ipe *InvalidPermissionError
	require.True(t, errors.As(err, &ipe))
	assert.ElementsMatch(t,
		[]string{"unknown:thing", "nothing-matches:*", "Bad Syntax"},
		ipe.Permissions)
	assert.ErrorIs(t, err, ErrInvalidPermission)
}

func TestValidatePermissionsAccepts(t *testing.T) {
	c := DefaultCatalog()
	assert.NoError(t, c.ValidatePermissions(nil))
	assert.NoError(t, c.ValidatePermissions([]string{"users:*", "access:view-log"}))
}
