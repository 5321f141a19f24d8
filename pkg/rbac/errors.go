package rbac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a role, grant or policy id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the caller lacks the meta-permission for an
	// administrative operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSystemRoleImmutable indicates an attempt to edit or delete a
	// system-defined role.
	ErrSystemRoleImmutable = errors.New("system role is immutable")

	// ErrRoleInUse indicates a role cannot be deleted while active grants
	// reference it.
	ErrRoleInUse = errors.New("role has active grants")

	// ErrAlreadyGranted indicates the user already holds an active grant of
	// the role in the tenant.
	ErrAlreadyGranted = errors.New("role already granted")

	// ErrNotGranted indicates no active grant exists to revoke.
	ErrNotGranted = errors.New("role not granted")

	// ErrConfiguration indicates an invalid role definition, such as a cyclic
	// inheritance graph or a malformed constraint. Raised at save time.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidPermission indicates a permission string is structurally
	// malformed or unknown to the catalog.
	ErrInvalidPermission = errors.New("invalid permission")

	// ErrSessionLimit indicates the merged max-concurrent-sessions bound
	// would be exceeded by a new session.
	ErrSessionLimit = errors.New("session limit reached")
)

// InvalidPermissionError reports which permission strings failed validation.
type InvalidPermissionError struct {
	Permissions []string
}

func (e *InvalidPermissionError) Error() string {
	return fmt.Sprintf("invalid permission: %s", strings.Join(e.Permissions, ", "))
}

func (e *InvalidPermissionError) Unwrap() error {
	return ErrInvalidPermission
}

func invalidPermission(perms ...string) error {
	return &InvalidPermissionError{Permissions: perms}
}
