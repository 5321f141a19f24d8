// Package postgres implements the role, grant and policy store contracts on
// a SQL database. Queries use $N placeholders, which both PostgreSQL and the
// sqlite3 driver used in tests accept.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/carevoice/accessd/pkg/policy"
	"github.com/carevoice/accessd/pkg/rbac"
)

// Store persists roles, grants and policies in SQL. It implements
// rbac.RoleStore, rbac.GrantStore and policy.Store.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the DDL for the store's tables.
const Schema = `
CREATE TABLE IF NOT EXISTS access_roles (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	permissions TEXT NOT NULL DEFAULT '[]',
	inherits TEXT NOT NULL DEFAULT '[]',
	constraints TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	created_by TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS access_grants (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	role_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	assigned_by TEXT NOT NULL DEFAULT '',
	assigned_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP,
	active BOOLEAN NOT NULL,
	elevation TEXT
);

CREATE INDEX IF NOT EXISTS idx_access_grants_user ON access_grants (user_id, tenant_id);
CREATE INDEX IF NOT EXISTS idx_access_grants_role ON access_grants (role_id) WHERE active;

CREATE TABLE IF NOT EXISTS access_policies (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	rules TEXT NOT NULL DEFAULT '[]',
	mode TEXT NOT NULL,
	active BOOLEAN NOT NULL,
	position INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Migrate creates the store's tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrating access schema: %w", err)
	}
	return nil
}

// CreateRole stores a new role definition.
func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	permissions, inherits, constraints, err := encodeRole(role)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO access_roles (id, tenant_id, name, description, kind, permissions, inherits, constraints, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		role.ID, role.TenantID, role.Name, role.Description, string(role.Kind),
		permissions, inherits, constraints, role.CreatedAt, role.UpdatedAt, role.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by id.
func (s *Store) GetRole(ctx context.Context, roleID string) (*rbac.Role, error) {
	query := `
		SELECT id, tenant_id, name, description, kind, permissions, inherits, constraints, created_at, updated_at, created_by
		FROM access_roles
		WHERE id = $1
	`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %q: %w", roleID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// UpdateRole replaces the stored definition of the role.
func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role) error {
	permissions, inherits, constraints, err := encodeRole(role)
	if err != nil {
		return err
	}
	query := `
		UPDATE access_roles
		SET name = $1, description = $2, permissions = $3, inherits = $4, constraints = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := s.db.ExecContext(ctx, query,
		role.Name, role.Description, permissions, inherits, constraints, role.UpdatedAt, role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %q: %w", role.ID, rbac.ErrNotFound)
	}
	return nil
}

// DeleteRole removes the role definition.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %q: %w", roleID, rbac.ErrNotFound)
	}
	return nil
}

// ListRoles returns the tenant's custom roles plus all system roles.
func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]rbac.Role, error) {
	query := `
		SELECT id, tenant_id, name, description, kind, permissions, inherits, constraints, created_at, updated_at, created_by
		FROM access_roles
		WHERE tenant_id = $1 OR tenant_id = $2
		ORDER BY CASE WHEN tenant_id = $2 THEN 0 ELSE 1 END, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, rbac.TenantSystem)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// CreateGrant stores a new grant.
func (s *Store) CreateGrant(ctx context.Context, grant *rbac.Grant) error {
	elevation, err := encodeElevation(grant)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO access_grants (id, user_id, role_id, tenant_id, assigned_by, assigned_at, expires_at, active, elevation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		grant.ID, grant.UserID, grant.RoleID, grant.TenantID,
		grant.AssignedBy, grant.AssignedAt, grant.ExpiresAt, grant.Active, elevation,
	)
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

// UpdateGrant replaces the stored grant.
func (s *Store) UpdateGrant(ctx context.Context, grant *rbac.Grant) error {
	elevation, err := encodeElevation(grant)
	if err != nil {
		return err
	}
	query := `
		UPDATE access_grants
		SET expires_at = $1, active = $2, elevation = $3
		WHERE id = $4
	`
	res, err := s.db.ExecContext(ctx, query, grant.ExpiresAt, grant.Active, elevation, grant.ID)
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("grant %q: %w", grant.ID, rbac.ErrNotFound)
	}
	return nil
}

// UserGrants returns the user's grants, most recent first.
func (s *Store) UserGrants(ctx context.Context, userID, tenantID string) ([]rbac.Grant, error) {
	query := `
		SELECT id, user_id, role_id, tenant_id, assigned_by, assigned_at, expires_at, active, elevation
		FROM access_grants
		WHERE user_id = $1 AND ($2 = '' OR tenant_id = $2)
		ORDER BY assigned_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user grants: %w", err)
	}
	defer rows.Close()

	var grants []rbac.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, *grant)
	}
	return grants, rows.Err()
}

// ActiveGrant returns the user's active grant of the role in the tenant.
func (s *Store) ActiveGrant(ctx context.Context, userID, roleID, tenantID string) (*rbac.Grant, error) {
	query := `
		SELECT id, user_id, role_id, tenant_id, assigned_by, assigned_at, expires_at, active, elevation
		FROM access_grants
		WHERE user_id = $1 AND role_id = $2 AND tenant_id = $3 AND active
		LIMIT 1
	`
	grant, err := scanGrant(s.db.QueryRowContext(ctx, query, userID, roleID, tenantID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("grant of role %q to user %q: %w", roleID, userID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// GrantsForRole returns every active grant referencing the role.
func (s *Store) GrantsForRole(ctx context.Context, roleID string) ([]rbac.Grant, error) {
	query := `
		SELECT id, user_id, role_id, tenant_id, assigned_by, assigned_at, expires_at, active, elevation
		FROM access_grants
		WHERE role_id = $1 AND active
	`
	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grants for role: %w", err)
	}
	defer rows.Close()

	var grants []rbac.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, *grant)
	}
	return grants, rows.Err()
}

// CreatePolicy stores a new policy at the next insertion position.
func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	query := `
		INSERT INTO access_policies (id, tenant_id, name, description, rules, mode, active, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM access_policies), $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Name, p.Description, string(rules), string(p.Mode), p.Active,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy by id.
func (s *Store) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	query := `
		SELECT id, tenant_id, name, description, rules, mode, active, created_at, updated_at
		FROM access_policies
		WHERE id = $1
	`
	p, err := scanPolicy(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy %q: %w", id, policy.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return p, nil
}

// UpdatePolicy replaces the stored policy, keeping its insertion position.
func (s *Store) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	query := `
		UPDATE access_policies
		SET name = $1, description = $2, rules = $3, mode = $4, active = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := s.db.ExecContext(ctx, query,
		p.Name, p.Description, string(rules), string(p.Mode), p.Active, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("policy %q: %w", p.ID, policy.ErrNotFound)
	}
	return nil
}

// DeletePolicy removes the policy.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("policy %q: %w", id, policy.ErrNotFound)
	}
	return nil
}

// ActivePolicies returns the tenant's active policies in insertion order.
func (s *Store) ActivePolicies(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	query := `
		SELECT id, tenant_id, name, description, rules, mode, active, created_at, updated_at
		FROM access_policies
		WHERE tenant_id = $1 AND active
		ORDER BY position ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRole(sc scanner) (*rbac.Role, error) {
	var role rbac.Role
	var kind, permissions, inherits string
	var constraints sql.NullString
	err := sc.Scan(
		&role.ID, &role.TenantID, &role.Name, &role.Description, &kind,
		&permissions, &inherits, &constraints,
		&role.CreatedAt, &role.UpdatedAt, &role.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	role.Kind = rbac.RoleKind(kind)
	if err := json.Unmarshal([]byte(permissions), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if err := json.Unmarshal([]byte(inherits), &role.Inherits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inherits: %w", err)
	}
	if constraints.Valid && constraints.String != "" {
		var c rbac.RoleConstraints
		if err := json.Unmarshal([]byte(constraints.String), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal constraints: %w", err)
		}
		role.Constraints = &c
	}
	return &role, nil
}

func scanGrant(sc scanner) (*rbac.Grant, error) {
	var grant rbac.Grant
	var expiresAt sql.NullTime
	var elevation sql.NullString
	err := sc.Scan(
		&grant.ID, &grant.UserID, &grant.RoleID, &grant.TenantID,
		&grant.AssignedBy, &grant.AssignedAt, &expiresAt, &grant.Active, &elevation,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		grant.ExpiresAt = &t
	}
	if elevation.Valid && elevation.String != "" {
		var e rbac.TemporaryElevation
		if err := json.Unmarshal([]byte(elevation.String), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal elevation: %w", err)
		}
		grant.Elevation = &e
	}
	return &grant, nil
}

func scanPolicy(sc scanner) (*policy.Policy, error) {
	var p policy.Policy
	var rules, mode string
	err := sc.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Description, &rules, &mode, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Mode = policy.EnforcementMode(mode)
	if err := json.Unmarshal([]byte(rules), &p.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return &p, nil
}

func encodeRole(role *rbac.Role) (permissions, inherits string, constraints sql.NullString, err error) {
	pb, err := json.Marshal(role.Permissions)
	if err != nil {
		return "", "", sql.NullString{}, fmt.Errorf("failed to marshal permissions: %w", err)
	}
	ib, err := json.Marshal(role.Inherits)
	if err != nil {
		return "", "", sql.NullString{}, fmt.Errorf("failed to marshal inherits: %w", err)
	}
	if role.Constraints != nil {
		cb, err := json.Marshal(role.Constraints)
		if err != nil {
			return "", "", sql.NullString{}, fmt.Errorf("failed to marshal constraints: %w", err)
		}
		constraints = sql.NullString{String: string(cb), Valid: true}
	}
	return string(pb), string(ib), constraints, nil
}

func encodeElevation(grant *rbac.Grant) (sql.NullString, error) {
	if grant.Elevation == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(grant.Elevation)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal elevation: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
