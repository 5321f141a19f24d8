package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/carevoice/accessd/pkg/audit"
	"github.com/carevoice/accessd/pkg/policy"
)

// PolicyEvaluator is the security policy layer consulted after role
// resolution. policy.Engine implements it.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, tenantID string, evalCtx map[string]any) (policy.Outcome, error)
}

// Observer receives decision-path measurements. The observability package
// provides a prometheus-backed implementation.
type Observer interface {
	ObserveDecision(allowed bool, reason ReasonCode, cached bool, elapsed time.Duration)
	ObserveCacheInvalidation(users int)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(bool, ReasonCode, bool, time.Duration) {}
func (nopObserver) ObserveCacheInvalidation(int)                          {}

// Evaluator composes the role store, permission resolution, constraint
// checking, the security policy engine, the decision cache and the session
// tracker into the single decision API.
//
// Reads are safe for concurrent use. Mutations are serialized per tenant so a
// grant racing a role edit cannot leave a cache entry computed against a
// stale intermediate state.
type Evaluator struct {
	roles       RoleStore
	grants      GrantStore
	catalog     *Catalog
	resolver    *Resolver
	policies    PolicyEvaluator
	policyStore policy.Store
	cache       DecisionCache
	sessions    *SessionTracker
	recorder    audit.Recorder
	log         *audit.Ring
	observer    Observer
	clock       Clock
	cacheTTL    time.Duration

	flight      singleflight.Group
	tenantLocks sync.Map // tenantID -> *sync.Mutex
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPolicyEngine wires the security policy layer.
func WithPolicyEngine(pe PolicyEvaluator) Option {
	return func(e *Evaluator) { e.policies = pe }
}

// WithCache replaces the default in-process decision cache.
func WithCache(c DecisionCache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithCacheTTL sets the decision memo TTL (default 5 minutes).
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Evaluator) { e.cacheTTL = ttl }
}

// WithClock injects a clock for deterministic tests.
func WithClock(c Clock) Option {
	return func(e *Evaluator) { e.clock = c }
}

// WithAuditRing wires the bounded access log. The ring also serves
// AccessLog queries.
func WithAuditRing(r *audit.Ring) Option {
	return func(e *Evaluator) {
		e.recorder = r
		e.log = r
	}
}

// WithRecorder wires an audit recorder without log readback.
func WithRecorder(r audit.Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// WithSessions wires the session tracker.
func WithSessions(t *SessionTracker) Option {
	return func(e *Evaluator) { e.sessions = t }
}

// WithObserver wires decision metrics.
func WithObserver(o Observer) Option {
	return func(e *Evaluator) { e.observer = o }
}

// NewEvaluator creates an evaluator over the given stores. By default it uses
// an in-process LRU decision cache, the system clock, no policy layer and a
// no-op audit recorder.
func NewEvaluator(roles RoleStore, grants GrantStore, catalog *Catalog, opts ...Option) *Evaluator {
	e := &Evaluator{
		roles:    roles,
		grants:   grants,
		catalog:  catalog,
		resolver: NewResolver(roles),
		recorder: audit.NopRecorder{},
		observer: nopObserver{},
		clock:    SystemClock(),
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewLRUCache(0, e.cacheTTL)
	}
	if e.sessions == nil {
		e.sessions = NewSessionTracker(DefaultSessionDuration, e.clock)
	}
	return e
}

// Sessions exposes the session tracker for host wiring (sweep scheduling,
// introspection).
func (e *Evaluator) Sessions() *SessionTracker { return e.sessions }

// Catalog exposes the permission catalog.
func (e *Evaluator) Catalog() *Catalog { return e.catalog }

func (e *Evaluator) tenantLock(tenantID string) *sync.Mutex {
	mu, _ := e.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateRole validates and stores a tenant-custom role. The actor must hold
// access:manage-roles in the role's tenant (ActorSystem bypasses).
func (e *Evaluator) CreateRole(ctx context.Context, actor string, role *Role) (*Role, error) {
	if role.TenantID == "" {
		return nil, fmt.Errorf("%w: role without tenant", ErrConfiguration)
	}
	if role.TenantID != TenantSystem && role.Kind == RoleKindSystem {
		return nil, fmt.Errorf("%w: system roles live in the %q tenant", ErrConfiguration, TenantSystem)
	}
	if err := e.authorize(ctx, actor, "access:manage-roles", role.TenantID); err != nil {
		e.auditAdmin(audit.EventRoleCreate, actor, role.TenantID, role.ID, false, err.Error())
		return nil, err
	}

	mu := e.tenantLock(role.TenantID)
	mu.Lock()
	defer mu.Unlock()

	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if role.Kind == "" {
		role.Kind = RoleKindCustom
	}
	if err := e.validateRole(ctx, role); err != nil {
		e.auditAdmin(audit.EventRoleCreate, actor, role.TenantID, role.ID, false, err.Error())
		return nil, err
	}

	now := e.clock.Now()
	role.CreatedAt = now
	role.UpdatedAt = now
	role.CreatedBy = actor
	if err := e.roles.CreateRole(ctx, role); err != nil {
		e.auditAdmin(audit.EventRoleCreate, actor, role.TenantID, role.ID, false, err.Error())
		return nil, err
	}
	e.auditAdmin(audit.EventRoleCreate, actor, role.TenantID, role.ID, true, "")
	return role, nil
}

// UpdateRole applies a partial update to a custom role. System roles are
// immutable. Cache entries of every grantee are invalidated after the write.
func (e *Evaluator) UpdateRole(ctx context.Context, actor, roleID string, upd RoleUpdate) (*Role, error) {
	role, err := e.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem() {
		return nil, ErrSystemRoleImmutable
	}
	if err := e.authorize(ctx, actor, "access:manage-roles", role.TenantID); err != nil {
		e.auditAdmin(audit.EventRoleUpdate, actor, role.TenantID, roleID, false, err.Error())
		return nil, err
	}

	mu := e.tenantLock(role.TenantID)
	mu.Lock()
	defer mu.Unlock()

	// Reload under the lock so we mutate the current definition.
	role, err = e.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Permissions != nil {
		role.Permissions = upd.Permissions
	}
	if upd.Inherits != nil {
		role.Inherits = upd.Inherits
	}
	if upd.Constraints != nil {
		role.Constraints = upd.Constraints
	}
	if err := e.validateRole(ctx, role); err != nil {
		e.auditAdmin(audit.EventRoleUpdate, actor, role.TenantID, roleID, false, err.Error())
		return nil, err
	}

	role.UpdatedAt = e.clock.Now()
	if err := e.roles.UpdateRole(ctx, role); err != nil {
		e.auditAdmin(audit.EventRoleUpdate, actor, role.TenantID, roleID, false, err.Error())
		return nil, err
	}
	e.invalidateRoleGrantees(ctx, roleID)
	e.auditAdmin(audit.EventRoleUpdate, actor, role.TenantID, roleID, true, "")
	return role, nil
}

// DeleteRole removes a custom role with no active grants.
func (e *Evaluator) DeleteRole(ctx context.Context, actor, roleID string) error {
	role, err := e.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem() {
		return ErrSystemRoleImmutable
	}
	if err := e.authorize(ctx, actor, "access:manage-roles", role.TenantID); err != nil {
		e.auditAdmin(audit.EventRoleDelete, actor, role.TenantID, roleID, false, err.Error())
		return err
	}

	mu := e.tenantLock(role.TenantID)
	mu.Lock()
	defer mu.Unlock()

	active, err := e.grants.GrantsForRole(ctx, roleID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		e.auditAdmin(audit.EventRoleDelete, actor, role.TenantID, roleID, false, ErrRoleInUse.Error())
		return fmt.Errorf("role %q: %w", roleID, ErrRoleInUse)
	}
	if err := e.roles.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	e.auditAdmin(audit.EventRoleDelete, actor, role.TenantID, roleID, true, "")
	return nil
}

// RolesForTenant lists the tenant's custom roles plus system roles.
func (e *Evaluator) RolesForTenant(ctx context.Context, tenantID string) ([]Role, error) {
	return e.roles.ListRoles(ctx, tenantID)
}

// AssignRole grants a role to a user within a tenant. A user holds at most
// one active grant of a role per tenant; re-granting requires revocation.
func (e *Evaluator) AssignRole(ctx context.Context, actor, userID, roleID, tenantID string, expiresAt *time.Time) (*Grant, error) {
	if err := e.authorize(ctx, actor, "access:assign-roles", tenantID); err != nil {
		e.auditAdmin(audit.EventRoleAssign, actor, tenantID, roleID, false, err.Error())
		return nil, err
	}
	role, err := e.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.TenantID != TenantSystem && role.TenantID != tenantID {
		return nil, fmt.Errorf("role %q in tenant %q: %w", roleID, tenantID, ErrNotFound)
	}

	mu := e.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := e.grants.ActiveGrant(ctx, userID, roleID, tenantID); err == nil {
		e.auditAdmin(audit.EventRoleAssign, actor, tenantID, roleID, false, ErrAlreadyGranted.Error())
		return nil, fmt.Errorf("role %q to user %q: %w", roleID, userID, ErrAlreadyGranted)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	grant := &Grant{
		ID:         uuid.NewString(),
		UserID:     userID,
		RoleID:     roleID,
		TenantID:   tenantID,
		AssignedBy: actor,
		AssignedAt: e.clock.Now(),
		ExpiresAt:  expiresAt,
		Active:     true,
	}
	if err := e.grants.CreateGrant(ctx, grant); err != nil {
		e.auditAdmin(audit.EventRoleAssign, actor, tenantID, roleID, false, err.Error())
		return nil, err
	}
	e.cache.InvalidateUser(userID)
	e.observer.ObserveCacheInvalidation(1)
	e.auditAdmin(audit.EventRoleAssign, actor, tenantID, roleID, true, "user "+userID)
	return grant, nil
}

// RevokeRole deactivates the user's active grant of the role. Revoking an
// inactive grant fails with ErrNotGranted.
func (e *Evaluator) RevokeRole(ctx context.Context, actor, userID, roleID, tenantID string) error {
	if err := e.authorize(ctx, actor, "access:assign-roles", tenantID); err != nil {
		e.auditAdmin(audit.EventRoleRevoke, actor, tenantID, roleID, false, err.Error())
		return err
	}

	mu := e.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	grant, err := e.grants.ActiveGrant(ctx, userID, roleID, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.auditAdmin(audit.EventRoleRevoke, actor, tenantID, roleID, false, ErrNotGranted.Error())
			return fmt.Errorf("role %q from user %q: %w", roleID, userID, ErrNotGranted)
		}
		return err
	}
	grant.Active = false
	if err := e.grants.UpdateGrant(ctx, grant); err != nil {
		return err
	}
	e.cache.InvalidateUser(userID)
	e.observer.ObserveCacheInvalidation(1)
	e.auditAdmin(audit.EventRoleRevoke, actor, tenantID, roleID, true, "user "+userID)
	return nil
}

// SetElevation attaches or clears a temporary elevation on the user's active
// grant of the role.
func (e *Evaluator) SetElevation(ctx context.Context, actor, userID, roleID, tenantID string, elev *TemporaryElevation) error {
	if err := e.authorize(ctx, actor, "access:assign-roles", tenantID); err != nil {
		return err
	}
	if elev != nil {
		if err := e.catalog.ValidatePermissions(elev.Permissions); err != nil {
			return err
		}
	}

	mu := e.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	grant, err := e.grants.ActiveGrant(ctx, userID, roleID, tenantID)
	if err != nil {
		return err
	}
	grant.Elevation = elev
	if err := e.grants.UpdateGrant(ctx, grant); err != nil {
		return err
	}
	e.cache.InvalidateUser(userID)
	e.observer.ObserveCacheInvalidation(1)
	return nil
}

// UserRoles returns the user's grants. An empty tenantID matches all tenants.
// Inactive and expired grants are included with their flags set.
func (e *Evaluator) UserRoles(ctx context.Context, userID, tenantID string) ([]Grant, error) {
	return e.grants.UserGrants(ctx, userID, tenantID)
}

// HasPermission decides whether the user may perform the permission in the
// tenant. A structurally invalid or unregistered permission fails fast with
// ErrInvalidPermission so callers can tell misuse from denial.
//
// Only context-free decisions are cached: when a matching grant's role
// carries IP, device or time-window constraints, the decision is computed
// fresh on every call so one permitted context can never answer for another.
func (e *Evaluator) HasPermission(ctx context.Context, userID, permission, tenantID string, reqCtx *CheckContext) (Decision, error) {
	if !ValidPermissionID(permission) {
		return Decision{}, invalidPermission(permission)
	}
	if _, ok := e.catalog.Lookup(permission); !ok {
		return Decision{}, invalidPermission(permission)
	}

	start := time.Now()
	now := e.clock.Now()
	if reqCtx != nil && !reqCtx.At.IsZero() {
		now = reqCtx.At
	}

	if cached, ok := e.cache.Get(userID, permission, tenantID, now); ok {
		d := Decision{
			Allowed:   cached.Allowed,
			Reason:    cached.Reason,
			Cached:    true,
			CheckedAt: now,
		}
		e.observer.ObserveDecision(d.Allowed, d.Reason, true, time.Since(start))
		e.sessions.TouchUser(userID, tenantID)
		return d, nil
	}

	// The flight key carries the request context so concurrent checks from
	// different IPs or devices never share one evaluation.
	key := cacheKey(userID, permission, tenantID)
	if reqCtx != nil {
		key += "|" + reqCtx.IPAddress + "|" + reqCtx.DeviceID
		if !reqCtx.At.IsZero() {
			key += "|" + reqCtx.At.Format(time.RFC3339Nano)
		}
	}
	v, err, _ := e.flight.Do(key, func() (any, error) {
		return e.evaluate(ctx, userID, permission, tenantID, reqCtx, now)
	})
	if err != nil {
		return Decision{}, err
	}
	d := v.(Decision)
	e.observer.ObserveDecision(d.Allowed, d.Reason, false, time.Since(start))
	e.sessions.TouchUser(userID, tenantID)
	return d, nil
}

func (e *Evaluator) evaluate(ctx context.Context, userID, permission, tenantID string, reqCtx *CheckContext, now time.Time) (Decision, error) {
	grants, err := e.grants.UserGrants(ctx, userID, tenantID)
	if err != nil {
		return Decision{}, err
	}

	var (
		matchedRoles   []string
		earliestExpiry time.Time
		contextBound   bool
	)
	allowed := false
	for i := range grants {
		g := &grants[i]
		if !g.Active {
			continue
		}
		if g.Expired(now) {
			// Expiry is terminal: the grant is deactivated, not merely
			// denied for this call.
			g.Active = false
			_ = e.grants.UpdateGrant(ctx, g)
			continue
		}
		role, err := e.roles.GetRole(ctx, g.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return Decision{}, err
		}

		matched := false
		effective, err := e.resolver.EffectivePermissions(ctx, g.RoleID)
		if err != nil {
			return Decision{}, err
		}
		if _, ok := Matches(effective, permission); ok {
			matched = true
		}
		if !matched && g.Elevation != nil && now.Before(g.Elevation.ExpiresAt) {
			if _, ok := Matches(g.Elevation.Permissions, permission); ok {
				matched = true
			}
		}
		if !matched {
			continue
		}

		// A decision that passed through a context-consulting constraint set
		// holds only for this request's context; it must not be memoized
		// under the context-free cache key.
		if role.Constraints.ContextSensitive() {
			contextBound = true
		}

		// Constraints are evaluated per grant: this grant votes only if its
		// own role's constraint set passes.
		if !CheckConstraints(role.Constraints, reqCtx, now) {
			continue
		}

		allowed = true
		matchedRoles = append(matchedRoles, role.ID)
		if g.ExpiresAt != nil && (earliestExpiry.IsZero() || g.ExpiresAt.Before(earliestExpiry)) {
			earliestExpiry = *g.ExpiresAt
		}
	}
	sort.Strings(matchedRoles)

	d := Decision{
		Allowed:      allowed,
		Reason:       ReasonNoMatchingGrant,
		MatchedRoles: matchedRoles,
		CheckedAt:    now,
	}
	if allowed {
		d.Reason = ReasonGrantedByRole
	}

	if e.policies != nil {
		outcome, err := e.policies.Evaluate(ctx, tenantID, e.policyContext(userID, permission, tenantID, reqCtx))
		if err != nil {
			return Decision{}, err
		}
		switch outcome.Effect {
		case policy.EffectDeny:
			d.Allowed = false
			d.Reason = ReasonDeniedByPolicy
			d.Message = outcome.Message
		case policy.EffectAllow:
			d.Allowed = true
			d.Reason = ReasonAllowedByPolicy
			d.Message = outcome.Message
		case policy.EffectRequireApproval:
			// No approval workflow in the synchronous path; denied with a
			// distinguishable reason.
			d.Allowed = false
			d.Reason = ReasonRequiresApproval
			d.Message = outcome.Message
		}
		for _, ruleID := range outcome.LogMatches {
			e.recorder.Record(audit.AccessRecord{
				EventType:  audit.EventPermissionCheck,
				UserID:     userID,
				TenantID:   tenantID,
				Permission: permission,
				Allowed:    d.Allowed,
				Reason:     "policy rule logged: " + ruleID,
			})
		}
	}

	if !contextBound {
		validUntil := now.Add(e.cacheTTL)
		if d.Allowed && !earliestExpiry.IsZero() && earliestExpiry.Before(validUntil) {
			validUntil = earliestExpiry
		}
		e.cache.Set(userID, permission, tenantID, CachedDecision{
			Allowed:    d.Allowed,
			Reason:     d.Reason,
			ValidUntil: validUntil,
		})
	}

	eventType := audit.EventPermissionCheck
	if !d.Allowed {
		eventType = audit.EventAccessDenied
	}
	e.recorder.Record(audit.AccessRecord{
		EventType:  eventType,
		Timestamp:  now,
		UserID:     userID,
		TenantID:   tenantID,
		Permission: permission,
		Allowed:    d.Allowed,
		Reason:     string(d.Reason),
		Metadata:   requestMetadata(reqCtx),
	})
	return d, nil
}

// CheckPermissions evaluates several permissions in one call.
func (e *Evaluator) CheckPermissions(ctx context.Context, userID string, permissions []string, tenantID string, reqCtx *CheckContext) (map[string]bool, error) {
	out := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		d, err := e.HasPermission(ctx, userID, p, tenantID, reqCtx)
		if err != nil {
			return nil, err
		}
		out[p] = d.Allowed
	}
	return out, nil
}

// AccessLog returns up to limit of the newest retained decision records. It
// returns nil when no audit ring is wired.
func (e *Evaluator) AccessLog(limit int) []audit.AccessRecord {
	if e.log == nil {
		return nil
	}
	return e.log.Recent(limit)
}

// SearchAccessLog queries the retained decision records.
func (e *Evaluator) SearchAccessLog(filter audit.SearchFilter, limit int) []audit.AccessRecord {
	if e.log == nil {
		return nil
	}
	return e.log.Search(filter, limit)
}

// OnSessionStart opens an access session snapshotting the user's resolved
// roles, flattened permissions and merged constraints. Called by the host on
// login; there is no ambient event subscription.
func (e *Evaluator) OnSessionStart(ctx context.Context, userID, tenantID string) (*AccessSession, error) {
	now := e.clock.Now()
	grants, err := e.grants.UserGrants(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	var (
		roleIDs     []string
		permSet     = make(map[string]struct{})
		constraints []*RoleConstraints
	)
	for i := range grants {
		g := &grants[i]
		if !g.Active || g.Expired(now) {
			continue
		}
		role, err := e.roles.GetRole(ctx, g.RoleID)
		if err != nil {
			continue
		}
		effective, err := e.resolver.EffectivePermissions(ctx, g.RoleID)
		if err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, role.ID)
		for _, p := range effective {
			permSet[p] = struct{}{}
		}
		constraints = append(constraints, role.Constraints)
	}
	merged := MergeConstraints(constraints)

	if merged.MaxConcurrentSessions > 0 &&
		e.sessions.CountUser(userID, tenantID) >= merged.MaxConcurrentSessions {
		return nil, fmt.Errorf("user %q in tenant %q: %w", userID, tenantID, ErrSessionLimit)
	}

	perms := make([]string, 0, len(permSet))
	for p := range permSet {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	sort.Strings(roleIDs)

	s := e.sessions.Start(userID, tenantID, roleIDs, perms, merged)
	e.recorder.Record(audit.AccessRecord{
		EventType: audit.EventSessionStart,
		UserID:    userID,
		TenantID:  tenantID,
		Allowed:   true,
		Metadata:  map[string]any{"session_id": s.ID, "roles": roleIDs},
	})
	return s, nil
}

// OnSessionEnd closes the user's sessions in the tenant. Called by the host
// on logout.
func (e *Evaluator) OnSessionEnd(userID, tenantID string) {
	n := e.sessions.EndUserSessions(userID, tenantID)
	if n > 0 {
		e.recorder.Record(audit.AccessRecord{
			EventType: audit.EventSessionEnd,
			UserID:    userID,
			TenantID:  tenantID,
			Allowed:   true,
			Metadata:  map[string]any{"ended": n},
		})
	}
}

// OnTenantSwitch ends the user's sessions in the old tenant, drops their
// cached decisions and opens a session in the new tenant.
func (e *Evaluator) OnTenantSwitch(ctx context.Context, userID, fromTenant, toTenant string) (*AccessSession, error) {
	e.sessions.EndUserSessions(userID, fromTenant)
	e.cache.InvalidateUser(userID)
	e.observer.ObserveCacheInvalidation(1)
	return e.OnSessionStart(ctx, userID, toTenant)
}

// SweepSessions ends idle sessions; scheduled periodically by the host.
func (e *Evaluator) SweepSessions() int {
	return e.sessions.Sweep()
}

func (e *Evaluator) validateRole(ctx context.Context, role *Role) error {
	if err := e.catalog.ValidatePermissions(role.Permissions); err != nil {
		return err
	}
	if err := ValidateConstraints(role.Constraints); err != nil {
		return err
	}
	return e.resolver.CheckInheritance(ctx, role)
}

// authorize enforces the meta-permission on administrative operations.
// ActorSystem and empty actors (trusted in-process callers) bypass.
func (e *Evaluator) authorize(ctx context.Context, actor, permission, tenantID string) error {
	if actor == "" || actor == ActorSystem {
		return nil
	}
	d, err := e.HasPermission(ctx, actor, permission, tenantID, nil)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("actor %q lacks %s in tenant %q: %w", actor, permission, tenantID, ErrUnauthorized)
	}
	return nil
}

func (e *Evaluator) policyContext(userID, permission, tenantID string, reqCtx *CheckContext) map[string]any {
	evalCtx := map[string]any{
		"user_id":    userID,
		"permission": permission,
		"tenant_id":  tenantID,
	}
	if reqCtx != nil {
		if reqCtx.IPAddress != "" {
			evalCtx["ip_address"] = reqCtx.IPAddress
		}
		if reqCtx.DeviceID != "" {
			evalCtx["device_id"] = reqCtx.DeviceID
		}
		for k, v := range reqCtx.Attrs {
			evalCtx[k] = v
		}
	}
	return evalCtx
}

func (e *Evaluator) invalidateRoleGrantees(ctx context.Context, roleID string) {
	grants, err := e.grants.GrantsForRole(ctx, roleID)
	if err != nil {
		return
	}
	seen := make(map[string]struct{}, len(grants))
	var users []string
	for _, g := range grants {
		if _, ok := seen[g.UserID]; ok {
			continue
		}
		seen[g.UserID] = struct{}{}
		users = append(users, g.UserID)
	}
	e.cache.InvalidateUsers(users)
	e.observer.ObserveCacheInvalidation(len(users))
}

func (e *Evaluator) auditAdmin(event audit.EventType, actor, tenantID, roleID string, ok bool, detail string) {
	e.recorder.Record(audit.AccessRecord{
		EventType: event,
		UserID:    actor,
		Actor:     actor,
		TenantID:  tenantID,
		Allowed:   ok,
		Reason:    detail,
		Metadata:  map[string]any{"role_id": roleID},
	})
}

func requestMetadata(reqCtx *CheckContext) map[string]any {
	if reqCtx == nil {
		return nil
	}
	md := make(map[string]any)
	if reqCtx.IPAddress != "" {
		md["ip_address"] = reqCtx.IPAddress
	}
	if reqCtx.DeviceID != "" {
		md["device_id"] = reqCtx.DeviceID
	}
	for k, v := range reqCtx.Attrs {
		md[k] = v
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
