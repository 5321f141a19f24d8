package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/carevoice/accessd/pkg/audit"
	"github.com/carevoice/accessd/pkg/policy"
)

// WithPolicyStore wires policy persistence so the evaluator can serve policy
// administration. Usually paired with WithPolicyEngine over the same store.
func WithPolicyStore(s policy.Store) Option {
	return func(e *Evaluator) { e.policyStore = s }
}

// CreatePolicy validates and stores a tenant security policy. The actor must
// hold access:manage-policies in the policy's tenant.
//
// Policy changes are not fanned out to the decision cache; stale decisions
// age out within the cache TTL.
func (e *Evaluator) CreatePolicy(ctx context.Context, actor string, p *policy.Policy) (*policy.Policy, error) {
	if e.policyStore == nil {
		return nil, fmt.Errorf("%w: no policy store configured", ErrConfiguration)
	}
	if err := e.authorize(ctx, actor, "access:manage-policies", p.TenantID); err != nil {
		return nil, err
	}
	if err := policy.Validate(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	mu := e.tenantLock(p.TenantID)
	mu.Lock()
	defer mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := e.clock.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := e.policyStore.CreatePolicy(ctx, p); err != nil {
		return nil, err
	}
	e.auditPolicy(actor, p.TenantID, p.ID, "created")
	return p, nil
}

// UpdatePolicy validates and replaces a stored policy.
func (e *Evaluator) UpdatePolicy(ctx context.Context, actor string, p *policy.Policy) (*policy.Policy, error) {
	if e.policyStore == nil {
		return nil, fmt.Errorf("%w: no policy store configured", ErrConfiguration)
	}
	if err := e.authorize(ctx, actor, "access:manage-policies", p.TenantID); err != nil {
		return nil, err
	}
	if err := policy.Validate(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	mu := e.tenantLock(p.TenantID)
	mu.Lock()
	defer mu.Unlock()

	current, err := e.policyStore.GetPolicy(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if current.TenantID != p.TenantID {
		return nil, fmt.Errorf("policy %q: %w", p.ID, ErrNotFound)
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = e.clock.Now()
	if err := e.policyStore.UpdatePolicy(ctx, p); err != nil {
		return nil, err
	}
	e.auditPolicy(actor, p.TenantID, p.ID, "updated")
	return p, nil
}

// DeletePolicy removes a stored policy.
func (e *Evaluator) DeletePolicy(ctx context.Context, actor, tenantID, policyID string) error {
	if e.policyStore == nil {
		return fmt.Errorf("%w: no policy store configured", ErrConfiguration)
	}
	if err := e.authorize(ctx, actor, "access:manage-policies", tenantID); err != nil {
		return err
	}

	mu := e.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	current, err := e.policyStore.GetPolicy(ctx, policyID)
	if err != nil {
		return err
	}
	if current.TenantID != tenantID {
		return fmt.Errorf("policy %q: %w", policyID, ErrNotFound)
	}
	if err := e.policyStore.DeletePolicy(ctx, policyID); err != nil {
		return err
	}
	e.auditPolicy(actor, tenantID, policyID, "deleted")
	return nil
}

// GetPolicy retrieves a policy, scoped to the tenant.
func (e *Evaluator) GetPolicy(ctx context.Context, tenantID, policyID string) (*policy.Policy, error) {
	if e.policyStore == nil {
		return nil, fmt.Errorf("%w: no policy store configured", ErrConfiguration)
	}
	p, err := e.policyStore.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, fmt.Errorf("policy %q: %w", policyID, ErrNotFound)
	}
	return p, nil
}

// PoliciesForTenant lists the tenant's active policies in evaluation order.
func (e *Evaluator) PoliciesForTenant(ctx context.Context, tenantID string) ([]policy.Policy, error) {
	if e.policyStore == nil {
		return nil, fmt.Errorf("%w: no policy store configured", ErrConfiguration)
	}
	return e.policyStore.ActivePolicies(ctx, tenantID)
}

func (e *Evaluator) auditPolicy(actor, tenantID, policyID, change string) {
	e.recorder.Record(audit.AccessRecord{
		Timestamp: e.clock.Now(),
		EventType: audit.EventPolicyChange,
		UserID:    actor,
		Actor:     actor,
		TenantID:  tenantID,
		Allowed:   true,
		Reason:    change,
		Metadata:  map[string]any{"policy_id": policyID},
	})
}
