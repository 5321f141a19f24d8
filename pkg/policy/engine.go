package policy

import (
	"context"
	"fmt"
	"sort"
)

// Store persists security policies. The memory implementation backs tests and
// single-node deployments; the postgres store implements the same contract.
type Store interface {
	// CreatePolicy stores a new policy.
	CreatePolicy(ctx context.Context, p *Policy) error

	// GetPolicy returns the policy with the given id.
	GetPolicy(ctx context.Context, id string) (*Policy, error)

	// UpdatePolicy replaces the stored policy.
	UpdatePolicy(ctx context.Context, p *Policy) error

	// DeletePolicy removes the policy.
	DeletePolicy(ctx context.Context, id string) error

	// ActivePolicies returns the tenant's active policies in insertion order.
	ActivePolicies(ctx context.Context, tenantID string) ([]Policy, error)
}

// Engine evaluates the tenant's security policies for one permission check.
type Engine struct {
	store Store
}

// NewEngine creates a policy engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// flatRule pairs a rule with its position for deterministic ordering.
type flatRule struct {
	rule     Rule
	mode     EnforcementMode
	policyID string
	pos      int // policy insertion order, then rule order
}

// Evaluate runs the tenant's active policies against the evaluation context.
// Rules across policies are sorted by descending priority with ties broken by
// insertion order, and scanned until a terminal effect is produced. Rules in
// audit-only policies, and downgraded rules in permissive policies, are
// recorded in LogMatches without affecting the effect.
func (e *Engine) Evaluate(ctx context.Context, tenantID string, evalCtx map[string]any) (Outcome, error) {
	policies, err := e.store.ActivePolicies(ctx, tenantID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading policies for tenant %q: %w", tenantID, err)
	}

	var rules []flatRule
	pos := 0
	for _, p := range policies {
		for _, r := range p.Rules {
			rules = append(rules, flatRule{rule: r, mode: p.Mode, policyID: p.ID, pos: pos})
			pos++
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].rule.Priority != rules[j].rule.Priority {
			return rules[i].rule.Priority > rules[j].rule.Priority
		}
		return rules[i].pos < rules[j].pos
	})

	out := Outcome{Effect: EffectNone}
	for _, fr := range rules {
		if fr.rule.Condition == nil || !fr.rule.Condition.Eval(evalCtx) {
			continue
		}
		action := fr.rule.Action
		if fr.mode == ModeAuditOnly {
			action = ActionLogOnly
		}
		if fr.mode == ModePermissive && (action == ActionDeny || action == ActionRequireApproval) {
			action = ActionLogOnly
		}
		switch action {
		case ActionLogOnly:
			out.LogMatches = append(out.LogMatches, fr.rule.ID)
			continue
		case ActionAllow:
			out.Effect = EffectAllow
		case ActionDeny:
			out.Effect = EffectDeny
		case ActionRequireApproval:
			out.Effect = EffectRequireApproval
		default:
			continue
		}
		out.PolicyID = fr.policyID
		out.RuleID = fr.rule.ID
		out.Message = fr.rule.Message
		return out, nil
	}
	return out, nil
}

// Validate rejects a malformed policy at save time.
func Validate(p *Policy) error {
	if p.TenantID == "" {
		return fmt.Errorf("%w: policy without tenant", ErrBadCondition)
	}
	switch p.Mode {
	case ModeStrict, ModePermissive, ModeAuditOnly:
	case "":
		p.Mode = ModeStrict
	default:
		return fmt.Errorf("%w: unknown enforcement mode %q", ErrBadCondition, p.Mode)
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		switch r.Action {
		case ActionAllow, ActionDeny, ActionRequireApproval, ActionLogOnly:
		default:
			return fmt.Errorf("%w: rule %q has unknown action %q", ErrBadCondition, r.ID, r.Action)
		}
		if err := r.Condition.Validate(); err != nil {
			return fmt.Errorf("rule %q: %w", r.ID, err)
		}
	}
	return nil
}
