// Package policy implements the tenant-scoped security policy layer that can
// override role-based permission decisions. Rule conditions are a closed
// expression tree evaluated by a small interpreter; no dynamic code execution
// is involved.
package policy

import (
	"time"
)

// RuleAction is the effect a matching rule produces
type RuleAction string

const (
	ActionAllow           RuleAction = "allow"
	ActionDeny            RuleAction = "deny"
	ActionRequireApproval RuleAction = "require-approval"
	ActionLogOnly         RuleAction = "log-only"
)

// EnforcementMode controls how strongly a policy's rules bind
type EnforcementMode string

const (
	// ModeStrict applies rule effects as written.
	ModeStrict EnforcementMode = "strict"
	// ModePermissive downgrades deny and require-approval to log-only.
	ModePermissive EnforcementMode = "permissive"
	// ModeAuditOnly records matches without affecting any outcome.
	ModeAuditOnly EnforcementMode = "audit-only"
)

// Rule is one prioritized condition within a policy. Higher priority rules
// are evaluated first; ties break by policy insertion order, then rule order.
type Rule struct {
	ID        string     `json:"id"`
	Condition *Condition `json:"condition"`
	Action    RuleAction `json:"action"`
	Priority  int        `json:"priority"`
	Message   string     `json:"message,omitempty"`
}

// Policy is a named, ordered rule set scoped to a tenant
type Policy struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Rules       []Rule          `json:"rules"`
	Mode        EnforcementMode `json:"mode"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Effect is the policy layer's verdict for one evaluation
type Effect string

const (
	// EffectNone means no rule objected; the role layer's result stands.
	EffectNone            Effect = "none"
	EffectAllow           Effect = "allow"
	EffectDeny            Effect = "deny"
	EffectRequireApproval Effect = "require-approval"
)

// Outcome describes what the policy layer decided and why
type Outcome struct {
	Effect   Effect `json:"effect"`
	PolicyID string `json:"policy_id,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
	Message  string `json:"message,omitempty"`
	// LogMatches lists log-only (or downgraded) rule matches encountered
	// before the terminal rule, for the audit trail.
	LogMatches []string `json:"log_matches,omitempty"`
}
