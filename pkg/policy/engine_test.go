package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWith(t *testing.T, policies ...*Policy) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	for _, p := range policies {
		require.NoError(t, s.CreatePolicy(context.Background(), p))
	}
	return s
}

func denyRule(id, pattern string, priority int) Rule {
	return Rule{
		ID:        id,
		Condition: Compare("permission", OpMatches, pattern),
		Action:    ActionDeny,
		Priority:  priority,
	}
}

func TestEngineNoPoliciesNoEffect(t *testing.T) {
	eng := NewEngine(NewMemoryStore())
	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "billing:view"})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, out.Effect)
}

func TestEngineFirstTerminalRuleWins(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
		Rules: []Rule{
			{ID: "allow-low", Condition: Compare("permission", OpMatches, "billing:*"),
				Action: ActionAllow, Priority: 10},
			denyRule("deny-high", "billing:*", 100),
		},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "billing:view"})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, out.Effect)
	assert.Equal(t, "deny-high", out.RuleID)
	assert.Equal(t, "p1", out.PolicyID)
}

func TestEnginePriorityTieBreaksByInsertionOrder(t *testing.T) {
	eng := NewEngine(storeWith(t,
		&Policy{ID: "first", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
			Rules: []Rule{{ID: "r-allow", Condition: Compare("permission", OpPresent, nil),
				Action: ActionAllow, Priority: 50}}},
		&Policy{ID: "second", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
			Rules: []Rule{denyRule("r-deny", "*", 50)}},
	))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "users:edit"})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, out.Effect)
	assert.Equal(t, "first", out.PolicyID)
}

func TestEngineNonMatchingRulesSkipped(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
		Rules: []Rule{denyRule("deny-devices", "devices:*", 100)},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "billing:view"})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, out.Effect)
}

func TestEngineTenantIsolation(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
		Rules: []Rule{denyRule("deny-all", "*", 1)},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-b", map[string]any{"permission": "billing:view"})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, out.Effect)
}

func TestEngineInactivePoliciesIgnored(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModeStrict, Active: false,
		Rules: []Rule{denyRule("deny-all", "*", 1)},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "billing:view"})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, out.Effect)
}

func TestEngineAuditOnlyModeDowngradesEverything(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModeAuditOnly, Active: true,
		Rules: []Rule{denyRule("would-deny", "billing:*", 100)},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "billing:view"})
	require.NoError(t, err)
	assert.Equal(t, EffectNone, out.Effect)
	assert.Equal(t, []string{"would-deny"}, out.LogMatches)
}

func TestEnginePermissiveModeDowngradesDenials(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModePermissive, Active: true,
		Rules: []Rule{
			denyRule("soft-deny", "billing:*", 100),
			{ID: "hard-allow", Condition: Compare("permission", OpMatches, "billing:*"),
				Action: ActionAllow, Priority: 50},
		},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "billing:view"})
	require.NoError(t, err)
	// The deny is logged, the allow still binds.
	assert.Equal(t, EffectAllow, out.Effect)
	assert.Equal(t, []string{"soft-deny"}, out.LogMatches)
}

func TestEngineLogMatchesAccumulateBeforeTerminal(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
		Rules: []Rule{
			{ID: "log-1", Condition: Compare("permission", OpPresent, nil), Action: ActionLogOnly, Priority: 100},
			{ID: "log-2", Condition: Compare("permission", OpPresent, nil), Action: ActionLogOnly, Priority: 90},
			denyRule("deny", "*", 80),
			{ID: "log-after", Condition: Compare("permission", OpPresent, nil), Action: ActionLogOnly, Priority: 70},
		},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "users:edit"})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, out.Effect)
	assert.Equal(t, []string{"log-1", "log-2"}, out.LogMatches)
}

func TestEngineRequireApproval(t *testing.T) {
	eng := NewEngine(storeWith(t, &Policy{
		ID: "p1", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
		Rules: []Rule{{ID: "gate", Condition: Compare("permission", OpEq, "devices:manage"),
			Action: ActionRequireApproval, Priority: 10, Message: "supervisor sign-off needed"}},
	}))

	out, err := eng.Evaluate(context.Background(), "clinic-a", map[string]any{"permission": "devices:manage"})
	require.NoError(t, err)
	assert.Equal(t, EffectRequireApproval, out.Effect)
	assert.Equal(t, "supervisor sign-off needed", out.Message)
}

func TestValidatePolicy(t *testing.T) {
	good := &Policy{TenantID: "clinic-a", Rules: []Rule{denyRule("r", "*", 1)}}
	require.NoError(t, Validate(good))
	// Empty mode defaults to strict.
	assert.Equal(t, ModeStrict, good.Mode)

	assert.ErrorIs(t, Validate(&Policy{Rules: []Rule{denyRule("r", "*", 1)}}), ErrBadCondition)
	assert.ErrorIs(t, Validate(&Policy{TenantID: "t", Mode: "chaotic"}), ErrBadCondition)
	assert.ErrorIs(t, Validate(&Policy{TenantID: "t",
		Rules: []Rule{{ID: "r", Condition: Compare("a", OpEq, 1), Action: "explode"}}}), ErrBadCondition)
	assert.ErrorIs(t, Validate(&Policy{TenantID: "t",
		Rules: []Rule{{ID: "r", Action: ActionDeny, Condition: &Condition{Kind: "bogus"}}}}), ErrBadCondition)
}

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p := &Policy{ID: "p1", TenantID: "clinic-a", Mode: ModeStrict, Active: true,
		Rules: []Rule{denyRule("r", "*", 1)}}
	require.NoError(t, s.CreatePolicy(ctx, p))
	assert.Error(t, s.CreatePolicy(ctx, p))

	got, err := s.GetPolicy(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "clinic-a", got.TenantID)

	// Stored copy is isolated from caller mutation.
	got.TenantID = "clinic-b"
	again, err := s.GetPolicy(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "clinic-a", again.TenantID)

	require.NoError(t, s.DeletePolicy(ctx, "p1"))
	_, err = s.GetPolicy(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeletePolicy(ctx, "p1"), ErrNotFound)
	assert.ErrorIs(t, s.UpdatePolicy(ctx, p), ErrNotFound)
}
