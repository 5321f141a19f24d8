package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditionEvalCompare(t *testing.T) {
	ctx := map[string]any{
		"permission": "billing:submit",
		"ip_address": "10.0.1.9",
		"attempts":   float64(3),
		"device": map[string]any{
			"kind": "tablet",
		},
	}

	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"eq match", Compare("permission", OpEq, "billing:submit"), true},
		{"eq miss", Compare("permission", OpEq, "billing:view"), false},
		{"neq", Compare("permission", OpNeq, "billing:view"), true},
		{"in hit", Compare("permission", OpIn, []any{"billing:view", "billing:submit"}), true},
		{"in miss", Compare("permission", OpIn, []any{"users:edit"}), false},
		{"in non-list value", Compare("permission", OpIn, "billing:submit"), false},
		{"matches glob", Compare("permission", OpMatches, "billing:*"), true},
		{"matches anchored", Compare("permission", OpMatches, "billing"), false},
		{"contains", Compare("ip_address", OpContains, "10.0."), true},
		{"lt", Compare("attempts", OpLT, 5), true},
		{"gte", Compare("attempts", OpGTE, 3), true},
		{"gt miss", Compare("attempts", OpGT, 3), false},
		{"numeric coercion int vs float64", Compare("attempts", OpEq, 3), true},
		{"present", Compare("ip_address", OpPresent, nil), true},
		{"present miss", Compare("mfa", OpPresent, nil), false},
		{"unknown field is false", Compare("nope", OpEq, "x"), false},
		{"dotted field", Compare("device.kind", OpEq, "tablet"), true},
		{"dotted through non-map", Compare("permission.kind", OpEq, "x"), false},
		{"compare number to string", Compare("attempts", OpEq, "3"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Eval(ctx))
		})
	}
}

func TestConditionEvalCombinators(t *testing.T) {
	ctx := map[string]any{"a": "1", "b": "2"}

	yes := Compare("a", OpEq, "1")
	no := Compare("b", OpEq, "x")

	assert.True(t, And(yes, Compare("b", OpEq, "2")).Eval(ctx))
	assert.False(t, And(yes, no).Eval(ctx))
	assert.True(t, Or(no, yes).Eval(ctx))
	assert.False(t, Or(no, no).Eval(ctx))
	assert.True(t, Not(no).Eval(ctx))
	assert.False(t, Not(yes).Eval(ctx))
}

func TestConditionValidate(t *testing.T) {
	valid := []*Condition{
		Compare("permission", OpMatches, "billing:*"),
		And(Compare("a", OpEq, 1), Not(Compare("b", OpPresent, nil))),
		Or(Compare("a", OpIn, []any{"x"})),
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate())
	}

	invalid := []*Condition{
		nil,
		{Kind: KindCompare, Op: OpEq}, // no field
		{Kind: KindCompare, Field: "a", Op: "spaceship"},                            // unknown op
		{Kind: KindCompare, Field: "a", Op: OpEq, Children: []*Condition{Not(nil)}}, // compare with children
		{Kind: KindAnd}, // no children
		{Kind: KindNot, Children: []*Condition{Compare("a", OpEq, 1), Compare("b", OpEq, 2)}},
		{Kind: "xor"},
		And(Compare("a", OpEq, 1), &Condition{Kind: KindOr}), // nested invalid
	}
	for i, c := range invalid {
		assert.ErrorIs(t, c.Validate(), ErrBadCondition, "case %d", i)
	}
}
