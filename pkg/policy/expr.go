package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Condition is a closed expression tree over the evaluation context. The only
// node kinds are comparisons on a context field and boolean combinators, so a
// stored policy can never execute code.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// Comparison nodes
	Field string `json:"field,omitempty"`
	Op    CmpOp  `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`

	// Combinator nodes
	Children []*Condition `json:"children,omitempty"`
}

// ConditionKind tags the variant of a Condition node
type ConditionKind string

const (
	KindCompare ConditionKind = "compare"
	KindAnd     ConditionKind = "and"
	KindOr      ConditionKind = "or"
	KindNot     ConditionKind = "not"
)

// CmpOp is a comparison operator
type CmpOp string

const (
	OpEq       CmpOp = "eq"
	OpNeq      CmpOp = "neq"
	OpIn       CmpOp = "in"
	OpMatches  CmpOp = "matches" // anchored glob over a string field
	OpLT       CmpOp = "lt"
	OpLTE      CmpOp = "lte"
	OpGT       CmpOp = "gt"
	OpGTE      CmpOp = "gte"
	OpPresent  CmpOp = "present"
	OpContains CmpOp = "contains" // substring
)

// ErrBadCondition indicates a structurally invalid condition tree.
var ErrBadCondition = errors.New("invalid policy condition")

// Validate rejects malformed condition trees at policy-save time.
func (c *Condition) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil node", ErrBadCondition)
	}
	switch c.Kind {
	case KindCompare:
		if c.Field == "" {
			return fmt.Errorf("%w: compare without field", ErrBadCondition)
		}
		switch c.Op {
		case OpEq, OpNeq, OpIn, OpMatches, OpLT, OpLTE, OpGT, OpGTE, OpPresent, OpContains:
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrBadCondition, c.Op)
		}
		if len(c.Children) != 0 {
			return fmt.Errorf("%w: compare with children", ErrBadCondition)
		}
		return nil
	case KindAnd, KindOr:
		if len(c.Children) == 0 {
			return fmt.Errorf("%w: %s without children", ErrBadCondition, c.Kind)
		}
		for _, child := range c.Children {
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	case KindNot:
		if len(c.Children) != 1 {
			return fmt.Errorf("%w: not requires exactly one child", ErrBadCondition)
		}
		return c.Children[0].Validate()
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrBadCondition, c.Kind)
	}
}

// Eval interprets the condition against the evaluation context. Unknown
// fields compare as absent, so a mistyped field denies a match instead of
// erroring at request time.
func (c *Condition) Eval(ctx map[string]any) bool {
	switch c.Kind {
	case KindCompare:
		return c.evalCompare(ctx)
	case KindAnd:
		for _, child := range c.Children {
			if !child.Eval(ctx) {
				return false
			}
		}
		return true
	case KindOr:
		for _, child := range c.Children {
			if child.Eval(ctx) {
				return true
			}
		}
		return false
	case KindNot:
		return !c.Children[0].Eval(ctx)
	default:
		return false
	}
}

func (c *Condition) evalCompare(ctx map[string]any) bool {
	val, ok := lookupField(ctx, c.Field)
	if c.Op == OpPresent {
		return ok
	}
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return looseEqual(val, c.Value)
	case OpNeq:
		return !looseEqual(val, c.Value)
	case OpIn:
		items, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if looseEqual(val, item) {
				return true
			}
		}
		return false
	case OpMatches:
		s, ok1 := val.(string)
		pat, ok2 := c.Value.(string)
		return ok1 && ok2 && globMatch(pat, s)
	case OpContains:
		s, ok1 := val.(string)
		sub, ok2 := c.Value.(string)
		return ok1 && ok2 && strings.Contains(s, sub)
	case OpLT, OpLTE, OpGT, OpGTE:
		a, ok1 := toFloat(val)
		b, ok2 := toFloat(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch c.Op {
		case OpLT:
			return a < b
		case OpLTE:
			return a <= b
		case OpGT:
			return a > b
		default:
			return a >= b
		}
	}
	return false
}

// lookupField resolves a dotted path into nested map[string]any values.
func lookupField(ctx map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	var cur any = ctx
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// looseEqual compares values with numeric coercion, since JSON decoding
// produces float64 for all numbers.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func globMatch(pattern, s string) bool {
	var p, i int
	starP, starI := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starI = i
			p++
		case starP >= 0:
			starI++
			i = starI
			p = starP + 1
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// Convenience constructors used by seeding code and tests.

// Compare builds a comparison node.
func Compare(field string, op CmpOp, value any) *Condition {
	return &Condition{Kind: KindCompare, Field: field, Op: op, Value: value}
}

// And builds a conjunction node.
func And(children ...*Condition) *Condition {
	return &Condition{Kind: KindAnd, Children: children}
}

// Or builds a disjunction node.
func Or(children ...*Condition) *Condition {
	return &Condition{Kind: KindOr, Children: children}
}

// Not builds a negation node.
func Not(child *Condition) *Condition {
	return &Condition{Kind: KindNot, Children: []*Condition{child}}
}
