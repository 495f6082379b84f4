// Package rules provides the configurable rule evaluation engine.
// Rules are stored in the database and applied after base signal
// scoring to adjust scores and recommended actions.
package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/emailrisk"
)

// Virtual fields computed at evaluation time rather than read from the
// transaction.
const (
	FieldEmailDisposable = "email_domain_disposable"
	FieldVelocity24h     = "velocity_24h"
)

// Resolver computes a virtual field value from transaction data.
type Resolver func(ctx context.Context, txn map[string]interface{}) (interface{}, error)

// VelocityFunc returns the email transaction count in the 24 hours
// ending at before.
type VelocityFunc func(ctx context.Context, email string, before time.Time) (int, error)

// Engine evaluates structured rule conditions against transaction data.
// Conditions use a closed operator set over dynamically typed values,
// so a stored rule can never execute arbitrary code.
type Engine struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewEngine creates a rule engine with the built-in virtual field
// resolvers registered. velocityFn may be nil, in which case
// velocity_24h resolves to zero.
func NewEngine(velocityFn VelocityFunc) *Engine {
	e := &Engine{
		resolvers: make(map[string]Resolver),
	}

	e.RegisterResolver(FieldEmailDisposable, func(ctx context.Context, txn map[string]interface{}) (interface{}, error) {
		email, _ := txn["email"].(string)
		return emailrisk.IsDisposable(email), nil
	})

	e.RegisterResolver(FieldVelocity24h, func(ctx context.Context, txn map[string]interface{}) (interface{}, error) {
		if velocityFn == nil {
			return 0, nil
		}
		email, _ := txn["email"].(string)
		before := time.Now().UTC()
		if ts, ok := txn["timestamp"].(time.Time); ok {
			before = ts
		}
		count, err := velocityFn(ctx, email, before)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve velocity_24h: %w", err)
		}
		return count, nil
	})

	return e
}

// RegisterResolver adds or replaces a virtual field resolver.
func (e *Engine) RegisterResolver(field string, fn Resolver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolvers[field] = fn
}

// resolve returns the value for a field name, preferring a registered
// resolver over the transaction data. Unknown plain fields resolve to
// nil, which eq can match against an explicit null.
func (e *Engine) resolve(ctx context.Context, field string, txn map[string]interface{}) (interface{}, error) {
	e.mu.RLock()
	fn, ok := e.resolvers[field]
	e.mu.RUnlock()

	if ok {
		return fn(ctx, txn)
	}
	return txn[field], nil
}

// Outcome aggregates the effect of every matching rule on one
// transaction.
type Outcome struct {
	// ScoreModifier is the sum of matching rules' modifiers.
	ScoreModifier int

	// ActionOverride is the most severe action among matching rules,
	// or empty when no rule matched. Ties keep the first match in
	// priority order.
	ActionOverride string

	// Matched lists the IDs of matching rules in evaluation order.
	Matched []string
}

// EvaluateAll evaluates rules in the given order against transaction
// data. Rules must already be sorted by ascending priority; inactive
// rules are skipped. A resolver failure aborts the evaluation.
func (e *Engine) EvaluateAll(ctx context.Context, ruleList []*domain.Rule, txn map[string]interface{}) (*Outcome, error) {
	out := &Outcome{}
	bestSeverity := -1

	for _, rule := range ruleList {
		if !rule.IsActive {
			continue
		}

		matched, err := e.ruleMatches(ctx, rule, txn)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate rule %s: %w", rule.ID, err)
		}
		if !matched {
			continue
		}

		out.ScoreModifier += rule.RiskScoreModifier
		out.Matched = append(out.Matched, rule.ID)

		if sev := domain.ActionSeverity(rule.Action); sev > bestSeverity {
			out.ActionOverride = rule.Action
			bestSeverity = sev
		}
	}

	return out, nil
}

// ruleMatches reports whether every condition of a rule holds.
func (e *Engine) ruleMatches(ctx context.Context, rule *domain.Rule, txn map[string]interface{}) (bool, error) {
	for i := range rule.Conditions {
		ok, err := e.evaluateCondition(ctx, &rule.Conditions[i], txn)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evaluateCondition evaluates one condition. The comparison value is
// the literal value unless value_field names another field, which is
// resolved through the same resolver registry as the left side.
func (e *Engine) evaluateCondition(ctx context.Context, cond *domain.Condition, txn map[string]interface{}) (bool, error) {
	fieldVal, err := e.resolve(ctx, cond.Field, txn)
	if err != nil {
		return false, err
	}

	var compareVal interface{}
	if cond.ValueField != "" {
		compareVal, err = e.resolve(ctx, cond.ValueField, txn)
		if err != nil {
			return false, err
		}
	} else {
		compareVal = cond.Value
	}

	switch cond.Operator {
	case domain.OpEq:
		return looseEq(fieldVal, compareVal), nil
	case domain.OpNeq:
		return !looseEq(fieldVal, compareVal), nil
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		return looseOrder(cond.Operator, fieldVal, compareVal), nil
	case domain.OpIn:
		contained, ok := membership(fieldVal, compareVal)
		return ok && contained, nil
	case domain.OpNotIn:
		contained, ok := membership(fieldVal, compareVal)
		return ok && !contained, nil
	default:
		// Construction rejects unknown operators; a stored rule that
		// somehow carries one simply never matches.
		return false, nil
	}
}

// toFloat unifies the numeric kinds that reach the engine: JSON
// numbers decode to float64 and resolvers may hand back ints.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// looseEq compares dynamically typed values. Numbers compare by value
// across kinds, nil only equals nil, and mismatched kinds are unequal
// rather than an error.
func looseEq(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	if aNum != bNum {
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return false
	}
}

// looseOrder applies an ordering operator. Numbers order numerically,
// strings lexicographically; anything else is not orderable and the
// condition is false.
func looseOrder(op domain.Operator, a, b interface{}) bool {
	if af, aNum := toFloat(a); aNum {
		bf, bNum := toFloat(b)
		if !bNum {
			return false
		}
		switch op {
		case domain.OpGt:
			return af > bf
		case domain.OpGte:
			return af >= bf
		case domain.OpLt:
			return af < bf
		case domain.OpLte:
			return af <= bf
		}
		return false
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if !aStr || !bStr {
		return false
	}
	switch op {
	case domain.OpGt:
		return as > bs
	case domain.OpGte:
		return as >= bs
	case domain.OpLt:
		return as < bs
	case domain.OpLte:
		return as <= bs
	}
	return false
}

// membership reports whether a is contained in b. Lists test element
// equality, strings test substring containment of a string left side.
// ok is false when b is not a container for a, which makes both in and
// not_in fail rather than inverting a broken comparison.
func membership(a, b interface{}) (contained, ok bool) {
	switch bv := b.(type) {
	case []interface{}:
		for _, item := range bv {
			if looseEq(a, item) {
				return true, true
			}
		}
		return false, true
	case string:
		as, isStr := a.(string)
		if !isStr {
			return false, false
		}
		return strings.Contains(bv, as), true
	default:
		return false, false
	}
}
