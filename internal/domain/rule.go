package domain

import (
	"fmt"
	"time"
)

// Operator is the closed set of comparisons a rule condition may use.
// Anything outside this set is rejected when the rule is constructed.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition compares one transaction field against either a literal
// value or another field of the same transaction. At most one of Value
// and ValueField may be set; a nil Value with no ValueField compares
// against null.
type Condition struct {
	Field      string      `json:"field"`
	Operator   Operator    `json:"operator"`
	Value      interface{} `json:"value,omitempty"`
	ValueField string      `json:"value_field,omitempty"`
}

// Validate enforces the condition contract at construction time.
func (c *Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", string(c.Operator))
	}
	if c.Value != nil && c.ValueField != "" {
		return fmt.Errorf("condition on %q sets both value and value_field", c.Field)
	}
	return nil
}

// Rule is a merchant-configured adjustment applied after signal scoring.
// All conditions must match for the rule to fire.
type Rule struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	Conditions        []Condition `json:"conditions"`
	Action            string      `json:"action"`
	RiskScoreModifier int         `json:"risk_score_modifier"`
	Priority          int         `json:"priority"`
	IsActive          bool        `json:"is_active"`
	CreatedAt         time.Time   `json:"created_at"`
}

// RuleRequest is the API request payload for creating a rule.
type RuleRequest struct {
	Name              string      `json:"name" validate:"required"`
	Description       string      `json:"description"`
	Conditions        []Condition `json:"conditions" validate:"required,min=1"`
	Action            string      `json:"action" validate:"required,oneof=APPROVE MANUAL_REVIEW REJECT"`
	RiskScoreModifier int         `json:"risk_score_modifier" validate:"gte=-50,lte=50"`
	Priority          int         `json:"priority" validate:"gte=0"`
}

// Validate runs the per-condition checks the struct tags cannot express.
func (r *RuleRequest) Validate() error {
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
	}
	return nil
}

// ToRule converts a request to a Rule. The caller assigns ID and CreatedAt.
func (r *RuleRequest) ToRule() *Rule {
	return &Rule{
		Name:              r.Name,
		Description:       r.Description,
		Conditions:        r.Conditions,
		Action:            r.Action,
		RiskScoreModifier: r.RiskScoreModifier,
		Priority:          r.Priority,
		IsActive:          true,
	}
}
