package domain

import (
	"time"
)

// Risk levels derived from the final clamped score.
const (
	RiskLow      = "LOW"      // 0-25
	RiskMedium   = "MEDIUM"   // 26-50
	RiskHigh     = "HIGH"     // 51-75
	RiskCritical = "CRITICAL" // 76-100
)

// Recommended actions, ordered least to most severe.
const (
	ActionApprove      = "APPROVE"
	ActionManualReview = "MANUAL_REVIEW"
	ActionReject       = "REJECT"
)

// Signal names emitted by the risk evaluator.
const (
	SignalVelocity     = "velocity_check"
	SignalGeoMismatch  = "geolocation_mismatch"
	SignalCategory     = "high_risk_category"
	SignalAmount       = "amount_anomaly"
	SignalNewCustomer  = "new_customer_risk"
	SignalEmailPattern = "email_pattern"
)

// RiskFactor is one signal's contribution to an assessment.
type RiskFactor struct {
	Signal      string `json:"signal"`
	Score       int    `json:"score"`
	Description string `json:"description"`
}

// Assessment is the outcome of scoring a single transaction.
type Assessment struct {
	TransactionID     string       `json:"transaction_id"`
	RiskScore         int          `json:"risk_score"`
	RiskLevel         string       `json:"risk_level"`
	RecommendedAction string       `json:"recommended_action"`
	RiskFactors       []RiskFactor `json:"risk_factors"`
	ScoredAt          time.Time    `json:"scored_at"`
}

// BatchSummary counts batch outcomes by recommended action.
type BatchSummary struct {
	Approve      int `json:"approve"`
	ManualReview int `json:"manual_review"`
	Reject       int `json:"reject"`
}

// BatchResult is the outcome of scoring a batch in input order.
type BatchResult struct {
	Total    int           `json:"total"`
	ScoredAt time.Time     `json:"scored_at"`
	Summary  BatchSummary  `json:"summary"`
	Results  []*Assessment `json:"results"`
}

// LevelForScore maps a final clamped score to its risk level.
func LevelForScore(score int) string {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskMedium
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// DefaultActionForLevel is the action taken when no rule overrides it.
func DefaultActionForLevel(level string) string {
	switch level {
	case RiskHigh:
		return ActionManualReview
	case RiskCritical:
		return ActionReject
	default:
		return ActionApprove
	}
}

// ActionSeverity ranks actions so rule overrides can pick the most severe.
func ActionSeverity(action string) int {
	switch action {
	case ActionManualReview:
		return 1
	case ActionReject:
		return 2
	default:
		return 0
	}
}

// ClampScore bounds a score to the [0, 100] scale.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
