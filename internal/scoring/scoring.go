// Package scoring implements the six-signal risk evaluator and the
// surrounding scoring pipeline: signals, rule adjustments, level
// mapping, history recording, and decision events.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/emailrisk"
	"github.com/verdantgoods/riskd/internal/rules"
	"github.com/verdantgoods/riskd/internal/velocity"
)

// DefaultAOV is the average order value assumed before any history
// exists.
const DefaultAOV = 120.0

var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskd_decisions_total",
		Help: "Scoring decisions by risk level and recommended action",
	},
	[]string{"level", "action"},
)

// Scorer runs the scoring pipeline. Each call is one synchronous unit
// of work; batches are scored strictly in input order so intra-batch
// velocity escalates with position.
type Scorer struct {
	repo      domain.Repository
	velocity  *velocity.Service
	ruleStore *rules.Store
	engine    *rules.Engine
	bus       domain.EventBus
}

// NewScorer creates a scorer. bus may be nil to disable decision
// events.
func NewScorer(repo domain.Repository, vel *velocity.Service, ruleStore *rules.Store, engine *rules.Engine, bus domain.EventBus) *Scorer {
	return &Scorer{
		repo:      repo,
		velocity:  vel,
		ruleStore: ruleStore,
		engine:    engine,
		bus:       bus,
	}
}

// Score evaluates one transaction: six signals, then active rules,
// then clamp and level mapping. The transaction is recorded in the
// history store afterwards so later calls see it for velocity.
func (s *Scorer) Score(ctx context.Context, req *domain.ScoreRequest) (*domain.Assessment, error) {
	tx := req.ToTransaction()

	factors := make([]domain.RiskFactor, 0)
	total := 0

	add := func(f *domain.RiskFactor) {
		if f != nil {
			factors = append(factors, *f)
			total += f.Score
		}
	}

	velocityFactor, err := s.scoreVelocity(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("velocity signal failed: %w", err)
	}
	add(velocityFactor)

	add(scoreGeolocation(tx))
	add(scoreCategory(tx))

	amountFactor, err := s.scoreAmountAnomaly(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("amount anomaly signal failed: %w", err)
	}
	add(amountFactor)

	add(scoreNewCustomer(tx))
	add(scoreEmailPattern(tx))

	// Rule adjustments on top of the signal total.
	active, err := s.ruleStore.Active(ctx)
	if err != nil {
		return nil, err
	}
	outcome, err := s.engine.EvaluateAll(ctx, active, tx.FlatMap())
	if err != nil {
		return nil, err
	}

	total += outcome.ScoreModifier
	total = domain.ClampScore(total)

	level := domain.LevelForScore(total)
	action := domain.DefaultActionForLevel(level)
	if outcome.ActionOverride != "" {
		// Overrides replace the action only; the level label always
		// tracks the clamped score.
		action = outcome.ActionOverride
	}

	if err := s.repo.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	assessment := &domain.Assessment{
		TransactionID:     tx.ID,
		RiskScore:         total,
		RiskLevel:         level,
		RecommendedAction: action,
		RiskFactors:       factors,
		ScoredAt:          time.Now().UTC(),
	}

	decisionsTotal.WithLabelValues(level, action).Inc()

	slog.Debug("transaction scored",
		"transaction_id", tx.ID,
		"risk_score", total,
		"risk_level", level,
		"action", action,
		"factors", len(factors),
		"rules_matched", len(outcome.Matched),
	)

	s.publishDecision(ctx, assessment)

	return assessment, nil
}

// ScoreBatch scores transactions strictly in input order. Any storage
// failure aborts the batch; validation happens before this is called.
func (s *Scorer) ScoreBatch(ctx context.Context, batch *domain.BatchScoreRequest) (*domain.BatchResult, error) {
	results := make([]*domain.Assessment, 0, len(batch.Transactions))
	var summary domain.BatchSummary

	for i := range batch.Transactions {
		assessment, err := s.Score(ctx, &batch.Transactions[i])
		if err != nil {
			return nil, fmt.Errorf("failed to score item %d of %d: %w", i+1, len(batch.Transactions), err)
		}
		results = append(results, assessment)

		switch assessment.RecommendedAction {
		case domain.ActionManualReview:
			summary.ManualReview++
		case domain.ActionReject:
			summary.Reject++
		default:
			summary.Approve++
		}
	}

	return &domain.BatchResult{
		Total:    len(results),
		ScoredAt: time.Now().UTC(),
		Summary:  summary,
		Results:  results,
	}, nil
}

// scoreVelocity scores the windowed transaction count, taken before
// this transaction is recorded.
func (s *Scorer) scoreVelocity(ctx context.Context, tx *domain.Transaction) (*domain.RiskFactor, error) {
	count, err := s.velocity.CountInWindow(ctx, tx.Email, tx.CardBIN, tx.Timestamp)
	if err != nil {
		return nil, err
	}

	var score int
	switch {
	case count <= 1:
		return nil, nil
	case count <= 3:
		score = 5
	case count <= 6:
		score = 15
	default:
		score = 25
	}

	return &domain.RiskFactor{
		Signal:      domain.SignalVelocity,
		Score:       score,
		Description: fmt.Sprintf("%d transactions from same email/card_bin in last 24h", count),
	}, nil
}

// scoreGeolocation compares the three country codes pairwise. Two or
// three mismatching pairs both cap at 20 points.
func scoreGeolocation(tx *domain.Transaction) *domain.RiskFactor {
	mismatches := 0
	var pairs []string

	if tx.BillingCountry != tx.ShippingCountry {
		mismatches++
		pairs = append(pairs, "billing/shipping")
	}
	if tx.BillingCountry != tx.IPCountry {
		mismatches++
		pairs = append(pairs, "billing/IP")
	}
	if tx.ShippingCountry != tx.IPCountry {
		mismatches++
		pairs = append(pairs, "shipping/IP")
	}

	if mismatches == 0 {
		return nil
	}

	score := mismatches * 10
	if score > 20 {
		score = 20
	}

	return &domain.RiskFactor{
		Signal:      domain.SignalGeoMismatch,
		Score:       score,
		Description: "Country mismatch detected: " + strings.Join(pairs, ", "),
	}
}

func scoreCategory(tx *domain.Transaction) *domain.RiskFactor {
	var score int
	switch tx.ProductCategory {
	case domain.CategoryElectronics:
		score = 15
	case domain.CategoryHomeGoods:
		score = 5
	}
	if score == 0 {
		return nil
	}

	return &domain.RiskFactor{
		Signal:      domain.SignalCategory,
		Score:       score,
		Description: fmt.Sprintf("Product category '%s' has elevated chargeback rates", tx.ProductCategory),
	}
}

// scoreAmountAnomaly compares the amount to the running average order
// value, falling back to DefaultAOV when the store is empty.
func (s *Scorer) scoreAmountAnomaly(ctx context.Context, tx *domain.Transaction) (*domain.RiskFactor, error) {
	aov, ok, err := s.repo.AverageTransactionAmount(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || aov <= 0 {
		aov = DefaultAOV
	}

	ratio := tx.Amount / aov

	var score int
	switch {
	case ratio <= 2.0:
		return nil, nil
	case ratio <= 3.0:
		score = 8
	case ratio <= 5.0:
		score = 14
	default:
		score = 20
	}

	return &domain.RiskFactor{
		Signal:      domain.SignalAmount,
		Score:       score,
		Description: fmt.Sprintf("Transaction amount ($%.2f) exceeds average order value by %.1fx", tx.Amount, ratio),
	}, nil
}

func scoreNewCustomer(tx *domain.Transaction) *domain.RiskFactor {
	if !tx.IsFirstPurchase {
		return nil
	}

	if tx.Amount > 200 {
		return &domain.RiskFactor{
			Signal:      domain.SignalNewCustomer,
			Score:       10,
			Description: fmt.Sprintf("First-time customer with high-value purchase (>$%.2f)", tx.Amount),
		}
	}

	return &domain.RiskFactor{
		Signal:      domain.SignalNewCustomer,
		Score:       5,
		Description: "First-time customer",
	}
}

// scoreEmailPattern flags disposable domains, then falls back to a
// randomness check on the local part.
func scoreEmailPattern(tx *domain.Transaction) *domain.RiskFactor {
	if emailrisk.IsDisposable(tx.Email) {
		return &domain.RiskFactor{
			Signal:      domain.SignalEmailPattern,
			Score:       10,
			Description: "Email uses known disposable domain",
		}
	}

	local := emailrisk.LocalPart(tx.Email)
	entropy := emailrisk.UniqueCharRatio(local)
	if entropy > 0.85 && utf8.RuneCountInString(local) > 12 {
		return &domain.RiskFactor{
			Signal:      domain.SignalEmailPattern,
			Score:       5,
			Description: fmt.Sprintf("Email local part appears randomly generated (entropy: %.2f)", entropy),
		}
	}

	return nil
}

// publishDecision emits the decision event, and an alert event for
// non-approve outcomes. Failures are logged, never propagated.
func (s *Scorer) publishDecision(ctx context.Context, a *domain.Assessment) {
	if s.bus == nil {
		return
	}

	event := domain.DecisionEvent{
		TransactionID:     a.TransactionID,
		RiskScore:         a.RiskScore,
		RiskLevel:         a.RiskLevel,
		RecommendedAction: a.RecommendedAction,
		ScoredAt:          a.ScoredAt.Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode decision event", "transaction_id", a.TransactionID, "error", err)
		return
	}

	if err := s.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Warn("failed to publish decision event", "transaction_id", a.TransactionID, "error", err)
	}

	if a.RecommendedAction != domain.ActionApprove {
		if err := s.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert event", "transaction_id", a.TransactionID, "error", err)
		}
	}
}
