package rules

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/verdantgoods/riskd/internal/domain"
)

// Store serves rule reads and writes, keeping the active rule-set
// cache coherent. Scoring reads the active set through the cache;
// every write invalidates it so the next scoring call reloads from
// the repository.
type Store struct {
	repo       domain.Repository
	cache      domain.Cache
	ruleSetTTL time.Duration
}

// NewStore creates a rule store. cache may be nil, in which case every
// read goes to the repository.
func NewStore(repo domain.Repository, cache domain.Cache, ruleSetTTL time.Duration) *Store {
	if ruleSetTTL <= 0 {
		ruleSetTTL = time.Minute
	}
	return &Store{
		repo:       repo,
		cache:      cache,
		ruleSetTTL: ruleSetTTL,
	}
}

// Active returns active rules in evaluation order, served from cache
// when warm.
func (s *Store) Active(ctx context.Context) ([]*domain.Rule, error) {
	if s.cache != nil {
		cached, err := s.cache.GetRuleSet(ctx, domain.RuleSetActiveKey)
		if err != nil {
			slog.Warn("rule set cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	active, err := s.repo.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetRuleSet(ctx, domain.RuleSetActiveKey, active, s.ruleSetTTL); err != nil {
			slog.Warn("rule set cache write failed", "error", err)
		}
	}

	return active, nil
}

// Create validates and persists a new rule, then invalidates the
// active rule-set cache so the rule takes effect on the next scoring
// call.
func (s *Store) Create(ctx context.Context, req *domain.RuleRequest) (*domain.Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule := req.ToRule()
	rule.ID = newRuleID()
	rule.CreatedAt = time.Now().UTC()

	if err := s.repo.InsertRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, domain.RuleSetActiveKey); err != nil {
			slog.Warn("rule set cache invalidation failed", "rule_id", rule.ID, "error", err)
		}
	}

	slog.Info("rule created", "rule_id", rule.ID, "name", rule.Name, "priority", rule.Priority)
	return rule, nil
}

// Get retrieves a rule by ID regardless of active state.
func (s *Store) Get(ctx context.Context, ruleID string) (*domain.Rule, error) {
	return s.repo.GetRule(ctx, ruleID)
}

// newRuleID builds a short prefixed identifier like rule_3f9a2c1e.
func newRuleID() string {
	id := uuid.New()
	return "rule_" + hex.EncodeToString(id[:4])
}

// List retrieves every rule ordered by ascending priority.
func (s *Store) List(ctx context.Context) ([]*domain.Rule, error) {
	return s.repo.ListRules(ctx)
}
