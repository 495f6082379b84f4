// Package velocity provides windowed transaction counting.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/verdantgoods/riskd/internal/domain"
)

// Window is the lookback applied to all velocity counts.
const Window = 24 * time.Hour

// Service counts stored transactions inside the velocity window.
// Counts are taken before the transaction under evaluation is recorded,
// so a transaction never contributes to its own velocity.
type Service struct {
	repo domain.Repository
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// CountInWindow returns the larger of the email and card BIN counts in
// the 24 hours ending at before. A burst spread across cards still
// shows up under the email, and a burst spread across emails still
// shows up under the BIN.
func (s *Service) CountInWindow(ctx context.Context, email, cardBIN string, before time.Time) (int, error) {
	if email == "" || cardBIN == "" {
		return 0, fmt.Errorf("email and cardBIN are required")
	}

	byEmail, err := s.repo.CountTransactions(ctx, domain.VelocityByEmail, email, before, Window)
	if err != nil {
		return 0, fmt.Errorf("failed to count by email: %w", err)
	}

	byBIN, err := s.repo.CountTransactions(ctx, domain.VelocityByCardBIN, cardBIN, before, Window)
	if err != nil {
		return 0, fmt.Errorf("failed to count by card bin: %w", err)
	}

	if byBIN > byEmail {
		return byBIN, nil
	}
	return byEmail, nil
}

// EmailCount returns the email-only count in the 24 hours ending at
// before. The rule engine exposes this as the velocity_24h field.
func (s *Service) EmailCount(ctx context.Context, email string, before time.Time) (int, error) {
	if email == "" {
		return 0, fmt.Errorf("email is required")
	}
	return s.repo.CountTransactions(ctx, domain.VelocityByEmail, email, before, Window)
}
