package repo

import (
	"context"
	"fmt"
	"time"

	"genesis/internal/domain"
	"genesis/internal/infra"
	"genesis/internal/sqlinline"
)

// SubscriptionRepositoryPG implements domain.SubscriptionRepository.
type SubscriptionRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewSubscriptionRepository(sql infra.SQLExecutor) *SubscriptionRepositoryPG {
	return &SubscriptionRepositoryPG{sql: sql}
}

func (r *SubscriptionRepositoryPG) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	var (
		s            domain.Subscription
		plan, status string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectSubscription, userID).
		Scan(&s.UserID, &plan, &status, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	s.PlanType = domain.PlanType(plan)
	s.Status = domain.SubscriptionStatus(status)
	return &s, nil
}

// Downgrade rewrites an expired paid plan to free/cancelled. Rows renewed
// since they were read are left untouched.
func (r *SubscriptionRepositoryPG) Downgrade(ctx context.Context, userID string, now time.Time) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDowngradeExpiredSubscription, userID, now); err != nil {
		return fmt.Errorf("downgrade subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepositoryPG) Upsert(ctx context.Context, s *domain.Subscription) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertSubscription, s.UserID, string(s.PlanType), string(s.Status), s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

var _ domain.SubscriptionRepository = (*SubscriptionRepositoryPG)(nil)
