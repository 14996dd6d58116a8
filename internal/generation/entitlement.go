package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"genesis/internal/domain"
)

// Entitlements answers whether a user's plan unlocks a media kind.
type Entitlements struct {
	repo     domain.SubscriptionRepository
	features domain.PlanFeatures
	now      func() time.Time
	log      zerolog.Logger
}

func NewEntitlements(repo domain.SubscriptionRepository, features domain.PlanFeatures, log *zerolog.Logger) *Entitlements {
	if features == nil {
		features = domain.DefaultPlanFeatures()
	}
	e := &Entitlements{repo: repo, features: features, now: time.Now}
	if log != nil {
		e.log = log.With().Str("component", "entitlements").Logger()
	} else {
		e.log = zerolog.New(io.Discard)
	}
	return e
}

func (e *Entitlements) Features() domain.PlanFeatures { return e.features }

// Current returns the subscription as it applies now. Users without a row
// read as free. An expired paid plan is downgraded in storage on the way out.
func (e *Entitlements) Current(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := e.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			free := domain.FreeSubscription(userID)
			return &free, nil
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	now := e.now().UTC()
	if sub.Expired(now) {
		if err := e.repo.Downgrade(ctx, userID, now); err != nil {
			// reads still see the effective plan; the next read retries
			e.log.Warn().Err(err).Str("user_id", userID).Msg("downgrade expired subscription")
		} else {
			e.log.Info().Str("user_id", userID).Str("plan", string(sub.PlanType)).Msg("expired subscription downgraded")
		}
		eff := sub.Effective(now)
		sub = &eff
	}
	return sub, nil
}

// Check returns domain.ErrEntitlement unless the user may generate kind.
func (e *Entitlements) Check(ctx context.Context, userID string, kind domain.MediaKind) error {
	sub, err := e.Current(ctx, userID)
	if err != nil {
		return err
	}
	if !e.features.Entitled(sub, kind, e.now().UTC()) {
		return fmt.Errorf("%w: plan %s (%s) does not include %s generation", domain.ErrEntitlement, sub.PlanType, sub.Status, kind)
	}
	return nil
}
