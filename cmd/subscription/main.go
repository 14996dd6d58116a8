package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"genesis/internal/adapter/repo"
	"genesis/internal/domain"
	"genesis/internal/infra"
)

func main() {
	var (
		userFlag    string
		planFlag    string
		statusFlag  string
		expiresFlag string
		daysFlag    int
	)

	flag.StringVar(&userFlag, "user", "", "user id to update")
	flag.StringVar(&planFlag, "plan", "premium", "plan to assign (free, premium, ultra)")
	flag.StringVar(&statusFlag, "status", "active", "subscription status (active, inactive, cancelled)")
	flag.StringVar(&expiresFlag, "expires", "", "expiry as RFC 3339 timestamp")
	flag.IntVar(&daysFlag, "days", 0, "expire this many days from now (ignored when -expires is set)")
	flag.Parse()

	sub, err := buildSubscription(userFlag, planFlag, statusFlag, expiresFlag, daysFlag, time.Now())
	if err != nil {
		exitWithError(err)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "subscription").Logger()
	subs := repo.NewSubscriptionRepository(infra.NewSQLRunner(pool, logger))

	if err := subs.Upsert(ctx, sub); err != nil {
		exitWithError(fmt.Errorf("failed to update subscription: %w", err))
	}
	stored, err := subs.Get(ctx, sub.UserID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to reload subscription: %w", err))
	}

	fmt.Printf("User %s updated to plan %s (%s)\n", stored.UserID, stored.PlanType, stored.Status)
	if stored.ExpiresAt != nil {
		fmt.Printf("expires_at=%s\n", stored.ExpiresAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Println("expires_at=never")
	}
}

func buildSubscription(user, plan, status, expires string, days int, now time.Time) (*domain.Subscription, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, errors.New("-user is required")
	}
	planType, err := domain.ParsePlanType(plan)
	if err != nil {
		return nil, err
	}
	st, err := domain.ParseSubscriptionStatus(status)
	if err != nil {
		return nil, err
	}
	sub := &domain.Subscription{UserID: user, PlanType: planType, Status: st}
	switch {
	case strings.TrimSpace(expires) != "":
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(expires))
		if err != nil {
			return nil, fmt.Errorf("invalid -expires: %w", err)
		}
		at = at.UTC()
		sub.ExpiresAt = &at
	case days > 0:
		at := now.UTC().AddDate(0, 0, days)
		sub.ExpiresAt = &at
	}
	return sub, nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
