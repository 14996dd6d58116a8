package domain

import (
	"testing"
	"time"
)

func TestEntitledMatrix(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	nextMonth := now.AddDate(0, 1, 0)
	features := DefaultPlanFeatures()

	tests := []struct {
		name  string
		sub   *Subscription
		image bool
		video bool
	}{
		{"no subscription", nil, false, false},
		{"free", &Subscription{PlanType: PlanFree, Status: SubscriptionActive}, false, false},
		{"premium active", &Subscription{PlanType: PlanPremium, Status: SubscriptionActive, ExpiresAt: &nextMonth}, true, false},
		{"premium no expiry", &Subscription{PlanType: PlanPremium, Status: SubscriptionActive}, true, false},
		{"premium expired yesterday", &Subscription{PlanType: PlanPremium, Status: SubscriptionActive, ExpiresAt: &yesterday}, false, false},
		{"premium inactive", &Subscription{PlanType: PlanPremium, Status: SubscriptionInactive}, false, false},
		{"ultra active", &Subscription{PlanType: PlanUltra, Status: SubscriptionActive, ExpiresAt: &nextMonth}, true, true},
		{"ultra cancelled", &Subscription{PlanType: PlanUltra, Status: SubscriptionCancelled}, false, false},
		{"ultra expiring now", &Subscription{PlanType: PlanUltra, Status: SubscriptionActive, ExpiresAt: &now}, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := features.Entitled(tc.sub, MediaKindImage, now); got != tc.image {
				t.Fatalf("image entitled = %v, want %v", got, tc.image)
			}
			if got := features.Entitled(tc.sub, MediaKindVideo, now); got != tc.video {
				t.Fatalf("video entitled = %v, want %v", got, tc.video)
			}
		})
	}
}

func TestExpiredPremiumMatchesFree(t *testing.T) {
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	expired := Subscription{UserID: "u1", PlanType: PlanPremium, Status: SubscriptionActive, ExpiresAt: &yesterday}

	eff := expired.Effective(now)
	if eff.PlanType != PlanFree || eff.Status != SubscriptionCancelled {
		t.Fatalf("Effective = %s/%s, want free/cancelled", eff.PlanType, eff.Status)
	}
	features := DefaultPlanFeatures()
	free := FreeSubscription("u1")
	for _, kind := range []MediaKind{MediaKindImage, MediaKindVideo} {
		if features.Entitled(&expired, kind, now) != features.Entitled(&free, kind, now) {
			t.Fatalf("expired premium and free disagree for %s", kind)
		}
	}
}

func TestParsePlanFeatures(t *testing.T) {
	f, err := ParsePlanFeatures("premium=image,video; ultra=image,video")
	if err != nil {
		t.Fatalf("ParsePlanFeatures error: %v", err)
	}
	if !f.Allows(PlanPremium, MediaKindVideo) {
		t.Fatalf("expected premium video")
	}
	if f.Allows(PlanFree, MediaKindImage) {
		t.Fatalf("free must unlock nothing")
	}
	if got := f.Kinds(PlanUltra); len(got) != 2 || got[0] != MediaKindImage || got[1] != MediaKindVideo {
		t.Fatalf("Kinds(ultra) = %v", got)
	}

	for _, bad := range []string{"premium", "gold=image", "premium=audio"} {
		if _, err := ParsePlanFeatures(bad); err == nil {
			t.Fatalf("ParsePlanFeatures(%q) expected error", bad)
		}
	}
}

func TestParsePlanFeaturesDefaultMatchesBuiltin(t *testing.T) {
	parsed, err := ParsePlanFeatures("premium=image;ultra=image,video")
	if err != nil {
		t.Fatalf("ParsePlanFeatures error: %v", err)
	}
	builtin := DefaultPlanFeatures()
	for _, plan := range Plans {
		for _, kind := range []MediaKind{MediaKindImage, MediaKindVideo} {
			if parsed.Allows(plan, kind) != builtin.Allows(plan, kind) {
				t.Fatalf("%s/%s mismatch", plan, kind)
			}
		}
	}
}
