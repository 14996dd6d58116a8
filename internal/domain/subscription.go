package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanPremium PlanType = "premium"
	PlanUltra   PlanType = "ultra"
)

// Plans lists plan types in ascending order.
var Plans = []PlanType{PlanFree, PlanPremium, PlanUltra}

func ParsePlanType(raw string) (PlanType, error) {
	p := PlanType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Plans {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown plan %q", ErrInvalidRequest, raw)
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	switch s := SubscriptionStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case SubscriptionActive, SubscriptionInactive, SubscriptionCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, raw)
}

// Subscription is the entitlement record of a user.
type Subscription struct {
	UserID    string
	PlanType  PlanType
	Status    SubscriptionStatus
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether a paid plan has run past its expiry.
func (s Subscription) Expired(now time.Time) bool {
	return s.PlanType != PlanFree && s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Effective returns the subscription as it must be treated at now: expired
// paid plans read as free/cancelled.
func (s Subscription) Effective(now time.Time) Subscription {
	if s.Expired(now) {
		s.PlanType = PlanFree
		s.Status = SubscriptionCancelled
	}
	return s
}

// FreeSubscription is the implicit record of a user with no row.
func FreeSubscription(userID string) Subscription {
	return Subscription{UserID: userID, PlanType: PlanFree, Status: SubscriptionActive}
}

// PlanFeatures maps each plan to the media kinds it unlocks.
type PlanFeatures map[PlanType]map[MediaKind]bool

// DefaultPlanFeatures is premium=image;ultra=image,video.
func DefaultPlanFeatures() PlanFeatures {
	return PlanFeatures{
		PlanFree:    {},
		PlanPremium: {MediaKindImage: true},
		PlanUltra:   {MediaKindImage: true, MediaKindVideo: true},
	}
}

// ParsePlanFeatures reads "plan=kind,kind;plan=kind". Plans not mentioned
// unlock nothing.
func ParsePlanFeatures(raw string) (PlanFeatures, error) {
	out := PlanFeatures{}
	for _, p := range Plans {
		out[p] = map[MediaKind]bool{}
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, kinds, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("plan features: malformed entry %q", entry)
		}
		plan, err := ParsePlanType(name)
		if err != nil {
			return nil, fmt.Errorf("plan features: %w", err)
		}
		for _, k := range strings.Split(kinds, ",") {
			if strings.TrimSpace(k) == "" {
				continue
			}
			kind, err := ParseMediaKind(k)
			if err != nil {
				return nil, fmt.Errorf("plan features: %w", err)
			}
			out[plan][kind] = true
		}
	}
	return out, nil
}

// Allows reports whether plan unlocks kind.
func (f PlanFeatures) Allows(plan PlanType, kind MediaKind) bool {
	return f[plan][kind]
}

// Kinds returns the unlocked kinds of plan in stable order.
func (f PlanFeatures) Kinds(plan PlanType) []MediaKind {
	var out []MediaKind
	for k, ok := range f[plan] {
		if ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entitled reports whether sub grants kind at now. Inactive, cancelled, and
// expired subscriptions grant nothing regardless of plan.
func (f PlanFeatures) Entitled(sub *Subscription, kind MediaKind, now time.Time) bool {
	if sub == nil {
		return false
	}
	eff := sub.Effective(now)
	if eff.Status != SubscriptionActive {
		return false
	}
	return f.Allows(eff.PlanType, kind)
}

// PlanPrice is a monthly list price in minor units.
type PlanPrice struct {
	Plan     PlanType
	INRMinor int64
	USDMinor int64
}

// PlanPrices is the public price table.
var PlanPrices = []PlanPrice{
	{Plan: PlanFree},
	{Plan: PlanPremium, INRMinor: 79900, USDMinor: 999},
	{Plan: PlanUltra, INRMinor: 129900, USDMinor: 1599},
}
