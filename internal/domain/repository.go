package domain

import (
	"context"
	"time"
)

// ActiveJobRepository persists single-flight markers. Insert must return
// ErrConcurrency when the user already has a running marker; the check is
// the storage layer's partial unique index, never a prior read.
type ActiveJobRepository interface {
	Insert(ctx context.Context, marker *ActiveJobMarker) error
	Finish(ctx context.Context, id string, status JobStatus, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteStaleForUser(ctx context.Context, userID string, startedBefore time.Time) (int64, error)
	DeleteStale(ctx context.Context, startedBefore time.Time) (int64, error)
	GetRunning(ctx context.Context, userID string) (*ActiveJobMarker, error)
}

// MediaRepository persists generation results.
type MediaRepository interface {
	Insert(ctx context.Context, media *GeneratedMedia) error
	ListByUser(ctx context.Context, userID string, kind MediaKind, limit int) ([]GeneratedMedia, error)
	GetByID(ctx context.Context, userID, id string) (*GeneratedMedia, error)
	Delete(ctx context.Context, userID, id string) error
}

// SubscriptionRepository reads and writes entitlement records. Get returns
// ErrNotFound when the user has no row.
type SubscriptionRepository interface {
	Get(ctx context.Context, userID string) (*Subscription, error)
	Downgrade(ctx context.Context, userID string, now time.Time) error
	Upsert(ctx context.Context, sub *Subscription) error
}
