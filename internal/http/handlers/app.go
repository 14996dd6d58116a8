package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"genesis/internal/domain"
	"genesis/internal/generation"
	"genesis/internal/middleware"
	"genesis/internal/providers"
)

// Dispatcher runs generations.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, req domain.GenerationRequest) (*generation.Result, error)
}

// Catalog lists dispatchable models.
type Catalog interface {
	Models(kind domain.MediaKind) []providers.ModelSpec
}

// ActiveJobs reports the caller's running marker.
type ActiveJobs interface {
	Active(ctx context.Context, userID string) (*domain.ActiveJobMarker, error)
}

// Subscriptions reads effective subscriptions.
type Subscriptions interface {
	Current(ctx context.Context, userID string) (*domain.Subscription, error)
	Features() domain.PlanFeatures
}

// BlobDeleter removes stored media files.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

type App struct {
	Dispatcher        Dispatcher
	Catalog           Catalog
	Jobs              ActiveJobs
	Media             domain.MediaRepository
	Blobs             BlobDeleter
	Subscriptions     Subscriptions
	SubscriptionStore domain.SubscriptionRepository
	// Ping checks the database for /v1/healthz. Nil skips the check.
	Ping   func(ctx context.Context) error
	Logger zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, kind domain.ErrorKind, message string) {
	a.json(w, code, map[string]errorBody{"error": {Kind: kind, Message: message}})
}

// fail renders err with the status of its kind. Internal errors are logged
// and their text is not exposed.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		log := zerolog.Ctx(r.Context())
		if log.GetLevel() == zerolog.Disabled {
			log = &a.Logger
		}
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
		if errors.Is(err, context.Canceled) {
			msg = "request cancelled"
		}
	}
	a.error(w, StatusForKind(kind), kind, msg)
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindUnsupportedModel, domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindEntitlementRequired, domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConcurrencyConflict:
		return http.StatusConflict
	case domain.KindProviderInit, domain.KindProviderGeneration, domain.KindPersistenceFailed:
		return http.StatusBadGateway
	case domain.KindPollingTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// decode reads a JSON body of at most 1 MiB into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidRequest)
	}
	return nil
}
