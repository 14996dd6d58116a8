// Package jobgate enforces at most one running generation per user.
//
// The only synchronization point is the active_jobs table: Start inserts a
// running marker and relies on the partial unique index
// active_jobs_one_running_per_user to reject a concurrent second insert.
// There is no in-process lock.
package jobgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genesis/internal/domain"
	"genesis/internal/metrics"
)

const (
	DefaultStaleAfter      = 10 * time.Minute
	defaultCompleteTimeout = 10 * time.Second
)

// Options configures a Gate. Zero values select defaults.
type Options struct {
	StaleAfter      time.Duration
	CompleteTimeout time.Duration
	Logger          *zerolog.Logger
	Now             func() time.Time
}

type Gate struct {
	repo            domain.ActiveJobRepository
	staleAfter      time.Duration
	completeTimeout time.Duration
	log             zerolog.Logger
	now             func() time.Time
}

func New(repo domain.ActiveJobRepository, opts Options) *Gate {
	g := &Gate{
		repo:            repo,
		staleAfter:      opts.StaleAfter,
		completeTimeout: opts.CompleteTimeout,
		now:             opts.Now,
	}
	if g.staleAfter <= 0 {
		g.staleAfter = DefaultStaleAfter
	}
	if g.completeTimeout <= 0 {
		g.completeTimeout = defaultCompleteTimeout
	}
	if g.now == nil {
		g.now = time.Now
	}
	if opts.Logger != nil {
		g.log = opts.Logger.With().Str("component", "jobgate").Logger()
	} else {
		g.log = zerolog.New(io.Discard)
	}
	return g
}

// Handle is the caller's claim on a running marker.
type Handle struct {
	Marker domain.ActiveJobMarker

	mu      sync.Mutex
	closed  bool
	outcome domain.JobStatus
}

func (h *Handle) ID() string { return h.Marker.ID }

// Outcome returns the terminal status once Complete has succeeded.
func (h *Handle) Outcome() (domain.JobStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.closed
}

// Start claims the user's single running slot. A concurrent claim loses with
// domain.ErrConcurrency.
func (g *Gate) Start(ctx context.Context, userID string, kind domain.MediaKind) (*Handle, error) {
	marker := domain.ActiveJobMarker{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobType:   kind,
		Status:    domain.JobStatusRunning,
		StartedAt: g.now().UTC(),
	}
	if err := g.repo.Insert(ctx, &marker); err != nil {
		if errors.Is(err, domain.ErrConcurrency) {
			metrics.JobGateConflicts.Inc()
			g.log.Info().Str("user_id", userID).Msg("start rejected: job already running")
		}
		return nil, err
	}
	g.log.Debug().Str("user_id", userID).Str("job_id", marker.ID).Str("kind", string(kind)).Msg("job started")
	return &Handle{Marker: marker}, nil
}

// Complete closes the marker with outcome and then deletes it. Repeated calls
// on the same handle are no-ops. The writes run on a context detached from
// ctx so a cancelled request still releases the user's slot.
func (g *Gate) Complete(ctx context.Context, h *Handle, outcome domain.JobStatus) error {
	if h == nil {
		return nil
	}
	if !outcome.Terminal() {
		return fmt.Errorf("jobgate: %q is not a terminal status", outcome)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.completeTimeout)
	defer cancel()

	now := g.now().UTC()
	updated, err := g.repo.Finish(ctx, h.Marker.ID, outcome, now)
	if err != nil {
		return fmt.Errorf("jobgate: complete %s: %w", h.Marker.ID, err)
	}
	if !updated {
		// already swept as stale
		g.log.Warn().Str("job_id", h.Marker.ID).Msg("marker no longer running at completion")
	}
	if err := g.repo.Delete(ctx, h.Marker.ID); err != nil {
		// the marker is terminal already; the next cleanup removes the row
		g.log.Warn().Err(err).Str("job_id", h.Marker.ID).Msg("delete completed marker")
	}

	h.closed = true
	h.outcome = outcome
	h.Marker.Status = outcome
	h.Marker.CompletedAt = &now
	return nil
}

// CleanupStale force closes the user's running marker when it is older than
// the stale threshold, so a crashed worker cannot lock the user out.
func (g *Gate) CleanupStale(ctx context.Context, userID string) (int64, error) {
	n, err := g.repo.DeleteStaleForUser(ctx, userID, g.cutoff())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.StaleJobsSwept.Add(float64(n))
		g.log.Info().Str("user_id", userID).Int64("removed", n).Msg("stale markers removed")
	}
	return n, nil
}

// SweepStale is CleanupStale across all users.
func (g *Gate) SweepStale(ctx context.Context) (int64, error) {
	n, err := g.repo.DeleteStale(ctx, g.cutoff())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.StaleJobsSwept.Add(float64(n))
	}
	return n, nil
}

// Active returns the user's running marker or domain.ErrNotFound.
func (g *Gate) Active(ctx context.Context, userID string) (*domain.ActiveJobMarker, error) {
	return g.repo.GetRunning(ctx, userID)
}

func (g *Gate) StaleAfter() time.Duration { return g.staleAfter }

func (g *Gate) cutoff() time.Time {
	return g.now().UTC().Add(-g.staleAfter)
}
