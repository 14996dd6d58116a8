// Package generation turns a generation request into stored media: it
// checks entitlement, holds the user's single-flight slot, runs the provider
// adapter, persists the outputs, and records them.
package generation

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
	"genesis/internal/infra"
	"genesis/internal/jobgate"
	"genesis/internal/metrics"
	"genesis/internal/persist"
	"genesis/internal/providers"
)

// Resolver looks up the adapter for a model.
type Resolver interface {
	Resolve(kind domain.MediaKind, modelID string) (providers.Adapter, error)
}

// Entitler rejects users whose plan does not cover a kind.
type Entitler interface {
	Check(ctx context.Context, userID string, kind domain.MediaKind) error
}

// ResultStore copies provider outputs into durable storage.
type ResultStore interface {
	StoreAll(ctx context.Context, sources []persist.Source, keyBase string) ([]*persist.Stored, error)
}

// Result is what a caller gets back from Dispatch. Pending results carry only
// the job id; the media row appears once the background run finishes.
type Result struct {
	JobID     string
	MediaID   string
	MediaURL  string
	MediaURLs []string
	Kind      domain.MediaKind
	ModelID   string
	Degraded  bool
	Pending   bool
}

type Options struct {
	RunPolicy    string
	AwaitTimeout time.Duration
	MaxRuntime   time.Duration
	Budgets      providers.Budgets
	Logger       *zerolog.Logger
	Now          func() time.Time
}

type Dispatcher struct {
	resolver Resolver
	ent      Entitler
	gate     *jobgate.Gate
	results  ResultStore
	media    domain.MediaRepository

	policy       string
	awaitTimeout time.Duration
	maxRuntime   time.Duration
	budgets      providers.Budgets
	log          zerolog.Logger
	now          func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(resolver Resolver, ent Entitler, gate *jobgate.Gate, results ResultStore, media domain.MediaRepository, opts Options) *Dispatcher {
	d := &Dispatcher{
		resolver:     resolver,
		ent:          ent,
		gate:         gate,
		results:      results,
		media:        media,
		policy:       opts.RunPolicy,
		awaitTimeout: opts.AwaitTimeout,
		maxRuntime:   opts.MaxRuntime,
		budgets:      opts.Budgets,
		now:          opts.Now,
	}
	if d.policy == "" {
		d.policy = infra.RunPolicyDetach
	}
	if d.awaitTimeout <= 0 {
		d.awaitTimeout = 5 * time.Minute
	}
	if d.maxRuntime <= 0 {
		d.maxRuntime = 4 * time.Minute
	}
	if d.budgets.Image.MaxAttempts == 0 && d.budgets.Video.MaxAttempts == 0 {
		d.budgets = providers.DefaultBudgets()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if opts.Logger != nil {
		d.log = opts.Logger.With().Str("component", "dispatcher").Logger()
	} else {
		d.log = zerolog.New(io.Discard)
	}
	return d
}

// Dispatch runs one generation for userID. Every failure before the job
// slot is taken leaves no marker behind; every failure after it closes the
// marker as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, req domain.GenerationRequest) (*Result, error) {
	start := d.now()
	adapter, req, handle, err := d.admit(ctx, userID, req)
	if err != nil {
		if adapter == nil {
			// keep unknown model ids out of metric labels
			req = domain.GenerationRequest{Kind: req.Kind, ModelID: "unresolved"}
		}
		d.observe(req, err, start)
		return nil, err
	}

	if d.policy == infra.RunPolicyAbort {
		runCtx, cancel := context.WithTimeout(ctx, d.runLimit(req.Kind))
		defer cancel()
		return d.run(runCtx, userID, adapter, req, handle, start)
	}
	return d.detach(ctx, userID, adapter, req, handle, start)
}

// admit performs every check that must pass before a job slot is taken and
// then takes it.
func (d *Dispatcher) admit(ctx context.Context, userID string, req domain.GenerationRequest) (providers.Adapter, domain.GenerationRequest, *jobgate.Handle, error) {
	if userID == "" {
		return nil, req, nil, fmt.Errorf("%w: missing user", domain.ErrUnauthorized)
	}
	if err := req.Validate(); err != nil {
		return nil, req, nil, err
	}
	adapter, err := d.resolver.Resolve(req.Kind, req.ModelID)
	if err != nil {
		return nil, req, nil, err
	}
	normalized, err := adapter.Spec().Normalize(req)
	if err != nil {
		return adapter, req, nil, err
	}
	req = normalized
	if err := d.ent.Check(ctx, userID, req.Kind); err != nil {
		return adapter, req, nil, err
	}
	if _, err := d.gate.CleanupStale(ctx, userID); err != nil {
		return adapter, req, nil, fmt.Errorf("cleanup stale jobs: %w", err)
	}
	handle, err := d.gate.Start(ctx, userID, req.Kind)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrency) {
			return adapter, req, nil, fmt.Errorf("%w: a generation is already in progress", err)
		}
		return adapter, req, nil, fmt.Errorf("start job: %w", err)
	}
	return adapter, req, handle, nil
}

type runOutcome struct {
	res *Result
	err error
}

// detach runs the job on a context that survives the caller. The caller
// waits up to the await timeout and otherwise gets a pending result.
func (d *Dispatcher) detach(ctx context.Context, userID string, adapter providers.Adapter, req domain.GenerationRequest, h *jobgate.Handle, start time.Time) (*Result, error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.runLimit(req.Kind))

	done := make(chan runOutcome, 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		res, err := d.run(runCtx, userID, adapter, req, h, start)
		done <- runOutcome{res: res, err: err}
	}()

	timer := time.NewTimer(d.awaitTimeout)
	defer timer.Stop()
	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
	case <-ctx.Done():
	}
	d.log.Info().Str("job_id", h.ID()).Str("user_id", userID).Msg("caller stopped waiting; job continues in background")
	return &Result{JobID: h.ID(), Kind: req.Kind, ModelID: req.ModelID, Pending: true}, nil
}

// runLimit bounds one run of kind: its poll sleeps plus the max runtime.
func (d *Dispatcher) runLimit(kind domain.MediaKind) time.Duration {
	return d.budgets.For(kind).Wall() + d.maxRuntime
}

// RunLimit is the longest any single run may take. Shutdown drains
// background runs for this long.
func (d *Dispatcher) RunLimit() time.Duration {
	return max(d.runLimit(domain.MediaKindImage), d.runLimit(domain.MediaKindVideo))
}

// Wait blocks until background jobs finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context, userID string, adapter providers.Adapter, req domain.GenerationRequest, h *jobgate.Handle, start time.Time) (res *Result, err error) {
	log := d.log.With().Str("job_id", h.ID()).Str("user_id", userID).Str("model", req.ModelID).Logger()
	outcome := domain.JobStatusFailed
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("generation panicked")
			res, err = nil, fmt.Errorf("generation panicked: %v", r)
			outcome = domain.JobStatusFailed
		}
		if cerr := d.gate.Complete(ctx, h, outcome); cerr != nil {
			log.Error().Err(cerr).Msg("complete job marker")
		}
		d.observe(req, err, start)
		if err != nil {
			log.Warn().Err(err).Str("kind", string(domain.KindOf(err))).Msg("generation failed")
		}
	}()

	job := domain.NewProviderJob(h.ID(), req.ModelID, start)
	out, err := adapter.Invoke(ctx, job, req)
	if err != nil {
		return nil, classify(ctx, err)
	}

	stored, err := d.results.StoreAll(ctx, sourcesOf(out), persist.Key(req.Kind, userID, h.ID()))
	if err != nil {
		return nil, classify(ctx, err)
	}

	res = &Result{JobID: h.ID(), Kind: req.Kind, ModelID: req.ModelID}
	createdAt := d.now().UTC()
	for _, s := range stored {
		m := domain.GeneratedMedia{
			ID:                    uuid.NewString(),
			UserID:                userID,
			JobID:                 h.ID(),
			Kind:                  req.Kind,
			URL:                   s.URL,
			StorageKey:            s.Key,
			Prompt:                req.Prompt,
			ModelID:               req.ModelID,
			AspectRatioOrDuration: req.Descriptor(),
			Degraded:              s.Degraded,
			CreatedAt:             createdAt,
		}
		if err := d.media.Insert(ctx, &m); err != nil {
			return nil, classify(ctx, fmt.Errorf("record media: %w", err))
		}
		if res.MediaID == "" {
			res.MediaID = m.ID
			res.MediaURL = m.URL
		}
		res.MediaURLs = append(res.MediaURLs, m.URL)
		res.Degraded = res.Degraded || s.Degraded
	}
	if res.Degraded {
		log.Warn().Msg("result stored with provider url fallback")
	}
	outcome = domain.JobStatusCompleted
	log.Info().Int("outputs", len(stored)).Int("poll_attempts", job.Attempts).Dur("took", d.now().Sub(start)).Msg("generation completed")
	return res, nil
}

func sourcesOf(out *providers.Output) []persist.Source {
	if len(out.Data) > 0 {
		return []persist.Source{{Data: out.Data, ContentType: out.ContentType}}
	}
	sources := make([]persist.Source, 0, len(out.URLs))
	for _, u := range out.URLs {
		sources = append(sources, persist.Source{URL: u, ContentType: out.ContentType})
	}
	return sources
}

// classify maps a run deadline to PollingTimeout and leaves other errors
// untouched.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrPollingTimeout) {
		return fmt.Errorf("%w: run exceeded its deadline: %v", domain.ErrPollingTimeout, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("generation cancelled: %w", err)
	}
	return err
}

func (d *Dispatcher) observe(req domain.GenerationRequest, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	metrics.ObserveGeneration(string(req.Kind), req.ModelID, outcome, d.now().Sub(start))
}
