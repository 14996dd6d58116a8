package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"genesis/internal/domain"
	"genesis/internal/infra"
	"genesis/internal/jobgate"
	"genesis/internal/persist"
	"genesis/internal/polling"
	"genesis/internal/providers"
)

type stubAdapter struct {
	spec   providers.ModelSpec
	calls  int32
	invoke func(ctx context.Context, job *domain.ProviderJob) (*providers.Output, error)
}

func (a *stubAdapter) Kind() domain.MediaKind    { return a.spec.Kind }
func (a *stubAdapter) Family() string            { return a.spec.Family }
func (a *stubAdapter) Spec() providers.ModelSpec { return a.spec }

func (a *stubAdapter) Invoke(ctx context.Context, job *domain.ProviderJob, _ domain.GenerationRequest) (*providers.Output, error) {
	atomic.AddInt32(&a.calls, 1)
	if err := job.Advance(domain.ProviderRunning); err != nil {
		return nil, err
	}
	return a.invoke(ctx, job)
}

func (a *stubAdapter) Calls() int { return int(atomic.LoadInt32(&a.calls)) }

type stubResolver map[string]providers.Adapter

func (r stubResolver) Resolve(kind domain.MediaKind, modelID string) (providers.Adapter, error) {
	a, ok := r[modelID]
	if !ok || a.Kind() != kind {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedModel, modelID)
	}
	return a, nil
}

type stubEntitler struct {
	err   error
	calls int32
}

func (e *stubEntitler) Check(context.Context, string, domain.MediaKind) error {
	atomic.AddInt32(&e.calls, 1)
	return e.err
}

type stubResults struct {
	degrade bool
	err     error
}

func (r *stubResults) StoreAll(_ context.Context, sources []persist.Source, keyBase string) ([]*persist.Stored, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*persist.Stored, len(sources))
	for i, src := range sources {
		if r.degrade {
			out[i] = &persist.Stored{URL: src.URL, Degraded: true}
			continue
		}
		key := fmt.Sprintf("%s-%d.png", keyBase, i)
		out[i] = &persist.Stored{URL: "https://media.example.com/" + key, Key: key}
	}
	return out, nil
}

type memMedia struct {
	mu   sync.Mutex
	rows []domain.GeneratedMedia
}

func (m *memMedia) Insert(_ context.Context, media *domain.GeneratedMedia) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *media)
	return nil
}

func (m *memMedia) ListByUser(context.Context, string, domain.MediaKind, int) ([]domain.GeneratedMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GeneratedMedia(nil), m.rows...), nil
}

func (m *memMedia) GetByID(context.Context, string, string) (*domain.GeneratedMedia, error) {
	return nil, domain.ErrNotFound
}

func (m *memMedia) Delete(context.Context, string, string) error { return nil }

func (m *memMedia) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fixture struct {
	adapter  *stubAdapter
	ent      *stubEntitler
	results  *stubResults
	media    *memMedia
	markers  *jobgate.MemoryStore
	dispatch *Dispatcher
}

func imageSpec() providers.ModelSpec {
	return providers.ModelSpec{ID: "test-image", Name: "Test", Kind: domain.MediaKindImage, Family: providers.FamilySyncREST}
}

func newFixture(t *testing.T, opts Options, invoke func(ctx context.Context, job *domain.ProviderJob) (*providers.Output, error)) *fixture {
	t.Helper()
	if invoke == nil {
		invoke = func(context.Context, *domain.ProviderJob) (*providers.Output, error) {
			return &providers.Output{URLs: []string{"https://provider.example.com/tmp.png"}}, nil
		}
	}
	f := &fixture{
		adapter: &stubAdapter{spec: imageSpec(), invoke: invoke},
		ent:     &stubEntitler{},
		results: &stubResults{},
		media:   &memMedia{},
		markers: jobgate.NewMemoryStore(),
	}
	if opts.RunPolicy == "" {
		opts.RunPolicy = infra.RunPolicyAbort
	}
	gate := jobgate.New(f.markers, jobgate.Options{})
	f.dispatch = NewDispatcher(stubResolver{f.adapter.spec.ID: f.adapter}, f.ent, gate, f.results, f.media, opts)
	return f
}

func imageRequest() domain.GenerationRequest {
	return domain.GenerationRequest{Kind: domain.MediaKindImage, Prompt: "a lighthouse at dusk", ModelID: "test-image",
		Parameters: domain.Parameters{"aspect_ratio": "16:9"}}
}

func TestDispatchStoresMediaAndReleasesSlot(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	res, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Pending || res.Degraded || res.JobID == "" || res.MediaID == "" {
		t.Fatalf("result = %+v", res)
	}
	rows, _ := f.media.ListByUser(context.Background(), "user-1", "", 10)
	if len(rows) != 1 {
		t.Fatalf("media rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.JobID != res.JobID || row.URL != res.MediaURL || row.AspectRatioOrDuration != "16:9" || row.UserID != "user-1" {
		t.Fatalf("row = %+v", row)
	}
	if f.markers.Len() != 0 {
		t.Fatalf("marker left behind")
	}

	if _, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest()); err != nil {
		t.Fatalf("second Dispatch after completion: %v", err)
	}
}

func TestDispatchRejectionsLeaveNoMarker(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fixture, *domain.GenerationRequest)
		want   error
	}{
		{"empty prompt", func(_ *fixture, r *domain.GenerationRequest) { r.Prompt = "  " }, domain.ErrInvalidRequest},
		{"unknown model", func(_ *fixture, r *domain.GenerationRequest) { r.ModelID = "nope" }, domain.ErrUnsupportedModel},
		{"wrong kind", func(_ *fixture, r *domain.GenerationRequest) { r.Kind = domain.MediaKindVideo }, domain.ErrUnsupportedModel},
		{"bad aspect", func(_ *fixture, r *domain.GenerationRequest) { r.Parameters = domain.Parameters{"aspect_ratio": "7:5"} }, domain.ErrInvalidRequest},
		{"not entitled", func(f *fixture, _ *domain.GenerationRequest) { f.ent.err = domain.ErrEntitlement }, domain.ErrEntitlement},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{}, nil)
			req := imageRequest()
			tc.mutate(f, &req)

			_, err := f.dispatch.Dispatch(context.Background(), "user-1", req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if f.markers.Len() != 0 {
				t.Fatalf("marker created on rejection")
			}
			if f.adapter.Calls() != 0 {
				t.Fatalf("adapter invoked on rejection")
			}
		})
	}
}

func TestDispatchUnsupportedModelSkipsEntitlement(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	req := imageRequest()
	req.ModelID = "nope"
	_, _ = f.dispatch.Dispatch(context.Background(), "user-1", req)
	if atomic.LoadInt32(&f.ent.calls) != 0 {
		t.Fatalf("entitlement consulted for unsupported model")
	}
}

func TestDispatchSecondConcurrentCallConflicts(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(t, Options{}, func(context.Context, *domain.ProviderJob) (*providers.Output, error) {
		close(started)
		<-release
		return &providers.Output{URLs: []string{"https://provider.example.com/a.png"}}, nil
	})

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
		firstErr <- err
	}()
	<-started

	_, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if !errors.Is(err, domain.ErrConcurrency) || domain.KindOf(err) != domain.KindConcurrencyConflict {
		t.Fatalf("err = %v, want ConcurrencyConflict", err)
	}
	if f.adapter.Calls() != 1 {
		t.Fatalf("adapter calls = %d, want 1", f.adapter.Calls())
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if f.markers.Len() != 0 {
		t.Fatalf("markers left: %d", f.markers.Len())
	}
}

func TestDispatchProviderFailureClosesMarker(t *testing.T) {
	f := newFixture(t, Options{}, func(context.Context, *domain.ProviderJob) (*providers.Output, error) {
		return nil, fmt.Errorf("%w: upstream said FAILED", domain.ErrProviderGeneration)
	})

	_, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if domain.KindOf(err) != domain.KindProviderGeneration {
		t.Fatalf("kind = %s, want ProviderGeneration", domain.KindOf(err))
	}
	if f.markers.Len() != 0 {
		t.Fatalf("marker left behind after failure")
	}
	if f.media.Len() != 0 {
		t.Fatalf("media recorded for failed job")
	}
}

func TestDispatchPersistenceFailureClosesMarker(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.results.err = fmt.Errorf("%w: disk full", domain.ErrPersistenceFailed)

	_, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if domain.KindOf(err) != domain.KindPersistenceFailed {
		t.Fatalf("kind = %s, want PersistenceFailed", domain.KindOf(err))
	}
	if f.markers.Len() != 0 {
		t.Fatalf("marker left behind")
	}
}

func TestDispatchDegradedIsSuccess(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.results.degrade = true

	res, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Degraded || res.MediaURL != "https://provider.example.com/tmp.png" {
		t.Fatalf("result = %+v", res)
	}
	rows, _ := f.media.ListByUser(context.Background(), "user-1", "", 10)
	if len(rows) != 1 || !rows[0].Degraded {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestDispatchAbortPolicyCancellationClosesMarker(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, Options{RunPolicy: infra.RunPolicyAbort}, func(ctx context.Context, _ *domain.ProviderJob) (*providers.Output, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.dispatch.Dispatch(ctx, "user-1", imageRequest())
		errCh <- err
	}()
	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Dispatch did not return after cancellation")
	}
	if f.markers.Len() != 0 {
		t.Fatalf("marker left behind after cancellation")
	}
}

func TestDispatchDetachReturnsPendingAndFinishes(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, Options{RunPolicy: infra.RunPolicyDetach, AwaitTimeout: 20 * time.Millisecond},
		func(ctx context.Context, _ *domain.ProviderJob) (*providers.Output, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &providers.Output{URLs: []string{"https://provider.example.com/late.png"}}, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	res, err := f.dispatch.Dispatch(ctx, "user-1", imageRequest())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Pending || res.JobID == "" {
		t.Fatalf("result = %+v, want pending", res)
	}
	cancel()
	if f.markers.Len() != 1 {
		t.Fatalf("marker should stay running while the job continues")
	}

	close(release)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := f.dispatch.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	rows, _ := f.media.ListByUser(context.Background(), "user-1", "", 10)
	if len(rows) != 1 || rows[0].JobID != res.JobID {
		t.Fatalf("rows = %+v", rows)
	}
	if f.markers.Len() != 0 {
		t.Fatalf("marker left behind")
	}
}

func TestDispatchDetachReturnsResultWhenFast(t *testing.T) {
	f := newFixture(t, Options{RunPolicy: infra.RunPolicyDetach, AwaitTimeout: time.Second}, nil)

	res, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Pending || res.MediaID == "" {
		t.Fatalf("result = %+v", res)
	}
}

var oneShot = polling.Budget{Interval: time.Millisecond, MaxAttempts: 1}

func TestDispatchMaxRuntimeMapsToPollingTimeout(t *testing.T) {
	f := newFixture(t, Options{
		RunPolicy:    infra.RunPolicyDetach,
		AwaitTimeout: time.Second,
		MaxRuntime:   20 * time.Millisecond,
		Budgets:      providers.Budgets{Image: oneShot, Video: oneShot},
	}, func(ctx context.Context, _ *domain.ProviderJob) (*providers.Output, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if domain.KindOf(err) != domain.KindPollingTimeout {
		t.Fatalf("kind = %s (%v), want PollingTimeout", domain.KindOf(err), err)
	}
	if f.markers.Len() != 0 {
		t.Fatalf("marker left behind")
	}
}

func TestDispatchAbortPolicyBoundedByRunLimit(t *testing.T) {
	f := newFixture(t, Options{
		RunPolicy:  infra.RunPolicyAbort,
		MaxRuntime: 20 * time.Millisecond,
		Budgets:    providers.Budgets{Image: oneShot, Video: oneShot},
	}, func(ctx context.Context, _ *domain.ProviderJob) (*providers.Output, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := f.dispatch.Dispatch(context.Background(), "user-1", imageRequest())
	if domain.KindOf(err) != domain.KindPollingTimeout {
		t.Fatalf("kind = %s (%v), want PollingTimeout", domain.KindOf(err), err)
	}
	if f.markers.Len() != 0 {
		t.Fatalf("marker left behind")
	}
}

func TestDispatcherRunLimitCoversLongestBudget(t *testing.T) {
	d := NewDispatcher(stubResolver{}, &stubEntitler{}, nil, &stubResults{}, &memMedia{}, Options{
		MaxRuntime: time.Minute,
		Budgets: providers.Budgets{
			Image: polling.Budget{Interval: 2 * time.Second, MaxAttempts: 30},
			Video: polling.Budget{Interval: 3 * time.Second, MaxAttempts: 100},
		},
	})
	if got, want := d.RunLimit(), 297*time.Second+time.Minute; got != want {
		t.Fatalf("RunLimit = %s, want %s", got, want)
	}
}

func TestDispatchRequiresUser(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	if _, err := f.dispatch.Dispatch(context.Background(), "", imageRequest()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
