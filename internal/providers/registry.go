package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genesis/internal/domain"
	"genesis/internal/infra"
	"genesis/internal/infra/credentials"
	"genesis/internal/polling"
)

// Registry maps model ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for its model id.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Spec().ID] = a
}

// Resolve returns the adapter for modelID. Unknown ids and ids registered
// for the other media kind yield domain.ErrUnsupportedModel.
func (r *Registry) Resolve(kind domain.MediaKind, modelID string) (Adapter, error) {
	r.mu.RLock()
	a, found := r.adapters[modelID]
	r.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedModel, modelID)
	}
	if a.Kind() != kind {
		return nil, fmt.Errorf("%w: %q is a %s model", domain.ErrUnsupportedModel, modelID, a.Kind())
	}
	return a, nil
}

// Models lists registered models of kind, or all models when kind is empty,
// ordered by family then id.
func (r *Registry) Models(kind domain.MediaKind) []ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModelSpec, 0, len(r.adapters))
	for _, a := range r.adapters {
		if kind != "" && a.Kind() != kind {
			continue
		}
		out = append(out, a.Spec())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clients holds one Client per upstream. Gateway serves the hosted
// veo/sora models; Stream serves the inference models.
type Clients struct {
	SyncREST  *Client
	AsyncTask *Client
	Queue     *Client
	Stream    *Client
	Gateway   *Client
}

// Build registers an adapter for every catalog model whose client is set.
func Build(clients Clients, budgets Budgets) *Registry {
	reg := NewRegistry()
	for _, spec := range Catalog() {
		switch spec.Family {
		case FamilySyncREST:
			if clients.SyncREST != nil {
				reg.Register(NewSyncREST(clients.SyncREST, spec))
			}
		case FamilyAsyncTask:
			if clients.AsyncTask != nil {
				reg.Register(NewAsyncTask(clients.AsyncTask, spec, budgets))
			}
		case FamilyQueue:
			if clients.Queue != nil {
				reg.Register(NewQueue(clients.Queue, spec, budgets))
			}
		case FamilyStream:
			client := clients.Stream
			if spec.Shape == shapeGateway {
				client = clients.Gateway
			}
			if client != nil {
				reg.Register(NewStream(client, spec))
			}
		}
	}
	return reg
}

// FromConfig wires the clients from configuration. Keys are looked up in the
// credential store on every call and fall back to the environment.
func FromConfig(cfg *infra.Config, creds *credentials.Store, log *zerolog.Logger) *Registry {
	budgets := BudgetsFromConfig(cfg)
	key := func(provider, fallback string) KeyFunc {
		return func(ctx context.Context) string { return creds.Resolve(ctx, provider, fallback) }
	}
	client := func(family, base string, k KeyFunc, timeout time.Duration, maxBody int64) *Client {
		return NewClient(ClientOptions{
			Family:         family,
			BaseURL:        base,
			Key:            k,
			RequestTimeout: timeout,
			RPS:            cfg.ProviderRPS,
			MaxBodyBytes:   maxBody,
			Logger:         log,
		})
	}

	streamTimeout := budgets.Video.Wall()
	if streamTimeout < cfg.ProviderRequestTimeout {
		streamTimeout = cfg.ProviderRequestTimeout
	}
	clients := Clients{
		SyncREST:  client(FamilySyncREST, cfg.SyncRESTBaseURL, key(credentials.ProviderSyncREST, cfg.SyncRESTAPIKey), cfg.ProviderRequestTimeout, 0),
		AsyncTask: client(FamilyAsyncTask, cfg.FreepikBaseURL, key(credentials.ProviderFreepik, cfg.FreepikAPIKey), cfg.ProviderRequestTimeout, 0),
		Queue:     client(FamilyQueue, cfg.FalQueueBaseURL, key(credentials.ProviderFal, cfg.FalAPIKey), cfg.ProviderRequestTimeout, 0),
		Stream:    client(FamilyStream, cfg.StreamBaseURL, key(credentials.ProviderStream, cfg.StreamAPIKey), streamTimeout, cfg.PersistMaxBytes),
	}
	if cfg.VideoGatewayURL != "" {
		clients.Gateway = client(FamilyStream, cfg.VideoGatewayURL, key(credentials.ProviderVideoGateway, cfg.VideoGatewayAPIKey), streamTimeout, cfg.PersistMaxBytes)
	}
	return Build(clients, budgets)
}

// BudgetsFromConfig reads the per-kind poll budgets.
func BudgetsFromConfig(cfg *infra.Config) Budgets {
	return Budgets{
		Image: polling.Budget{Interval: cfg.ImagePollInterval, MaxAttempts: cfg.ImagePollAttempts},
		Video: polling.Budget{Interval: cfg.VideoPollInterval, MaxAttempts: cfg.VideoPollAttempts},
	}
}
