package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"genesis/internal/domain"
)

// SyncREST answers the initiate call with the finished media URL.
type SyncREST struct {
	client *Client
	spec   ModelSpec
}

func NewSyncREST(client *Client, spec ModelSpec) *SyncREST {
	return &SyncREST{client: client, spec: spec}
}

func (a *SyncREST) Kind() domain.MediaKind { return a.spec.Kind }
func (a *SyncREST) Family() string         { return FamilySyncREST }
func (a *SyncREST) Spec() ModelSpec        { return a.spec }

type syncRESTResponse struct {
	ImageURL string `json:"image_url"`
	URL      string `json:"url"`
	Output   []struct {
		URL string `json:"url"`
	} `json:"output"`
	Error string `json:"error"`
}

func (r syncRESTResponse) urls() []string {
	var out []string
	if r.ImageURL != "" {
		out = append(out, r.ImageURL)
	} else if r.URL != "" {
		out = append(out, r.URL)
	}
	for _, o := range r.Output {
		if o.URL != "" {
			out = append(out, o.URL)
		}
	}
	return out
}

func (a *SyncREST) Invoke(ctx context.Context, job *domain.ProviderJob, req domain.GenerationRequest) (*Output, error) {
	key, err := a.client.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("prompt", req.Prompt)
	form.Set("aspect_ratio", req.Parameters.AspectRatio())
	if img := req.Parameters.SourceImage(); img != "" {
		form.Set("image_url", img)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.endpoint(a.spec.path(req.Parameters)), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrProviderInit, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-API-Key", key)

	status, body, _, err := a.client.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProviderInit, a.spec.ID, err)
	}
	if !ok(status) {
		return nil, initError(FamilySyncREST, status, body)
	}
	if err := job.Advance(domain.ProviderRunning); err != nil {
		return nil, err
	}
	job.Attempts = 1

	var parsed syncRESTResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		_ = job.Advance(domain.ProviderFailed)
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderGeneration, err)
	}
	urls := parsed.urls()
	if len(urls) == 0 {
		_ = job.Advance(domain.ProviderFailed)
		msg := parsed.Error
		if msg == "" {
			msg = "no media url in response"
		}
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrProviderGeneration, a.spec.ID, msg)
	}
	if err := job.Advance(domain.ProviderCompleted); err != nil {
		return nil, err
	}
	return &Output{URLs: urls}, nil
}
