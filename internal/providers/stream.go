package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"genesis/internal/domain"
)

// Stream makes one blocking call that returns the media bytes.
type Stream struct {
	client *Client
	spec   ModelSpec
}

func NewStream(client *Client, spec ModelSpec) *Stream {
	return &Stream{client: client, spec: spec}
}

func (a *Stream) Kind() domain.MediaKind { return a.spec.Kind }
func (a *Stream) Family() string         { return FamilyStream }
func (a *Stream) Spec() ModelSpec        { return a.spec }

func (a *Stream) body(req domain.GenerationRequest) map[string]any {
	p := req.Parameters
	d, _ := p.Duration()
	if a.spec.Shape == shapeInference {
		params := map[string]any{}
		if d > 0 {
			params["duration"] = d
		}
		return map[string]any{"inputs": req.Prompt, "parameters": params}
	}
	body := map[string]any{"prompt": req.Prompt, "resolution": p.Resolution()}
	if d > 0 {
		body["duration"] = d
	}
	if ar := p.AspectRatio(); ar != "" {
		body["aspect_ratio"] = ar
	}
	if img := p.SourceImage(); img != "" {
		body["image"] = img
	}
	return body
}

func (a *Stream) Invoke(ctx context.Context, job *domain.ProviderJob, req domain.GenerationRequest) (*Output, error) {
	key, err := a.client.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(a.body(req))
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrProviderInit, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.endpoint(a.spec.path(req.Parameters)), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrProviderInit, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "video/*, image/*")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	if err := job.Advance(domain.ProviderRunning); err != nil {
		return nil, err
	}
	job.Attempts = 1

	status, body, header, err := a.client.do(httpReq)
	if err != nil {
		_ = job.Advance(domain.ProviderFailed)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderGeneration, a.spec.ID, err)
	}
	if !ok(status) {
		_ = job.Advance(domain.ProviderFailed)
		return nil, initError(FamilyStream, status, body)
	}

	contentType := header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		_ = job.Advance(domain.ProviderFailed)
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &failure)
		if failure.Error == "" {
			failure.Error = snippet(body)
		}
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrProviderGeneration, a.spec.ID, failure.Error)
	}
	if len(body) == 0 {
		_ = job.Advance(domain.ProviderFailed)
		return nil, fmt.Errorf("%w: %s: empty media payload", domain.ErrProviderGeneration, a.spec.ID)
	}
	if err := job.Advance(domain.ProviderCompleted); err != nil {
		return nil, err
	}
	return &Output{Data: body, ContentType: mediaType}, nil
}
