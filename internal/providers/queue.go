package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"genesis/internal/domain"
	"genesis/internal/metrics"
	"genesis/internal/polling"
)

// Queue submits to a request queue, polls status_url and then fetches the
// result from response_url.
type Queue struct {
	client  *Client
	spec    ModelSpec
	budgets Budgets
}

func NewQueue(client *Client, spec ModelSpec, budgets Budgets) *Queue {
	return &Queue{client: client, spec: spec, budgets: budgets}
}

func (a *Queue) Kind() domain.MediaKind { return a.spec.Kind }
func (a *Queue) Family() string         { return FamilyQueue }
func (a *Queue) Spec() ModelSpec        { return a.spec }

type queueSubmission struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type queueStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type queueResult struct {
	Video struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"video"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (r queueResult) urls() []string {
	if r.Video.URL != "" {
		return []string{r.Video.URL}
	}
	var out []string
	for _, img := range r.Images {
		if img.URL != "" {
			out = append(out, img.URL)
		}
	}
	return out
}

func (a *Queue) body(req domain.GenerationRequest) map[string]any {
	body := map[string]any{"prompt": req.Prompt}
	if d, found := req.Parameters.Duration(); found {
		body["duration"] = fmt.Sprintf("%d", d)
	}
	if ar := req.Parameters.AspectRatio(); ar != "" {
		body["aspect_ratio"] = ar
	}
	if img := req.Parameters.SourceImage(); img != "" {
		body["image_url"] = img
	}
	return body
}

func (a *Queue) authorize(req *http.Request, key string) {
	req.Header.Set("Authorization", "Key "+key)
}

func (a *Queue) Invoke(ctx context.Context, job *domain.ProviderJob, req domain.GenerationRequest) (*Output, error) {
	key, err := a.client.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := a.client.endpoint(a.spec.path(req.Parameters))

	payload, err := json.Marshal(a.body(req))
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrProviderInit, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrProviderInit, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.authorize(httpReq, key)

	status, body, _, err := a.client.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProviderInit, a.spec.ID, err)
	}
	if !ok(status) {
		return nil, initError(FamilyQueue, status, body)
	}
	var sub queueSubmission
	if err := json.Unmarshal(body, &sub); err != nil || sub.RequestID == "" {
		return nil, fmt.Errorf("%w: %s: no request id in response: %s", domain.ErrProviderInit, a.spec.ID, snippet(body))
	}
	if sub.StatusURL == "" {
		sub.StatusURL = endpoint + "/requests/" + sub.RequestID + "/status"
	}
	if sub.ResponseURL == "" {
		sub.ResponseURL = endpoint + "/requests/" + sub.RequestID
	}
	if err := job.Advance(domain.ProviderRunning); err != nil {
		return nil, err
	}
	job.ProviderTaskID = sub.RequestID

	_, attempts, err := polling.Poll(ctx, a.budgets.For(a.spec.Kind),
		func(ctx context.Context) (queueStatus, error) {
			var st queueStatus
			if err := a.getJSON(ctx, sub.StatusURL, key, &st); err != nil {
				return st, err
			}
			st.Status = strings.ToUpper(st.Status)
			return st, nil
		},
		func(s queueStatus) bool { return s.Status == "COMPLETED" && s.Error == "" },
		func(s queueStatus) bool {
			return s.Status == "FAILED" || s.Status == "ERROR" || (s.Status == "COMPLETED" && s.Error != "")
		},
	)
	job.Attempts = attempts
	metrics.PollAttempts.WithLabelValues(FamilyQueue).Observe(float64(attempts))
	if err != nil {
		_ = job.Advance(domain.ProviderFailed)
		return nil, fmt.Errorf("%s request %s: %w", a.spec.ID, sub.RequestID, err)
	}

	var result queueResult
	if err := a.getJSON(ctx, sub.ResponseURL, key, &result); err != nil {
		_ = job.Advance(domain.ProviderFailed)
		return nil, fmt.Errorf("%s request %s: %w", a.spec.ID, sub.RequestID, err)
	}
	urls := result.urls()
	if len(urls) == 0 {
		_ = job.Advance(domain.ProviderFailed)
		return nil, fmt.Errorf("%w: %s request %s: no media in result", domain.ErrProviderGeneration, a.spec.ID, sub.RequestID)
	}
	if err := job.Advance(domain.ProviderCompleted); err != nil {
		return nil, err
	}
	return &Output{URLs: urls, ContentType: result.Video.ContentType, TaskID: sub.RequestID}, nil
}

func (a *Queue) getJSON(ctx context.Context, target, key string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	a.authorize(req, key)

	status, body, _, err := a.client.do(req)
	if err != nil {
		return pollError(ctx, err)
	}
	if !ok(status) {
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderGeneration, status, snippet(body))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decode: %v", domain.ErrProviderGeneration, err)
	}
	return nil
}
