package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	"genesis/internal/domain"
	"genesis/internal/metrics"
	"genesis/internal/polling"
)

// AsyncTask initiates a task and polls GET {endpoint}/{taskId} until the
// task reports COMPLETED or FAILED.
type AsyncTask struct {
	client  *Client
	spec    ModelSpec
	budgets Budgets
}

func NewAsyncTask(client *Client, spec ModelSpec, budgets Budgets) *AsyncTask {
	return &AsyncTask{client: client, spec: spec, budgets: budgets}
}

func (a *AsyncTask) Kind() domain.MediaKind { return a.spec.Kind }
func (a *AsyncTask) Family() string         { return FamilyAsyncTask }
func (a *AsyncTask) Spec() ModelSpec        { return a.spec }

type taskEnvelope struct {
	Data struct {
		TaskID    string   `json:"task_id"`
		Status    string   `json:"status"`
		Generated []string `json:"generated"`
	} `json:"data"`
}

type taskStatus struct {
	Status    string
	Generated []string
}

var seedreamAspect = map[string]string{
	"1:1":  "square_1_1",
	"16:9": "widescreen_16_9",
	"9:16": "social_story_9_16",
	"4:3":  "classic_4_3",
	"3:4":  "traditional_3_4",
	"3:2":  "standard_3_2",
	"2:3":  "portrait_2_3",
	"21:9": "cinematic_21_9",
}

func (a *AsyncTask) body(req domain.GenerationRequest) map[string]any {
	p := req.Parameters
	body := map[string]any{"prompt": req.Prompt}
	switch a.spec.Shape {
	case shapeSeedream:
		ar, found := seedreamAspect[p.AspectRatio()]
		if !found {
			ar = "square_1_1"
		}
		body["aspect_ratio"] = ar
		body["guidance_scale"] = 2.5
		seed, err := strconv.Atoi(p.Get(domain.ParamSeed))
		if err != nil {
			seed = rand.Intn(1073741823)
		}
		body["seed"] = seed
	case shapeHailuo:
		d, _ := p.Duration()
		body["prompt_optimizer"] = true
		body["duration"] = d
		if img := p.SourceImage(); img != "" {
			body["first_frame_image"] = img
		}
	case shapeKling:
		d, _ := p.Duration()
		body["duration"] = strconv.Itoa(d)
		body["cfg_scale"] = 0.5
		if img := p.SourceImage(); img != "" {
			body["image"] = img
		}
	}
	return body
}

func (a *AsyncTask) Invoke(ctx context.Context, job *domain.ProviderJob, req domain.GenerationRequest) (*Output, error) {
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
	httpReq.Header.Set("x-freepik-api-key", key)

	status, body, _, err := a.client.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProviderInit, a.spec.ID, err)
	}
	if !ok(status) {
		return nil, initError(FamilyAsyncTask, status, body)
	}
	var started taskEnvelope
	if err := json.Unmarshal(body, &started); err != nil || started.Data.TaskID == "" {
		return nil, fmt.Errorf("%w: %s: no task id in response: %s", domain.ErrProviderInit, a.spec.ID, snippet(body))
	}
	if err := job.Advance(domain.ProviderRunning); err != nil {
		return nil, err
	}
	job.ProviderTaskID = started.Data.TaskID

	statusURL := endpoint + "/" + started.Data.TaskID
	final, attempts, err := polling.Poll(ctx, a.budgets.For(a.spec.Kind),
		func(ctx context.Context) (taskStatus, error) { return a.status(ctx, statusURL, key) },
		func(s taskStatus) bool { return s.Status == "COMPLETED" && len(s.Generated) > 0 },
		func(s taskStatus) bool {
			return s.Status == "FAILED" || (s.Status == "COMPLETED" && len(s.Generated) == 0)
		},
	)
	job.Attempts = attempts
	metrics.PollAttempts.WithLabelValues(FamilyAsyncTask).Observe(float64(attempts))
	if err != nil {
		_ = job.Advance(domain.ProviderFailed)
		return nil, fmt.Errorf("%s task %s: %w", a.spec.ID, job.ProviderTaskID, err)
	}
	if err := job.Advance(domain.ProviderCompleted); err != nil {
		return nil, err
	}
	return &Output{URLs: final.Generated, TaskID: job.ProviderTaskID}, nil
}

func (a *AsyncTask) status(ctx context.Context, statusURL, key string) (taskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return taskStatus{}, err
	}
	req.Header.Set("x-freepik-api-key", key)

	status, body, _, err := a.client.do(req)
	if err != nil {
		return taskStatus{}, pollError(ctx, err)
	}
	if !ok(status) {
		return taskStatus{}, fmt.Errorf("%w: poll status %d: %s", domain.ErrProviderGeneration, status, snippet(body))
	}
	var env taskEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return taskStatus{}, fmt.Errorf("%w: decode status: %v", domain.ErrProviderGeneration, err)
	}
	return taskStatus{Status: strings.ToUpper(env.Data.Status), Generated: env.Data.Generated}, nil
}
