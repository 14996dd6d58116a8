package handlers

import (
	"net/http"
	"strings"

	"genesis/internal/domain"
	"genesis/internal/generation"
)

type generateRequest struct {
	Kind       string         `json:"kind"`
	Prompt     string         `json:"prompt"`
	ModelID    string         `json:"modelId"`
	Model      string         `json:"model"`
	Parameters map[string]any `json:"parameters"`

	// Flat parameter fields accepted for older clients.
	AspectRatio string `json:"aspect_ratio"`
	Duration    any    `json:"duration"`
	Resolution  string `json:"resolution"`
	Image       string `json:"image"`
}

func (g generateRequest) toDomain(kind domain.MediaKind) domain.GenerationRequest {
	raw := map[string]any{}
	for k, v := range g.Parameters {
		raw[k] = v
	}
	flat := map[string]any{
		domain.ParamAspectRatio: g.AspectRatio,
		domain.ParamDuration:    g.Duration,
		domain.ParamResolution:  g.Resolution,
		domain.ParamImage:       g.Image,
	}
	for k, v := range flat {
		if _, set := raw[k]; !set && v != nil {
			raw[k] = v
		}
	}
	model := strings.TrimSpace(g.ModelID)
	if model == "" {
		model = strings.TrimSpace(g.Model)
	}
	return domain.GenerationRequest{
		Kind:       kind,
		Prompt:     strings.TrimSpace(g.Prompt),
		ModelID:    model,
		Parameters: domain.ParametersFromJSON(raw),
	}
}

type generateResponse struct {
	Status    string           `json:"status"`
	JobID     string           `json:"jobId"`
	Kind      domain.MediaKind `json:"kind"`
	ModelID   string           `json:"modelId"`
	MediaID   string           `json:"mediaId,omitempty"`
	MediaURL  string           `json:"mediaUrl,omitempty"`
	MediaURLs []string         `json:"mediaUrls,omitempty"`
	ImageURL  string           `json:"imageUrl,omitempty"`
	VideoURL  string           `json:"videoUrl,omitempty"`
	Degraded  bool             `json:"degraded"`
	Warning   domain.ErrorKind `json:"warning,omitempty"`
}

func newGenerateResponse(res *generation.Result) generateResponse {
	out := generateResponse{
		Status:    "completed",
		JobID:     res.JobID,
		Kind:      res.Kind,
		ModelID:   res.ModelID,
		MediaID:   res.MediaID,
		MediaURL:  res.MediaURL,
		MediaURLs: res.MediaURLs,
		Degraded:  res.Degraded,
	}
	if res.Pending {
		out.Status = "pending"
		return out
	}
	if res.Kind == domain.MediaKindVideo {
		out.VideoURL = res.MediaURL
	} else {
		out.ImageURL = res.MediaURL
	}
	if res.Degraded {
		out.Warning = domain.KindPersistenceDegraded
	}
	return out
}

// Generate handles POST /v1/generate; the kind comes from the body.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	a.generate(w, r, "")
}

// ImagesGenerate handles POST /v1/images/generate.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	a.generate(w, r, domain.MediaKindImage)
}

// VideosGenerate handles POST /v1/videos/generate.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	a.generate(w, r, domain.MediaKindVideo)
}

func (a *App) generate(w http.ResponseWriter, r *http.Request, kind domain.MediaKind) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, domain.KindUnauthorized, "missing user context")
		return
	}
	var body generateRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	if kind == "" {
		parsed, err := domain.ParseMediaKind(body.Kind)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		kind = parsed
	}

	res, err := a.Dispatcher.Dispatch(r.Context(), userID, body.toDomain(kind))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if res.Pending {
		code = http.StatusAccepted
	}
	a.json(w, code, newGenerateResponse(res))
}
