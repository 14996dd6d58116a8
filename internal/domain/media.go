package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MediaKind distinguishes image and video generation.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// ParseMediaKind accepts "image"/"video" in any case.
func ParseMediaKind(raw string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaKindImage:
		return MediaKindImage, nil
	case MediaKindVideo:
		return MediaKindVideo, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, raw)
}

// Well-known parameter names.
const (
	ParamAspectRatio = "aspect_ratio"
	ParamDuration    = "duration"
	ParamResolution  = "resolution"
	ParamImage       = "image"
	ParamSeed        = "seed"
)

// Parameters carries provider specific options as strings.
type Parameters map[string]string

// ParametersFromJSON converts decoded JSON values (numbers, bools, strings)
// into Parameters. Nil and nested values are dropped.
func ParametersFromJSON(raw map[string]any) Parameters {
	out := make(Parameters, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out[k] = s
			}
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		}
	}
	return out
}

func (p Parameters) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

func (p Parameters) AspectRatio() string { return p.Get(ParamAspectRatio) }
func (p Parameters) Resolution() string  { return p.Get(ParamResolution) }
func (p Parameters) SourceImage() string { return p.Get(ParamImage) }

// Duration returns the requested clip length in seconds. Values such as "6s"
// are accepted. ok is false when absent or unparsable.
func (p Parameters) Duration() (int, bool) {
	raw := strings.TrimSuffix(strings.TrimSpace(p.Get(ParamDuration)), "s")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// GenerationRequest is the immutable input of one dispatch.
type GenerationRequest struct {
	Kind       MediaKind
	Prompt     string
	ModelID    string
	Parameters Parameters
}

// Validate checks the model independent fields.
func (r GenerationRequest) Validate() error {
	if r.Kind != MediaKindImage && r.Kind != MediaKindVideo {
		return fmt.Errorf("%w: kind must be image or video", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ModelID) == "" {
		return fmt.Errorf("%w: modelId is required", ErrInvalidRequest)
	}
	return nil
}

// Descriptor is the aspect ratio for images or the duration for videos, as
// stored alongside the media row.
func (r GenerationRequest) Descriptor() string {
	if r.Kind == MediaKindVideo {
		if d, ok := r.Parameters.Duration(); ok {
			return strconv.Itoa(d) + "s"
		}
		return ""
	}
	return r.Parameters.AspectRatio()
}

// GeneratedMedia is a stored generation result owned by a user.
type GeneratedMedia struct {
	ID                    string
	UserID                string
	JobID                 string
	Kind                  MediaKind
	URL                   string
	StorageKey            string
	Prompt                string
	ModelID               string
	AspectRatioOrDuration string
	Degraded              bool
	CreatedAt             time.Time
}
