package providers

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"genesis/internal/domain"
)

// Request shapes for AsyncTask and Stream bodies.
const (
	shapeSeedream  = "seedream"
	shapeHailuo    = "hailuo"
	shapeKling     = "kling"
	shapeGateway   = "gateway"
	shapeInference = "inference"
)

// ModelSpec describes one selectable model.
type ModelSpec struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Kind   domain.MediaKind `json:"kind"`
	Family string           `json:"family"`
	// Path is the upstream path relative to the family base URL. A "{res}"
	// placeholder is replaced with the requested resolution.
	Path            string   `json:"-"`
	Shape           string   `json:"-"`
	Durations       []int    `json:"durations,omitempty"`
	DefaultDuration int      `json:"defaultDuration,omitempty"`
	Resolutions     []string `json:"resolutions,omitempty"`
	AcceptsImage    bool     `json:"acceptsImage"`
}

var imageAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3", "21:9"}

var videoDurations = []int{4, 6, 8, 10}

// Catalog lists every model the service can dispatch.
func Catalog() []ModelSpec {
	images := []ModelSpec{
		syncImage("flux-ultra-raw-1-1", "Flux Ultra Raw 1.1", "black-forest-labs/flux-ultra-raw-1.1"),
		syncImage("flux-kontext-pro", "Flux Kontext Pro", "black-forest-labs/flux-kontext-pro"),
		syncImage("flux-kontext-max", "Flux Kontext Max", "black-forest-labs/flux-kontext-max"),
		syncImage("google-nano-banana", "Google Nano Banana", "google/nano-banana"),
		syncImage("google-imagen-3", "Google Imagen 3", "google/imagen-3"),
		syncImage("google-imagen-4", "Google Imagen 4", "google/imagen-4"),
		syncImage("runway-gen-4-image", "Runway Gen-4 Image", "runway/gen4-image"),
		syncImage("ideogram-v3", "Ideogram V3", "ideogram/v3"),
		syncImage("openai-gpt-image", "OpenAI GPT Image", "openai/gpt-image"),
		{ID: "seedream-4", Name: "Seedream 4", Kind: domain.MediaKindImage, Family: FamilyAsyncTask,
			Path: "text-to-image/seedream-v4", Shape: shapeSeedream},
	}

	videos := []ModelSpec{
		{ID: "hailuo-02", Name: "Hailuo 02", Kind: domain.MediaKindVideo, Family: FamilyAsyncTask,
			Path: "image-to-video/minimax-hailuo-02-{res}", Shape: shapeHailuo,
			Durations: []int{6, 10}, DefaultDuration: 6, Resolutions: []string{"768p", "1080p"}, AcceptsImage: true},
		freepikKling("kling-2-5-pro", "Kling 2.5 Pro", "image-to-video/kling-v2-5-pro"),
		freepikKling("kling-v2-1-pro", "Kling 2.1 Pro", "image-to-video/kling-v2-1-pro"),
		freepikKling("kling-v2-1-master", "Kling 2.1 Master", "image-to-video/kling-v2-1-master"),

		falVideo("fal-ai/kling-video/v2.5-turbo/pro/text-to-video", "Kling 2.5 Turbo Pro", []int{5, 10}),
		falVideo("fal-ai/kling-video/v2.5/standard/text-to-video", "Kling 2.5 Standard", []int{5, 10}),
		falVideo("fal-ai/kling-video/v1.5/pro/text-to-video", "Kling 1.5 Pro", []int{5, 10}),
		falVideo("fal-ai/minimax/hailuo-02/standard/text-to-video", "MiniMax Hailuo 02 Standard", []int{6, 10}),

		gatewayVideo("veo-3-1-fast", "Veo 3.1 Fast", []int{4, 6, 8}, []string{"720p", "1080p"}),
		gatewayVideo("veo-3-1", "Veo 3.1", []int{4, 6, 8}, []string{"720p", "1080p"}),
		gatewayVideo("sora", "Sora", []int{4, 8, 12}, []string{"720p"}),
		gatewayVideo("sora-2-pro", "Sora 2 Pro", []int{4, 8, 12}, []string{"720p"}),

		inferenceVideo("Wan-AI/Wan2.2-T2V-A14B", "Wan 2.2 T2V A14B"),
		inferenceVideo("Wan-AI/Wan2.2-TI2V-5B", "Wan 2.2 TI2V 5B"),
		inferenceVideo("Wan-AI/Wan2.1-T2V-1.3B", "Wan 2.1 T2V 1.3B"),
		inferenceVideo("Lightricks/LTX-Video-0.9.7-distilled", "LTX Video 0.9.7"),
		inferenceVideo("tencent/HunyuanVideo", "HunyuanVideo"),
		inferenceVideo("genmo/mochi-1-preview", "Mochi 1 Preview"),
		inferenceVideo("zai-org/CogVideoX-5b", "CogVideoX 5B"),
		inferenceVideo("meituan-longcat/LongCat-Video", "LongCat Video"),
	}
	return append(images, videos...)
}

func syncImage(id, name, path string) ModelSpec {
	return ModelSpec{ID: id, Name: name, Kind: domain.MediaKindImage, Family: FamilySyncREST, Path: path}
}

func freepikKling(id, name, path string) ModelSpec {
	return ModelSpec{ID: id, Name: name, Kind: domain.MediaKindVideo, Family: FamilyAsyncTask,
		Path: path, Shape: shapeKling, Durations: []int{5, 10}, DefaultDuration: 5, AcceptsImage: true}
}

func falVideo(id, name string, durations []int) ModelSpec {
	return ModelSpec{ID: id, Name: name, Kind: domain.MediaKindVideo, Family: FamilyQueue,
		Path: id, Durations: durations, DefaultDuration: durations[0], AcceptsImage: true}
}

func gatewayVideo(id, name string, durations []int, resolutions []string) ModelSpec {
	return ModelSpec{ID: id, Name: name, Kind: domain.MediaKindVideo, Family: FamilyStream,
		Path: id, Shape: shapeGateway, Durations: durations, DefaultDuration: durations[0],
		Resolutions: resolutions, AcceptsImage: true}
}

func inferenceVideo(id, name string) ModelSpec {
	return ModelSpec{ID: id, Name: name, Kind: domain.MediaKindVideo, Family: FamilyStream,
		Path: id, Shape: shapeInference, Durations: videoDurations, DefaultDuration: 4,
		Resolutions: []string{"720p"}}
}

// Normalize validates the model specific parameters of req and fills in
// defaults. The returned request is a copy; req is not modified.
func (m ModelSpec) Normalize(req domain.GenerationRequest) (domain.GenerationRequest, error) {
	params := make(domain.Parameters, len(req.Parameters)+2)
	for k, v := range req.Parameters {
		params[k] = v
	}
	out := req
	out.Parameters = params

	if m.Kind == domain.MediaKindImage {
		ar := params.AspectRatio()
		if ar == "" {
			params[domain.ParamAspectRatio] = "1:1"
		} else if !slices.Contains(imageAspectRatios, ar) {
			return req, fmt.Errorf("%w: aspect ratio %q is not supported", domain.ErrInvalidRequest, ar)
		}
		return out, nil
	}

	if raw := params.Get(domain.ParamDuration); raw != "" {
		d, ok := params.Duration()
		if !ok {
			return req, fmt.Errorf("%w: invalid duration %q", domain.ErrInvalidRequest, raw)
		}
		if len(m.Durations) > 0 && !slices.Contains(m.Durations, d) {
			return req, fmt.Errorf("%w: %s supports durations %s", domain.ErrInvalidRequest, m.ID, joinInts(m.Durations))
		}
		params[domain.ParamDuration] = strconv.Itoa(d)
	} else if m.DefaultDuration > 0 {
		params[domain.ParamDuration] = strconv.Itoa(m.DefaultDuration)
	}

	if res := strings.ToLower(params.Resolution()); res != "" {
		if len(m.Resolutions) > 0 && !slices.Contains(m.Resolutions, res) {
			return req, fmt.Errorf("%w: %s supports resolutions %s", domain.ErrInvalidRequest, m.ID, strings.Join(m.Resolutions, ", "))
		}
		params[domain.ParamResolution] = res
	} else if len(m.Resolutions) > 0 {
		params[domain.ParamResolution] = m.Resolutions[0]
	}

	if params.SourceImage() != "" && !m.AcceptsImage {
		return req, fmt.Errorf("%w: %s does not accept a source image", domain.ErrInvalidRequest, m.ID)
	}
	return out, nil
}

func (m ModelSpec) path(params domain.Parameters) string {
	return strings.ReplaceAll(m.Path, "{res}", params.Resolution())
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v) + "s"
	}
	return strings.Join(parts, ", ")
}
