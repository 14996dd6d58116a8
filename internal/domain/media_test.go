package domain

import (
	"errors"
	"testing"
)

func TestParametersFromJSON(t *testing.T) {
	p := ParametersFromJSON(map[string]any{
		"aspect_ratio": " 16:9 ",
		"duration":     float64(6),
		"flag":         true,
		"empty":        "",
		"nested":       map[string]any{"x": 1},
		"nothing":      nil,
	})
	if p.AspectRatio() != "16:9" {
		t.Fatalf("aspect = %q", p.AspectRatio())
	}
	if d, ok := p.Duration(); !ok || d != 6 {
		t.Fatalf("duration = %d,%v want 6,true", d, ok)
	}
	if p.Get("flag") != "true" {
		t.Fatalf("flag = %q", p.Get("flag"))
	}
	for _, k := range []string{"empty", "nested", "nothing"} {
		if _, ok := p[k]; ok {
			t.Fatalf("%s should be dropped", k)
		}
	}
}

func TestDuration(t *testing.T) {
	tests := map[string]struct {
		n  int
		ok bool
	}{
		"6": {6, true}, "10s": {10, true}, "": {0, false}, "abc": {0, false}, "-4": {0, false},
	}
	for raw, want := range tests {
		n, ok := Parameters{ParamDuration: raw}.Duration()
		if n != want.n || ok != want.ok {
			t.Fatalf("Duration(%q) = %d,%v want %d,%v", raw, n, ok, want.n, want.ok)
		}
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	ok := GenerationRequest{Kind: MediaKindImage, Prompt: "a cat", ModelID: "flux-ultra-raw-1-1"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := []GenerationRequest{
		{Kind: "audio", Prompt: "x", ModelID: "m"},
		{Kind: MediaKindImage, Prompt: "   ", ModelID: "m"},
		{Kind: MediaKindVideo, Prompt: "x"},
	}
	for _, req := range bad {
		if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestDescriptor(t *testing.T) {
	img := GenerationRequest{Kind: MediaKindImage, Parameters: Parameters{ParamAspectRatio: "1:1"}}
	if img.Descriptor() != "1:1" {
		t.Fatalf("image descriptor = %q", img.Descriptor())
	}
	vid := GenerationRequest{Kind: MediaKindVideo, Parameters: Parameters{ParamDuration: "8"}}
	if vid.Descriptor() != "8s" {
		t.Fatalf("video descriptor = %q", vid.Descriptor())
	}
}
