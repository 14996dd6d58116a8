package infra

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		marker  string
		wantErr bool
	}{
		{
			name:   "valid",
			query:  "--sql 0b9c1f3e-7a0d-4c57-9a44-5d7a61e0c001\nSELECT 1",
			marker: "0b9c1f3e-7a0d-4c57-9a44-5d7a61e0c001",
		},
		{
			name:   "leading whitespace",
			query:  "\n  --sql 0b9c1f3e-7a0d-4c57-9a44-5d7a61e0c001\nSELECT 1",
			marker: "0b9c1f3e-7a0d-4c57-9a44-5d7a61e0c001",
		},
		{name: "missing", query: "SELECT 1", wantErr: true},
		{name: "uppercase uuid", query: "--sql 0B9C1F3E-7A0D-4C57-9A44-5D7A61E0C001\nSELECT 1", wantErr: true},
		{name: "empty", query: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			marker, body, err := ExtractMarker(tc.query)
			if tc.wantErr {
				if !errors.Is(err, ErrMissingMarker) {
					t.Fatalf("err = %v, want ErrMissingMarker", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if marker != tc.marker {
				t.Fatalf("marker = %q, want %q", marker, tc.marker)
			}
			if strings.TrimSpace(body) != "SELECT 1" {
				t.Fatalf("body = %q, want SELECT 1", body)
			}
		})
	}
}
