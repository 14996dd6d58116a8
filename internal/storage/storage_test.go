package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "generated/images/u1/a.png", want: "generated/images/u1/a.png"},
		{in: "/generated//videos/u1/b.mp4", want: "generated/videos/u1/b.mp4"},
		{in: `generated\images\c.png`, want: "generated/images/c.png"},
		{in: "./x.png", want: "x.png"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "../etc/passwd", wantErr: true},
		{in: "a/../../b", wantErr: true},
		{in: "a/..", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("sanitizeKey(%q) err = %v, want ErrInvalidKey", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestFileStorePutServeDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	url, err := store.Put(context.Background(), "generated/images/u1/j1-0.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://localhost:8080/static/generated/images/u1/j1-0.png" {
		t.Fatalf("url = %q", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "generated", "images", "u1", "j1-0.png.part")); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind")
	}

	srv := httptest.NewServer(http.StripPrefix("/static", store.Handler()))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/static/generated/images/u1/j1-0.png")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "png-bytes" {
		t.Fatalf("served %d %q", resp.StatusCode, body)
	}

	if err := store.Delete(context.Background(), "generated/images/u1/j1-0.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(context.Background(), "generated/images/u1/j1-0.png"); err != nil {
		t.Fatalf("Delete of missing file: %v", err)
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "http://x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "a.png", []byte("x"), "image/png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(" ", "http://x"); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestPublicURLs(t *testing.T) {
	if got := minioPublicURL(MinioOptions{Endpoint: "minio:9000", Bucket: "media"}); got != "http://minio:9000/media" {
		t.Fatalf("minio url = %q", got)
	}
	if got := minioPublicURL(MinioOptions{Endpoint: "minio:9000", Bucket: "media", UseSSL: true, PublicURL: "https://cdn.genesis.ai/"}); got != "https://cdn.genesis.ai" {
		t.Fatalf("minio public url = %q", got)
	}

	tests := []struct {
		opts S3Options
		want string
	}{
		{S3Options{Bucket: "media", Region: "ap-south-1"}, "https://media.s3.ap-south-1.amazonaws.com"},
		{S3Options{Bucket: "media", Endpoint: "http://localstack:4566", UsePathStyle: true}, "http://localstack:4566/media"},
		{S3Options{Bucket: "media", Endpoint: "https://r2.example.com"}, "https://media.r2.example.com"},
		{S3Options{Bucket: "media", PublicURL: "https://cdn.genesis.ai"}, "https://cdn.genesis.ai"},
	}
	for _, tc := range tests {
		if got := s3PublicURL(tc.opts); got != tc.want {
			t.Fatalf("s3PublicURL(%+v) = %q, want %q", tc.opts, got, tc.want)
		}
	}
}
