// Package storage holds durable blob backends for generated media.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"genesis/internal/infra"
)

// ErrInvalidKey is returned for empty keys or keys escaping the root.
var ErrInvalidKey = errors.New("storage: invalid key")

// BlobStore stores bytes under a key and returns a public URL that is
// readable as soon as Put returns.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by STORAGE_BACKEND.
func New(ctx context.Context, cfg *infra.Config, log zerolog.Logger) (BlobStore, error) {
	switch cfg.StorageBackend {
	case "filesystem", "":
		return NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	case "minio":
		store, err := NewMinioStore(MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.StoragePublicURL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		log.Info().Str("bucket", cfg.MinioBucket).Msg("minio storage ready")
		return store, nil
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKeyID:  cfg.S3AccessKeyID,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			PublicURL:    cfg.StoragePublicURL,
		}, log)
	}
	return nil, fmt.Errorf("storage: unsupported backend %q", cfg.StorageBackend)
}

// sanitizeKey normalizes a key to a clean slash separated relative path.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := strings.TrimLeft(path.Clean("/"+key), "/")
	if cleaned == "" || strings.Contains(key, "../") || strings.HasSuffix(key, "/..") || key == ".." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
