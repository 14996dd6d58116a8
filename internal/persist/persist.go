// Package persist copies provider results into durable blob storage.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"genesis/internal/domain"
	"genesis/internal/metrics"
	"genesis/internal/storage"
)

const (
	defaultAttempts = 3
	defaultMaxBytes = 200 << 20
	defaultInterval = 500 * time.Millisecond
)

// Source is one provider output: an ephemeral URL or inline bytes.
type Source struct {
	URL         string
	Data        []byte
	ContentType string
}

// Stored describes where a result ended up. Degraded results point at the
// provider URL because the durable copy failed.
type Stored struct {
	URL         string
	Key         string
	ContentType string
	Size        int64
	Degraded    bool
}

type Options struct {
	Attempts        int
	MaxBytes        int64
	InitialInterval time.Duration
	HTTPClient      *http.Client
	Logger          *zerolog.Logger
}

type Persister struct {
	store    storage.BlobStore
	client   *http.Client
	attempts int
	maxBytes int64
	interval time.Duration
	log      zerolog.Logger
}

func New(store storage.BlobStore, opts Options) *Persister {
	p := &Persister{
		store:    store,
		client:   opts.HTTPClient,
		attempts: opts.Attempts,
		maxBytes: opts.MaxBytes,
		interval: opts.InitialInterval,
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 60 * time.Second}
	}
	if p.attempts <= 0 {
		p.attempts = defaultAttempts
	}
	if p.maxBytes <= 0 {
		p.maxBytes = defaultMaxBytes
	}
	if p.interval <= 0 {
		p.interval = defaultInterval
	}
	if opts.Logger != nil {
		p.log = opts.Logger.With().Str("component", "persist").Logger()
	} else {
		p.log = zerolog.New(io.Discard)
	}
	return p
}

// Key is the storage key prefix for the outputs of one job.
func Key(kind domain.MediaKind, userID, jobID string) string {
	return fmt.Sprintf("generated/%ss/%s/%s", kind, userID, jobID)
}

// Store copies src into the blob store under keyBase plus a sniffed
// extension. Fetch and upload are retried with exponential backoff; when
// every attempt fails a URL source degrades to its original URL and a nil
// error. Inline sources have nothing to fall back to and fail with
// domain.ErrPersistenceFailed.
func (p *Persister) Store(ctx context.Context, src Source, keyBase string) (*Stored, error) {
	if src.URL == "" && len(src.Data) == 0 {
		return nil, fmt.Errorf("%w: empty provider output", domain.ErrPersistenceFailed)
	}

	var stored *Stored
	attempt := 0
	op := func() error {
		attempt++
		data, headerType := src.Data, src.ContentType
		if len(data) == 0 {
			var err error
			data, headerType, err = p.fetch(ctx, src.URL)
			if err != nil {
				return err
			}
		}
		ct, ext := detect(data, headerType)
		key := keyBase + ext
		url, err := p.store.Put(ctx, key, data, ct)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidKey) {
				return backoff.Permanent(err)
			}
			return err
		}
		stored = &Stored{URL: url, Key: key, ContentType: ct, Size: int64(len(data))}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.interval
	policy.MaxElapsedTime = 0
	err := backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.attempts-1)), ctx),
		func(err error, wait time.Duration) {
			p.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Str("key", keyBase).Msg("persist attempt failed")
		},
	)
	if err == nil {
		metrics.PersistTotal.WithLabelValues("stored").Inc()
		return stored, nil
	}

	if src.URL == "" {
		metrics.PersistTotal.WithLabelValues("failed").Inc()
		p.log.Error().Err(err).Str("key", keyBase).Msg("inline result could not be stored")
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	metrics.PersistTotal.WithLabelValues("degraded").Inc()
	p.log.Warn().Err(err).Str("key", keyBase).Str("url", src.URL).Msg("falling back to provider url")
	return &Stored{URL: src.URL, ContentType: src.ContentType, Degraded: true}, nil
}

// StoreAll persists every source concurrently. Results keep input order and
// key i gets the suffix "-i".
func (p *Persister) StoreAll(ctx context.Context, sources []Source, keyBase string) ([]*Stored, error) {
	out := make([]*Stored, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			s, err := p.Store(gctx, src, keyBase+"-"+strconv.Itoa(i))
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Persister) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", backoff.Permanent(fmt.Errorf("build fetch request: %w", err))
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("fetch result: status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, "", backoff.Permanent(err)
		}
		return nil, "", err
	}
	if resp.ContentLength > p.maxBytes {
		return nil, "", backoff.Permanent(fmt.Errorf("fetch result: %d bytes exceeds limit", resp.ContentLength))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read result: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, "", backoff.Permanent(fmt.Errorf("fetch result: body exceeds %d bytes", p.maxBytes))
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("fetch result: empty body")
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// detect prefers the sniffed type and falls back to the declared one when
// sniffing only yields a generic type.
func detect(data []byte, declared string) (string, string) {
	m := mimetype.Detect(data)
	if !m.Is("application/octet-stream") && !m.Is("text/plain") {
		return m.String(), m.Extension()
	}
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" {
		if lm := mimetype.Lookup(declared); lm != nil {
			return lm.String(), lm.Extension()
		}
		return declared, ""
	}
	return m.String(), ".bin"
}
