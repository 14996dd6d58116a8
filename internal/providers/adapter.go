// Package providers normalizes upstream generation APIs behind Adapter.
//
// Four variants cover every upstream in use: SyncREST answers with a URL in
// the initiate response, AsyncTask hands back a task id to poll, Queue adds a
// result fetch after the poll reports completion, and Stream blocks and
// returns the media bytes directly.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"genesis/internal/domain"
	"genesis/internal/metrics"
	"genesis/internal/polling"
)

// Families.
const (
	FamilySyncREST  = "syncrest"
	FamilyAsyncTask = "asynctask"
	FamilyQueue     = "queue"
	FamilyStream    = "stream"
)

// ErrMissingAPIKey is wrapped in domain.ErrProviderInit when no key resolves.
var ErrMissingAPIKey = errors.New("api key is not configured")

// ErrResponseTooLarge is returned when a provider body exceeds the client's
// MaxBodyBytes. The body is never truncated.
var ErrResponseTooLarge = errors.New("provider response exceeds size limit")

const defaultMaxBodyBytes = 64 << 20

// Adapter runs one generation against an upstream provider.
type Adapter interface {
	Kind() domain.MediaKind
	Family() string
	Spec() ModelSpec
	Invoke(ctx context.Context, job *domain.ProviderJob, req domain.GenerationRequest) (*Output, error)
}

// Output is the raw provider result. URL outputs are ephemeral provider
// links; Data is set for streaming providers.
type Output struct {
	URLs        []string
	Data        []byte
	ContentType string
	TaskID      string
}

// KeyFunc returns the current credential for a provider.
type KeyFunc func(ctx context.Context) string

// StaticKey returns a KeyFunc that always yields key.
func StaticKey(key string) KeyFunc {
	key = strings.TrimSpace(key)
	return func(context.Context) string { return key }
}

// Client is the HTTP plumbing shared by all adapters of one family.
type Client struct {
	family  string
	baseURL string
	key     KeyFunc
	http    *http.Client
	limiter *rate.Limiter
	maxBody int64
	log     zerolog.Logger
}

// ClientOptions configures a Client. Zero values select defaults.
type ClientOptions struct {
	Family         string
	BaseURL        string
	Key            KeyFunc
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	RPS            float64
	Burst          int
	MaxBodyBytes   int64 // larger bodies fail with ErrResponseTooLarge; default 64 MiB
	Logger         *zerolog.Logger
}

func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
		if opts.RPS > 1 {
			burst = int(opts.RPS)
		}
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	key := opts.Key
	if key == nil {
		key = StaticKey("")
	}
	var log zerolog.Logger
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "provider").Str("family", opts.Family).Logger()
	} else {
		log = zerolog.New(io.Discard)
	}
	return &Client{
		family:  opts.Family,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     key,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		maxBody: maxBody,
		log:     log,
	}
}

func (c *Client) Family() string { return c.family }

func (c *Client) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) apiKey(ctx context.Context) (string, error) {
	key := c.key(ctx)
	if key == "" {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrProviderInit, c.family, ErrMissingAPIKey)
	}
	return key, nil
}

// do sends req after waiting for the family limiter and returns the status
// and the body. A body over maxBody yields ErrResponseTooLarge.
func (c *Client) do(req *http.Request) (int, []byte, http.Header, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return 0, nil, nil, err
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(c.family, "error").Inc()
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	metrics.ProviderRequests.WithLabelValues(c.family, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return resp.StatusCode, nil, resp.Header, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		c.log.Warn().
			Str("url", req.URL.Redacted()).
			Int64("limit", c.maxBody).
			Msg("provider response over size limit")
		return resp.StatusCode, nil, resp.Header, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}
	c.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("provider call")
	return resp.StatusCode, body, resp.Header, nil
}

func ok(status int) bool { return status >= 200 && status < 300 }

// initError builds the terminal error for a rejected initiate call.
func initError(family string, status int, body []byte) error {
	return fmt.Errorf("%w: %s: status %d: %s", domain.ErrProviderInit, family, status, snippet(body))
}

// pollError keeps context errors intact and classifies transport failures
// during polling as generation failures.
func pollError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: poll: %v", domain.ErrProviderGeneration, err)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

// Budgets holds the poll budget per media kind.
type Budgets struct {
	Image polling.Budget
	Video polling.Budget
}

// DefaultBudgets are 2s x 30 for images and 3s x 100 for videos.
func DefaultBudgets() Budgets {
	return Budgets{
		Image: polling.Budget{Interval: 2 * time.Second, MaxAttempts: 30},
		Video: polling.Budget{Interval: 3 * time.Second, MaxAttempts: 100},
	}
}

func (b Budgets) For(kind domain.MediaKind) polling.Budget {
	if kind == domain.MediaKindVideo {
		return b.Video
	}
	return b.Image
}
