package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/waypoint-labs/roadwatch/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	// UserAgent identifies the importer to dataset hosts. Overpass mirrors
	// reject clients without one.
	UserAgent string

	// Timeout bounds the wait for response headers. Body reads are not
	// bounded, since extract downloads can run for minutes.
	Timeout time.Duration

	// MaxRetries is the number of attempts per request, including the first.
	MaxRetries int

	// RateLimiters overrides the per-host request limiters.
	RateLimiters map[string]*rate.Limiter
}

// DefaultRateLimiters returns the per-host limiters for the dataset mirrors
// the importer talks to. The public Overpass instances enforce roughly one
// query per second; Geofabrik extract downloads tolerate more.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"overpass-api.de":       rate.NewLimiter(1, 2),
		"overpass.kumi.systems": rate.NewLimiter(2, 2),
		"download.geofabrik.de": rate.NewLimiter(5, 5),
	}
}

// HTTPFetcher downloads datasets over HTTP with per-host rate limiting and
// retries on transient failures.
type HTTPFetcher struct {
	client      *http.Client
	agent       string
	retries     int
	backoffBase time.Duration
	limiters    map[string]*rate.Limiter
	fallback    *rate.Limiter
	log         *zap.Logger
}

// NewHTTPFetcher creates an HTTP fetcher. Zero-value options get defaults;
// hosts absent from RateLimiters share a permissive fallback limiter.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "roadwatch/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	limiters := opts.RateLimiters
	if limiters == nil {
		limiters = DefaultRateLimiters()
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: opts.Timeout,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		agent:       opts.UserAgent,
		retries:     opts.MaxRetries,
		backoffBase: 500 * time.Millisecond,
		limiters:    limiters,
		fallback:    rate.NewLimiter(10, 10),
		log:         zap.L().With(zap.String("component", "fetcher")),
	}
}

func (f *HTTPFetcher) limiter(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return f.fallback
	}
	if lim, ok := f.limiters[u.Hostname()]; ok {
		return lim
	}
	return f.fallback
}

// get issues the request, retrying network failures and transient HTTP
// statuses with doubling backoff. Non-transient statuses are returned to the
// caller as-is.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", f.agent)

	lim := f.limiter(rawURL)
	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limit wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		switch {
		case err != nil:
			lastErr = err
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			_ = resp.Body.Close()
			lastErr = resilience.NewTransientError(
				eris.Errorf("fetcher: %s answered %d", req.URL.Host, resp.StatusCode),
				resp.StatusCode,
			)
		default:
			return resp, nil
		}

		f.log.Warn("request failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt < f.retries && !sleep(ctx, backoffFor(f.backoffBase, attempt)) {
			break
		}
	}
	return nil, eris.Wrapf(lastErr, "fetcher: giving up on %s after %d attempts", rawURL, f.retries)
}

// backoffFor doubles from the base, caps at 15s, and adds up to 50% jitter.
func backoffFor(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > 15*time.Second {
		d = 15 * time.Second
	}
	return d + rand.N(d/2+1)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes the body to path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close()

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
