package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/waypoint-labs/roadwatch/internal/resilience"
)

// newTestFetcher shrinks the retry backoff so failure tests finish quickly.
func newTestFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "test-agent"
	}
	f := NewHTTPFetcher(opts)
	f.backoffBase = time.Millisecond
	return f
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"cameras":[]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	body, err := f.Download(context.Background(), srv.URL+"/cameras.json")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"cameras":[]}`, string(data))
}

func TestDownload_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	_, err := f.Download(context.Background(), srv.URL+"/restricted")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestDownload_RetriesTransientStatus(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 3})
	body, err := f.Download(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownload_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 2})
	_, err := f.Download(context.Background(), srv.URL+"/broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDownload_TerminalStatusNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 3})
	_, err := f.Download(context.Background(), srv.URL+"/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDownload_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 2})
	_, err := f.Download(context.Background(), url+"/unreachable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Download(ctx, srv.URL+"/data")
	require.Error(t, err)
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("shapefile bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	path := filepath.Join(t.TempDir(), "roads.zip")

	n, err := f.DownloadToFile(context.Background(), srv.URL+"/roads.zip", path)
	require.NoError(t, err)
	assert.Equal(t, int64(15), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "shapefile bytes", string(data))
}

func TestDownloadToFile_BadPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	path := filepath.Join(t.TempDir(), "missing", "out.bin")

	_, err := f.DownloadToFile(context.Background(), srv.URL+"/data", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create file")
}

func TestRateLimiting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// httptest binds to 127.0.0.1; limiter keys are hostnames without ports.
	f := newTestFetcher(HTTPOptions{
		MaxRetries:   1,
		RateLimiters: map[string]*rate.Limiter{"127.0.0.1": rate.NewLimiter(2, 1)},
	})

	start := time.Now()
	for range 3 {
		body, err := f.Download(context.Background(), srv.URL+"/limited")
		require.NoError(t, err)
		body.Close()
	}

	// 2 req/s with burst 1 spaces three requests across at least a second.
	assert.GreaterOrEqual(t, time.Since(start).Milliseconds(), int64(900))
}

func TestLimiter_KnownHost(t *testing.T) {
	lim := rate.NewLimiter(1, 1)
	f := newTestFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{"overpass-api.de": lim},
	})

	assert.Same(t, lim, f.limiter("https://overpass-api.de/api/interpreter"))
}

func TestLimiter_StripsPort(t *testing.T) {
	lim := rate.NewLimiter(1, 1)
	f := newTestFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{"127.0.0.1": lim},
	})

	assert.Same(t, lim, f.limiter("http://127.0.0.1:8080/export.csv"))
}

func TestLimiter_UnknownHostFallback(t *testing.T) {
	f := newTestFetcher(HTTPOptions{})
	assert.Same(t, f.fallback, f.limiter("https://example.com/data"))
}

func TestLimiter_InvalidURL(t *testing.T) {
	f := newTestFetcher(HTTPOptions{})
	assert.Same(t, f.fallback, f.limiter("://not-a-url"))
}

func TestDefaultRateLimiters(t *testing.T) {
	limiters := DefaultRateLimiters()
	assert.Contains(t, limiters, "overpass-api.de")
	assert.Contains(t, limiters, "overpass.kumi.systems")
	assert.Contains(t, limiters, "download.geofabrik.de")
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "roadwatch/1.0", f.agent)
	assert.Equal(t, 3, f.retries)
	assert.Equal(t, 500*time.Millisecond, f.backoffBase)
	assert.NotNil(t, f.fallback)

	transport, ok := f.client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 4, transport.MaxIdleConnsPerHost)
}

func TestBackoffFor(t *testing.T) {
	d1 := backoffFor(500*time.Millisecond, 1)
	assert.GreaterOrEqual(t, d1, 500*time.Millisecond)
	assert.LessOrEqual(t, d1, 750*time.Millisecond)

	d2 := backoffFor(500*time.Millisecond, 2)
	assert.GreaterOrEqual(t, d2, time.Second)

	// Attempt 10 would be 256s uncapped.
	capped := backoffFor(500*time.Millisecond, 10)
	assert.GreaterOrEqual(t, capped, 15*time.Second)
	assert.LessOrEqual(t, capped, 22*time.Second+500*time.Millisecond)
}
