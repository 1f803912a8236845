package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/waypoint-labs/roadwatch/internal/resilience"
)

// detectRequest is the request body POSTed to the detection service.
type detectRequest struct {
	Image string `json:"image"` // base64-encoded
	Mime  string `json:"mime"`
}

// detectResponse is the detection service reply.
type detectResponse struct {
	Detections []Detection `json:"detections"`
}

// HTTPOption configures the HTTP detection client.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithLimiter overrides the default request pacing.
func WithLimiter(l *rate.Limiter) HTTPOption {
	return func(c *HTTPClient) {
		c.limiter = l
	}
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) HTTPOption {
	return func(c *HTTPClient) {
		c.breaker = cb
	}
}

// WithBreakerConfig rebuilds the breaker from cfg. State transitions keep
// the default logging unless cfg carries its own hook.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) HTTPOption {
	return func(c *HTTPClient) {
		if cfg.OnStateChange == nil {
			cfg.OnStateChange = defaultBreakerConfig().OnStateChange
		}
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) HTTPOption {
	return func(c *HTTPClient) {
		c.retry = cfg
	}
}

// HTTPClient calls an external vision detection service. Requests are
// paced by a token bucket, retried on transient failures, and skipped
// entirely while the circuit breaker is open.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
}

// NewHTTPClient creates a detector that POSTs images to endpoint.
func NewHTTPClient(endpoint string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		breaker: resilience.NewCircuitBreaker(defaultBreakerConfig()),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func defaultBreakerConfig() resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("detector circuit state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return cfg
}

// Detect sends the image to the detection service.
func (c *HTTPClient) Detect(ctx context.Context, image []byte, mime string) ([]Detection, error) {
	if len(image) == 0 {
		return nil, eris.New("detector: empty image")
	}

	body, err := json.Marshal(detectRequest{
		Image: base64.StdEncoding.EncodeToString(image),
		Mime:  mime,
	})
	if err != nil {
		return nil, eris.Wrap(err, "detector: marshal request")
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]Detection, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]Detection, error) {
			return c.post(ctx, body)
		})
	})
}

func (c *HTTPClient) post(ctx context.Context, body []byte) ([]Detection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "detector: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "detector: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "detector: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("detector: service returned %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("detector: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result detectResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "detector: unmarshal response")
	}

	return result.Detections, nil
}
