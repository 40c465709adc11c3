// Package openweather provides the resilient OpenWeather air pollution
// history client: one long-lived connection pool per Client, credential
// injection on every request, and transparent retries for transient
// provider failures.
package openweather

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/skyline-data/air-pollution-ingest/pkg/logging"
)

// Prometheus metrics for provider requests.
var (
	owRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openweather_requests_total",
		Help: "Total provider requests by city and terminal status",
	}, []string{"city", "status"})

	owRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openweather_request_duration_seconds",
		Help:    "Provider request duration in seconds by city, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"city"})

	owErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openweather_errors_total",
		Help: "Total provider errors by class",
	}, []string{"class"})
)

const (
	// defaultTimeout bounds each individual attempt, independent of the
	// retry budget's worst-case duration.
	defaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 10 << 20

	// bodySnippetBytes caps how much of an error body is carried in an HTTPError.
	bodySnippetBytes = 512
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the full history endpoint, e.g.
	// "https://api.openweathermap.org/data/2.5/air_pollution/history".
	// A trailing slash is stripped.
	BaseURL string

	// APIKey authenticates every request via the appid query parameter.
	// It is attached by the transport, never by call sites, and never logged.
	APIKey Secret

	// Retry governs transient-failure handling. The zero value means
	// DefaultRetryPolicy.
	Retry RetryPolicy

	// Timeout bounds each individual attempt (default 10s).
	Timeout time.Duration
}

// Client is the OpenWeather air pollution API client. It owns exactly one
// connection pool; concurrent fetches through the same Client are safe.
// Close must not be called while requests are in flight — that
// synchronization is the caller's responsibility.
type Client struct {
	baseURL   string
	apiKey    Secret
	retry     *retryablehttp.Client
	policy    RetryPolicy
	logger    zerolog.Logger
	closeOnce sync.Once
}

// New creates a new Client. The retry policy is compiled into the
// underlying transport here and cannot be changed afterwards.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey.IsEmpty() {
		return nil, &ConfigError{Field: "api key", Reason: "must not be empty"}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ConfigError{Field: "base url", Reason: err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &ConfigError{Field: "base url", Reason: "must be an absolute http(s) URL"}
	}

	policy := cfg.Retry
	def := DefaultRetryPolicy()
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BackoffFactor == 0 {
		policy.BackoffFactor = def.BackoffFactor
	}
	if policy.RetryStatuses == nil {
		policy.RetryStatuses = def.RetryStatuses
	}
	if policy.RetryMethods == nil {
		policy.RetryMethods = def.RetryMethods
	}
	if policy.MaxAttempts < 1 {
		return nil, &ConfigError{Field: "retry policy", Reason: "max attempts must be >= 1"}
	}
	if policy.BackoffFactor < 0 {
		return nil, &ConfigError{Field: "retry policy", Reason: "backoff factor must be non-negative"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := logging.NewLogger("openweather-client")

	rc := retryablehttp.NewClient()
	rc.RetryMax = policy.MaxAttempts - 1
	rc.CheckRetry = policy.checkRetry
	rc.Backoff = policy.backoff
	rc.Logger = nil // request logging happens in the hooks below
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			owRetriesTotal.Inc()
		}
		zerolog.Ctx(req.Context()).Debug().
			Int("attempt", attempt+1).
			Msg("Issuing provider request")
	}
	// Surface the last response after retry exhaustion so the caller can
	// report its status instead of a generic give-up error.
	rc.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		if numTries >= policy.MaxAttempts {
			owRetryExhaustedTotal.Inc()
		}
		if resp != nil {
			return resp, nil
		}
		return nil, err
	}
	rc.HTTPClient.Timeout = timeout
	rc.HTTPClient.Transport = &authTransport{
		apiKey: cfg.APIKey,
		next:   rc.HTTPClient.Transport,
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		retry:   rc,
		policy:  policy,
		logger:  logger,
	}, nil
}

// FetchHistoricalAirPollution retrieves historical air pollution data for
// a location and time range. city is an observability label only and is
// not sent to the provider. start and end are Unix epoch seconds; range
// plausibility is delegated to the provider. Retries for qualifying
// failures are invisible to the caller except as added latency.
//
// The returned payload is the decoded JSON response, structurally
// unchanged. Failures are *HTTPError for terminal non-2xx responses and
// *UnexpectedError for transport or decoding faults.
func (c *Client) FetchHistoricalAirPollution(ctx context.Context, city string, lat, lon float64, start, end int64) (map[string]any, error) {
	if lat < -90 || lat > 90 {
		return nil, &ConfigError{Field: "lat", Reason: "must be within [-90, 90]"}
	}
	if lon < -180 || lon > 180 {
		return nil, &ConfigError{Field: "lon", Reason: "must be within [-180, 180]"}
	}

	logger := c.logger.With().
		Str("city", city).
		Float64("lat", lat).
		Float64("lon", lon).
		Int64("start", start).
		Int64("end", end).
		Logger()
	ctx = logger.WithContext(ctx)

	startTime := time.Now()
	defer func() {
		owRequestDuration.WithLabelValues(city).Observe(time.Since(startTime).Seconds())
	}()

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build provider request")
		return nil, &UnexpectedError{Op: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.retry.Do(req)
	if err != nil {
		owErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		owRequestsTotal.WithLabelValues(city, "network_error").Inc()
		logger.Error().Err(err).Msg("Provider request failed")
		return nil, &UnexpectedError{Op: "execute request", Err: err}
	}
	defer resp.Body.Close()

	owRequestsTotal.WithLabelValues(city, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		owErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		logger.Error().Err(err).Int("status", resp.StatusCode).Msg("Failed to read provider response")
		return nil, &UnexpectedError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		owErrorsTotal.WithLabelValues(string(class)).Inc()
		logger.Error().
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Provider returned terminal error")
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		owErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		logger.Error().Err(err).Msg("Failed to decode provider response")
		return nil, &UnexpectedError{Op: "decode response", Err: err}
	}

	return payload, nil
}

// Close releases the connection pool's idle resources. It is safe to call
// more than once; only the first call has effect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.retry.HTTPClient.CloseIdleConnections()
		c.logger.Debug().Msg("Connection pool released")
	})
}

// With is the scoped-acquisition form: it constructs a Client, runs fn,
// and guarantees the connection pool is released exactly once on every
// exit path. A failure inside fn is logged at error level before release
// and returned unchanged.
func With(cfg Config, fn func(*Client) error) error {
	c, err := New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := fn(c); err != nil {
		c.logger.Error().Err(err).Msg("Scoped client usage failed")
		return err
	}
	return nil
}

// SetTransport replaces the underlying transport while keeping credential
// injection in place (for testing).
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.retry.HTTPClient.Transport = &authTransport{apiKey: c.apiKey, next: rt}
}

// ParseCoordinate normalizes a textual latitude or longitude to a float.
func ParseCoordinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &ConfigError{Field: "coordinate", Reason: "not a number: " + s}
	}
	return v, nil
}

// authTransport attaches the credential to every outgoing request as the
// appid query parameter. The original request is never mutated.
type authTransport struct {
	apiKey Secret
	next   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	q := clone.URL.Query()
	q.Set("appid", t.apiKey.Reveal())
	clone.URL.RawQuery = q.Encode()
	return t.next.RoundTrip(clone)
}

func (t *authTransport) CloseIdleConnections() {
	if tr, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		tr.CloseIdleConnections()
	}
}

// snippet truncates an error body for inclusion in HTTPError.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodySnippetBytes {
		return s[:bodySnippetBytes]
	}
	return s
}
