package openweather

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry behaviour.
var (
	owRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openweather_retries_total",
		Help: "Total number of retry attempts against the provider",
	})

	owRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "openweather_retry_backoff_seconds",
		Help:    "Backoff duration before retry attempts",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	owRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openweather_retry_exhausted_total",
		Help: "Total number of requests that exhausted the retry budget",
	})
)

// RetryPolicy decides whether a failed attempt is retried, how many times,
// and with what backoff. It is attached to the connection pool at Client
// construction time and immutable afterwards.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the initial request.
	MaxAttempts int

	// BackoffFactor is the base delay multiplier. The wait before retry n
	// (1-based) is BackoffFactor * 2^(n-1).
	BackoffFactor time.Duration

	// RetryStatuses is the set of response status codes that qualify for
	// another attempt. Any status outside the set, all 4xx included, is
	// terminal on first occurrence.
	RetryStatuses map[int]struct{}

	// RetryMethods is the set of HTTP methods eligible for retry. Mutating
	// verbs stay out of the set so retries never repeat side effects.
	RetryMethods map[string]struct{}
}

// DefaultRetryPolicy returns the provider defaults: 5 total attempts,
// 1s backoff factor, retry on the transient server-side error codes, and
// read-only methods only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		BackoffFactor: 1 * time.Second,
		RetryStatuses: map[int]struct{}{
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
			http.StatusGatewayTimeout:      {},
		},
		RetryMethods: map[string]struct{}{
			http.MethodGet:  {},
			http.MethodHead: {},
		},
	}
}

// checkRetry implements retryablehttp.CheckRetry. A connection-level
// failure (no response at all) is retryable; a response is retryable only
// if both its status and the request method qualify. Context cancellation
// ends the attempt loop immediately.
func (p RetryPolicy) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if _, ok := p.RetryStatuses[resp.StatusCode]; !ok {
		return false, nil
	}
	if resp.Request != nil {
		if _, ok := p.RetryMethods[resp.Request.Method]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// backoff implements retryablehttp.Backoff using the policy's monotonic
// exponential growth. attemptNum is 0-based: the wait before the first
// retry is exactly BackoffFactor.
func (p RetryPolicy) backoff(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	wait := time.Duration(float64(p.BackoffFactor) * math.Pow(2, float64(attemptNum)))
	owRetryBackoffSeconds.Observe(wait.Seconds())
	return wait
}
