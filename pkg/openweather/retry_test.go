package openweather

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", p.MaxAttempts)
	}
	if p.BackoffFactor != 1*time.Second {
		t.Errorf("BackoffFactor = %v, want 1s", p.BackoffFactor)
	}

	for _, status := range []int{500, 502, 503, 504} {
		if _, ok := p.RetryStatuses[status]; !ok {
			t.Errorf("RetryStatuses missing %d", status)
		}
	}
	for _, status := range []int{400, 404, 429} {
		if _, ok := p.RetryStatuses[status]; ok {
			t.Errorf("RetryStatuses must not contain %d", status)
		}
	}

	if _, ok := p.RetryMethods[http.MethodGet]; !ok {
		t.Error("RetryMethods missing GET")
	}
	if _, ok := p.RetryMethods[http.MethodPost]; ok {
		t.Error("RetryMethods must not contain POST (mutating verb)")
	}
}

func TestCheckRetry(t *testing.T) {
	p := DefaultRetryPolicy()

	response := func(status int, method string) *http.Response {
		return &http.Response{
			StatusCode: status,
			Request:    &http.Request{Method: method},
		}
	}

	tests := []struct {
		name      string
		resp      *http.Response
		err       error
		wantRetry bool
	}{
		{
			name:      "connection-level failure retries",
			resp:      nil,
			err:       context.DeadlineExceeded,
			wantRetry: true,
		},
		{
			name:      "503 GET retries",
			resp:      response(503, http.MethodGet),
			wantRetry: true,
		},
		{
			name:      "500 GET retries",
			resp:      response(500, http.MethodGet),
			wantRetry: true,
		},
		{
			name:      "503 POST is terminal",
			resp:      response(503, http.MethodPost),
			wantRetry: false,
		},
		{
			name:      "404 is terminal",
			resp:      response(404, http.MethodGet),
			wantRetry: false,
		},
		{
			name:      "429 is terminal",
			resp:      response(429, http.MethodGet),
			wantRetry: false,
		},
		{
			name:      "200 is terminal success",
			resp:      response(200, http.MethodGet),
			wantRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, err := p.checkRetry(context.Background(), tt.resp, tt.err)
			if err != nil {
				t.Fatalf("checkRetry returned error: %v", err)
			}
			if retry != tt.wantRetry {
				t.Errorf("checkRetry = %v, want %v", retry, tt.wantRetry)
			}
		})
	}
}

func TestCheckRetry_ContextCancellation(t *testing.T) {
	p := DefaultRetryPolicy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retry, err := p.checkRetry(ctx, nil, context.Canceled)
	if retry {
		t.Error("checkRetry must not retry after context cancellation")
	}
	if err == nil {
		t.Error("checkRetry must surface the context error")
	}
}

func TestBackoff_ExponentialGrowth(t *testing.T) {
	p := RetryPolicy{BackoffFactor: 1 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}

	for _, tt := range tests {
		if got := p.backoff(0, 0, tt.attempt, nil); got != tt.want {
			t.Errorf("backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_ZeroFactor(t *testing.T) {
	p := RetryPolicy{BackoffFactor: 0}

	for attempt := 0; attempt < 4; attempt++ {
		if got := p.backoff(0, 0, attempt, nil); got != 0 {
			t.Errorf("backoff(attempt=%d) = %v, want 0", attempt, got)
		}
	}
}
