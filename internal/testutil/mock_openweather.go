// Package testutil provides testing utilities for the air pollution
// ingest pipeline.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// ProviderResponse defines the behavior of one mock provider response.
type ProviderResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockProvider is a configurable stand-in for the OpenWeather history
// endpoint. Responses are served from a scripted sequence; once the
// sequence is exhausted the last entry repeats.
type MockProvider struct {
	server *httptest.Server

	mu        sync.RWMutex
	sequence  []ProviderResponse
	served    int
	lastQuery url.Values

	// RequestCount is the number of requests handled so far.
	RequestCount int
}

// NewMockProvider creates a started mock provider. The default response is
// 200 with an empty record list.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{
		sequence: []ProviderResponse{NewHistoryResponse(`{"list": []}`)},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.lastQuery = r.URL.Query()

		resp := mock.sequence[len(mock.sequence)-1]
		if mock.served < len(mock.sequence) {
			resp = mock.sequence[mock.served]
		}
		mock.served++
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Reset clears counters and restores the default response.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.served = 0
	m.lastQuery = nil
	m.sequence = []ProviderResponse{NewHistoryResponse(`{"list": []}`)}
}

// SetResponse configures a single response served for every request.
func (m *MockProvider) SetResponse(resp ProviderResponse) {
	m.SetSequence(resp)
}

// SetSequence configures a scripted sequence of responses. The last entry
// repeats once the sequence is exhausted.
func (m *MockProvider) SetSequence(resps ...ProviderResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = resps
	m.served = 0
}

// GetRequestCount returns the number of requests handled.
func (m *MockProvider) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the query parameters of the most recent request.
func (m *MockProvider) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// NewHistoryResponse creates a 200 OK response with the given JSON body.
func NewHistoryResponse(body string) ProviderResponse {
	return ProviderResponse{
		StatusCode: http.StatusOK,
		Body:       body,
	}
}

// NewServerErrorResponse creates a server-side error response with the
// given 5xx status.
func NewServerErrorResponse(status int) ProviderResponse {
	return ProviderResponse{
		StatusCode: status,
		Body:       `{"message": "internal error"}`,
	}
}

// NewClientErrorResponse creates a client error response with the given
// 4xx status.
func NewClientErrorResponse(status int) ProviderResponse {
	return ProviderResponse{
		StatusCode: status,
		Body:       `{"cod": "` + http.StatusText(status) + `"}`,
	}
}

// SampleHistoryBody is a realistic provider payload with a single record,
// for pipeline tests.
const SampleHistoryBody = `{
  "coord": {"lon": 13.405, "lat": 52.52},
  "list": [
    {
      "dt": 1609459200,
      "main": {"aqi": 2},
      "components": {
        "co": 201.94, "no": 0.02, "no2": 0.77, "o3": 68.66,
        "so2": 0.64, "pm2_5": 0.5, "pm10": 0.54, "nh3": 0.12
      }
    }
  ]
}`
