// Package metrics provides the centralized Prometheus metrics registry for
// the air pollution ingest pipeline. All metrics are defined in their
// respective packages (openweather, pipeline) via promauto to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Provider Request Metrics (pkg/openweather):
//   - openweather_requests_total{city, status} (Counter): Terminal provider requests by city and HTTP status
//   - openweather_request_duration_seconds{city} (Histogram): Request duration by city, retries included
//   - openweather_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Retry Metrics (pkg/openweather):
//   - openweather_retries_total (Counter): Retry attempts against the provider
//   - openweather_retry_backoff_seconds (Histogram): Backoff duration before retries
//   - openweather_retry_exhausted_total (Counter): Requests that exhausted the retry budget
//
// Ingest Metrics (internal/pipeline):
//   - ingest_runs_total{city, outcome} (Counter): Ingest runs by city and outcome (ok, empty, quarantined, failed)
//   - ingest_records_loaded_total{city} (Counter): Measurement rows loaded into the warehouse
//   - ingest_records_quarantined_total{city} (Counter): Raw records rejected by validation
//   - ingest_run_duration_seconds{city} (Histogram): End-to-end ingest run duration
//
// Example Prometheus Queries:
//
//   # Provider Error Rate
//   rate(openweather_errors_total[5m])
//
//   # Retry Exhaustion Rate
//   rate(openweather_retry_exhausted_total[5m]) / rate(openweather_requests_total[5m])
//
//   # P95 Provider Latency
//   histogram_quantile(0.95, rate(openweather_request_duration_seconds_bucket[5m]))
//
//   # Quarantine Share per City
//   sum by (city) (rate(ingest_records_quarantined_total[1h])) /
//   sum by (city) (rate(ingest_records_loaded_total[1h]))
