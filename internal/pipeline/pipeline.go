package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/skyline-data/air-pollution-ingest/internal/config"
	"github.com/skyline-data/air-pollution-ingest/internal/store"
	"github.com/skyline-data/air-pollution-ingest/pkg/logging"
)

// Prometheus metrics for ingest runs.
var (
	ingestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_runs_total",
		Help: "Total ingest runs by city and outcome",
	}, []string{"city", "outcome"})

	ingestRecordsLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_loaded_total",
		Help: "Measurement rows loaded into the warehouse by city",
	}, []string{"city"})

	ingestRecordsQuarantinedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_quarantined_total",
		Help: "Raw records rejected by validation by city",
	}, []string{"city"})

	ingestRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_run_duration_seconds",
		Help:    "End-to-end ingest run duration by city",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"city"})
)

// ErrDataQuality marks runs stopped by the data quality gate.
var ErrDataQuality = errors.New("data quality gate failed")

// Fetcher retrieves historical air pollution data for a location and time
// range. Satisfied by *openweather.Client.
type Fetcher interface {
	FetchHistoricalAirPollution(ctx context.Context, city string, lat, lon float64, start, end int64) (map[string]any, error)
}

// Warehouse persists transformed rows and quarantined records.
// Satisfied by *store.PollutionStore.
type Warehouse interface {
	ReplaceWindow(ctx context.Context, city string, rows []store.Measurement) error
	Quarantine(ctx context.Context, city string, recs []store.QuarantineRecord) error
}

// Watermarks tracks the last ingested window end per city.
// Satisfied by *store.WatermarkStore.
type Watermarks interface {
	Get(ctx context.Context, city string) (int64, error)
	Set(ctx context.Context, city string, ts int64) error
}

// Ingestor runs the fetch → validate → transform → load unit per city.
type Ingestor struct {
	fetcher   Fetcher
	warehouse Warehouse
	marks     Watermarks
	breaker   *gobreaker.CircuitBreaker
	gate      DQGate

	// defaultWindow is how far back a city's first ingest reaches when no
	// watermark exists yet.
	defaultWindow time.Duration

	logger zerolog.Logger
}

// NewIngestor creates an ingestor. The circuit breaker wraps provider
// fetches only, so the client's per-request retry accounting is unchanged;
// it merely stops a flapping provider from burning retry budget across
// consecutive runs.
func NewIngestor(fetcher Fetcher, warehouse Warehouse, marks Watermarks, gate DQGate, defaultWindow time.Duration) *Ingestor {
	if defaultWindow <= 0 {
		defaultWindow = 24 * time.Hour
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 2,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Ingestor{
		fetcher:       fetcher,
		warehouse:     warehouse,
		marks:         marks,
		breaker:       breaker,
		gate:          gate,
		defaultWindow: defaultWindow,
		logger:        logging.NewLogger("ingestor"),
	}
}

// IngestCity runs one ingest unit for a city, covering the window from the
// city's watermark (or the default lookback) to end. The watermark only
// advances after a successful load.
func (i *Ingestor) IngestCity(ctx context.Context, city config.City, end time.Time) error {
	logger := i.logger.With().Str("city", city.Name).Logger()
	startTime := time.Now()
	defer func() {
		ingestRunDuration.WithLabelValues(city.Name).Observe(time.Since(startTime).Seconds())
	}()

	endTs := end.Unix()
	startTs := end.Add(-i.defaultWindow).Unix()
	if wm, err := i.marks.Get(ctx, city.Name); err != nil {
		logger.Warn().Err(err).Msg("Watermark lookup failed, using default window")
	} else if wm > 0 && wm < endTs {
		startTs = wm
	}

	logger.Info().Int64("start", startTs).Int64("end", endTs).Msg("Starting ingest run")

	result, err := i.breaker.Execute(func() (any, error) {
		return i.fetcher.FetchHistoricalAirPollution(ctx, city.Name, float64(city.Lat), float64(city.Lon), startTs, endTs)
	})
	if err != nil {
		ingestRunsTotal.WithLabelValues(city.Name, "failed").Inc()
		logger.Error().Err(err).Msg("Provider fetch failed")
		return fmt.Errorf("fetch %s: %w", city.Name, err)
	}
	payload := result.(map[string]any)

	rawList, _ := payload["list"].([]any)
	if len(rawList) == 0 {
		// The watermark stays put so a later run can pick the window up.
		ingestRunsTotal.WithLabelValues(city.Name, "empty").Inc()
		logger.Warn().Msg("Provider returned no records for window")
		return nil
	}

	validation := ValidateBatch(rawList, i.gate)
	logger.Info().
		Int("total", len(rawList)).
		Int("valid", len(validation.Valid)).
		Int("quarantined", len(validation.Quarantined)).
		Bool("critical", validation.CriticalFailure).
		Msg("Batch validated")

	if len(validation.Quarantined) > 0 {
		ingestRecordsQuarantinedTotal.WithLabelValues(city.Name).Add(float64(len(validation.Quarantined)))
		if err := i.warehouse.Quarantine(ctx, city.Name, quarantineRows(city.Name, validation.Quarantined)); err != nil {
			ingestRunsTotal.WithLabelValues(city.Name, "failed").Inc()
			return err
		}
	}

	if validation.CriticalFailure {
		ingestRunsTotal.WithLabelValues(city.Name, "failed").Inc()
		logger.Error().Str("reason", validation.FailureReason).Msg("Run stopped by data quality gate")
		return fmt.Errorf("%w: %s", ErrDataQuality, validation.FailureReason)
	}

	rows := Transform(validation.Valid, city.Name)
	if err := i.warehouse.ReplaceWindow(ctx, city.Name, rows); err != nil {
		ingestRunsTotal.WithLabelValues(city.Name, "failed").Inc()
		return err
	}
	ingestRecordsLoadedTotal.WithLabelValues(city.Name).Add(float64(len(rows)))

	if err := i.marks.Set(ctx, city.Name, endTs); err != nil {
		logger.Warn().Err(err).Msg("Failed to advance watermark, next run will re-cover the window")
	}

	outcome := "ok"
	if len(validation.Quarantined) > 0 {
		outcome = "quarantined"
	}
	ingestRunsTotal.WithLabelValues(city.Name, outcome).Inc()
	logger.Info().Int("rows", len(rows)).Msg("Ingest run completed")
	return nil
}

// IngestAll ingests every city with bounded concurrency. Per-city failures
// are collected; one city failing never stops the others.
func (i *Ingestor) IngestAll(ctx context.Context, cities []config.City, end time.Time, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	jobs := make(chan config.City)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for city := range jobs {
				if err := i.IngestCity(ctx, city, end); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}

	for _, city := range cities {
		jobs <- city
	}
	close(jobs)
	wg.Wait()

	return errors.Join(errs...)
}

// quarantineRows converts rejected records into persistent quarantine rows.
func quarantineRows(city string, recs []QuarantinedRecord) []store.QuarantineRecord {
	now := time.Now().UTC()
	rows := make([]store.QuarantineRecord, 0, len(recs))
	for _, rec := range recs {
		raw := rec.Raw
		if raw == nil {
			raw = json.RawMessage("null")
		}
		rows = append(rows, store.QuarantineRecord{
			City:          city,
			Raw:           string(raw),
			Reason:        rec.Reason,
			QuarantinedAt: now,
		})
	}
	return rows
}
