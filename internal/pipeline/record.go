// Package pipeline validates, transforms, and loads provider payloads.
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RawComponents holds pollutant concentrations as reported by the provider.
// All values must be non-negative measurements.
type RawComponents struct {
	CO   float64 `json:"co" validate:"gte=0"`
	NO   float64 `json:"no" validate:"gte=0"`
	NO2  float64 `json:"no2" validate:"gte=0"`
	O3   float64 `json:"o3" validate:"gte=0"`
	SO2  float64 `json:"so2" validate:"gte=0"`
	PM25 float64 `json:"pm2_5" validate:"gte=0"`
	PM10 float64 `json:"pm10" validate:"gte=0"`
	NH3  float64 `json:"nh3" validate:"gte=0"`
}

// RawMain holds the overall air quality index, 1 (good) to 5 (very poor).
type RawMain struct {
	AQI int `json:"aqi" validate:"required,gte=1,lte=5"`
}

// RawRecord mirrors one entry of the provider's "list" payload.
// Dt is bounded to the plausible measurement era (2000-01-01 to 2050-01-01).
type RawRecord struct {
	Dt         int64         `json:"dt" validate:"required,gte=946681200,lte=2524604400"`
	Main       RawMain       `json:"main"`
	Components RawComponents `json:"components"`
}

// QuarantinedRecord carries a rejected raw record and its failure detail.
type QuarantinedRecord struct {
	Raw    json.RawMessage
	Reason string
}

// ValidationResult is the outcome of validating one raw batch.
type ValidationResult struct {
	Valid       []RawRecord
	Quarantined []QuarantinedRecord

	// CriticalFailure marks batches whose failure rate breaches the data
	// quality gate; such batches must not be loaded.
	CriticalFailure bool
	FailureReason   string
}

// DQGate holds the data quality thresholds applied per batch.
type DQGate struct {
	// ThresholdPercent is the maximum acceptable failure rate.
	ThresholdPercent float64
	// MinFailedItems is the minimum absolute failure count before the rate
	// threshold applies.
	MinFailedItems int
}

// DefaultDQGate mirrors the pipeline defaults: 20% failure rate with at
// least 5 failed records.
func DefaultDQGate() DQGate {
	return DQGate{ThresholdPercent: 20.0, MinFailedItems: 5}
}

// ValidateBatch validates raw provider records against the record schema
// and evaluates the data quality gate. Invalid records are quarantined
// with their failure detail rather than dropped silently. A batch where no
// record validates is always critical.
func ValidateBatch(raw []any, gate DQGate) ValidationResult {
	var result ValidationResult

	total := len(raw)
	if total == 0 {
		return result
	}

	for _, entry := range raw {
		data, err := json.Marshal(entry)
		if err != nil {
			result.Quarantined = append(result.Quarantined, QuarantinedRecord{
				Reason: fmt.Sprintf("unencodable record: %v", err),
			})
			continue
		}

		var rec RawRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			result.Quarantined = append(result.Quarantined, QuarantinedRecord{
				Raw:    data,
				Reason: fmt.Sprintf("malformed record: %v", err),
			})
			continue
		}
		if err := validate.Struct(rec); err != nil {
			result.Quarantined = append(result.Quarantined, QuarantinedRecord{
				Raw:    data,
				Reason: err.Error(),
			})
			continue
		}

		result.Valid = append(result.Valid, rec)
	}

	failed := len(result.Quarantined)
	failureRate := float64(failed) / float64(total) * 100

	rateBreached := failureRate > gate.ThresholdPercent && failed >= gate.MinFailedItems
	totalFailure := len(result.Valid) == 0

	if rateBreached || totalFailure {
		result.CriticalFailure = true
		result.FailureReason = fmt.Sprintf(
			"data quality gate breached: %.2f%% failures (threshold %.2f%%, min items %d)",
			failureRate, gate.ThresholdPercent, gate.MinFailedItems)
	}

	return result
}
