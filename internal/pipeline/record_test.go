package pipeline

import (
	"encoding/json"
	"strings"
	"testing"
)

// rawList decodes a JSON array the way a provider payload arrives.
func rawList(t *testing.T, data string) []any {
	t.Helper()

	var list []any
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		t.Fatalf("Failed to decode raw list: %v", err)
	}
	return list
}

const validRecord = `{
  "dt": 1609459200,
  "main": {"aqi": 2},
  "components": {
    "co": 201.94, "no": 0.02, "no2": 0.77, "o3": 68.66,
    "so2": 0.64, "pm2_5": 0.5, "pm10": 0.54, "nh3": 0.12
  }
}`

func TestValidateBatch_AllValid(t *testing.T) {
	list := rawList(t, "["+validRecord+","+validRecord+"]")

	result := ValidateBatch(list, DefaultDQGate())

	if len(result.Valid) != 2 {
		t.Errorf("Valid = %d, want 2", len(result.Valid))
	}
	if len(result.Quarantined) != 0 {
		t.Errorf("Quarantined = %d, want 0", len(result.Quarantined))
	}
	if result.CriticalFailure {
		t.Error("CriticalFailure must be false for a clean batch")
	}
	if result.Valid[0].Dt != 1609459200 {
		t.Errorf("Dt = %d, want 1609459200", result.Valid[0].Dt)
	}
	if result.Valid[0].Components.PM25 != 0.5 {
		t.Errorf("PM25 = %v, want 0.5", result.Valid[0].Components.PM25)
	}
}

func TestValidateBatch_InvalidRecordsQuarantined(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{"negative component", `{"dt": 1609459200, "main": {"aqi": 2}, "components": {"co": -1, "no": 0, "no2": 0, "o3": 0, "so2": 0, "pm2_5": 0, "pm10": 0, "nh3": 0}}`},
		{"aqi missing", `{"dt": 1609459200, "main": {}, "components": {}}`},
		{"aqi out of range", `{"dt": 1609459200, "main": {"aqi": 6}, "components": {}}`},
		{"dt before era", `{"dt": 100, "main": {"aqi": 2}, "components": {}}`},
		{"dt after era", `{"dt": 9999999999, "main": {"aqi": 2}, "components": {}}`},
		{"not an object", `"nonsense"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := rawList(t, "["+validRecord+","+tt.record+"]")

			result := ValidateBatch(list, DefaultDQGate())

			if len(result.Valid) != 1 {
				t.Errorf("Valid = %d, want 1", len(result.Valid))
			}
			if len(result.Quarantined) != 1 {
				t.Fatalf("Quarantined = %d, want 1", len(result.Quarantined))
			}
			if result.Quarantined[0].Reason == "" {
				t.Error("Quarantined record must carry a failure reason")
			}
			if result.CriticalFailure {
				t.Error("One failure out of two must not be critical with default gate")
			}
		})
	}
}

func TestValidateBatch_CriticalOnFailureRate(t *testing.T) {
	records := make([]string, 0, 10)
	for i := 0; i < 4; i++ {
		records = append(records, validRecord)
	}
	for i := 0; i < 6; i++ {
		records = append(records, `{"dt": 1609459200, "main": {"aqi": 9}, "components": {}}`)
	}
	list := rawList(t, "["+strings.Join(records, ",")+"]")

	result := ValidateBatch(list, DefaultDQGate())

	if !result.CriticalFailure {
		t.Error("60% failures with 6 failed items must breach the default gate")
	}
	if result.FailureReason == "" {
		t.Error("Critical result must carry a failure reason")
	}
}

func TestValidateBatch_TotalFailureAlwaysCritical(t *testing.T) {
	list := rawList(t, `[{"dt": 1609459200, "main": {"aqi": 9}, "components": {}}]`)

	result := ValidateBatch(list, DefaultDQGate())

	if !result.CriticalFailure {
		t.Error("A batch with zero valid records must be critical regardless of thresholds")
	}
}

func TestValidateBatch_EmptyBatch(t *testing.T) {
	result := ValidateBatch(nil, DefaultDQGate())

	if len(result.Valid) != 0 || len(result.Quarantined) != 0 {
		t.Error("Empty batch must produce no records")
	}
	if result.CriticalFailure {
		t.Error("Empty batch must not be critical")
	}
}
