package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/skyline-data/air-pollution-ingest/internal/config"
	"github.com/skyline-data/air-pollution-ingest/internal/store"
)

type fakeMarks struct {
	values map[string]int64
	err    error
}

func (f *fakeMarks) All(context.Context, []string) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

type fakeMeasurements struct {
	rows []store.Measurement
	err  error

	gotCity        string
	gotFrom, gotTo time.Time
}

func (f *fakeMeasurements) MeasurementsInWindow(_ context.Context, city string, from, to time.Time) ([]store.Measurement, error) {
	f.gotCity = city
	f.gotFrom = from
	f.gotTo = to
	return f.rows, f.err
}

func newTestApp(marks *fakeMarks, measurements *fakeMeasurements) *fiber.App {
	app := NewApp()
	cities := []config.City{
		{Name: "Berlin", Lat: 52.52, Lon: 13.405},
		{Name: "Paris", Lat: 48.8566, Lon: 2.3522},
	}
	RegisterRoutes(app, cities, marks, measurements)
	return app
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("Failed to decode JSON body %q: %v", body, err)
		}
	}
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	app := newTestApp(&fakeMarks{}, &fakeMeasurements{})

	resp, body := get(t, app, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestStatus(t *testing.T) {
	marks := &fakeMarks{values: map[string]int64{"Berlin": 1609545600}}
	app := newTestApp(marks, &fakeMeasurements{})

	resp, body := get(t, app, "/api/v1/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}

	cities, ok := body["cities"].([]any)
	if !ok || len(cities) != 2 {
		t.Fatalf("cities = %v, want 2 entries", body["cities"])
	}

	first := cities[0].(map[string]any)
	if first["city"] != "Berlin" || first["ingested"] != true {
		t.Errorf("Berlin entry = %v, want ingested", first)
	}
	if first["watermark"] != "2021-01-02T00:00:00Z" {
		t.Errorf("watermark = %v, want 2021-01-02T00:00:00Z", first["watermark"])
	}

	second := cities[1].(map[string]any)
	if second["ingested"] != false {
		t.Errorf("Paris entry = %v, want not ingested", second)
	}
}

func TestStatus_WatermarkStoreDown(t *testing.T) {
	marks := &fakeMarks{err: errors.New("connection refused")}
	app := newTestApp(marks, &fakeMeasurements{})

	resp, body := get(t, app, "/api/v1/status")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Status = %d, want 503", resp.StatusCode)
	}
	if body["error"] != true {
		t.Errorf("error = %v, want true", body["error"])
	}
}

func TestMeasurements(t *testing.T) {
	measurements := &fakeMeasurements{rows: []store.Measurement{
		{City: "Berlin", AQI: 2, AQICategory: "fair", MeasuredAt: time.Unix(1609459200, 0).UTC()},
	}}
	app := newTestApp(&fakeMarks{}, measurements)

	resp, body := get(t, app, "/api/v1/measurements?city=Berlin&from=1609459200&to=1609545600")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}

	if measurements.gotCity != "Berlin" {
		t.Errorf("Queried city = %q, want Berlin", measurements.gotCity)
	}
	if measurements.gotFrom.Unix() != 1609459200 || measurements.gotTo.Unix() != 1609545600 {
		t.Errorf("Window = %d..%d, want 1609459200..1609545600",
			measurements.gotFrom.Unix(), measurements.gotTo.Unix())
	}

	rows, ok := body["measurements"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("measurements = %v, want 1 entry", body["measurements"])
	}
}

func TestMeasurements_Validation(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing city", "/api/v1/measurements?from=1609459200&to=1609545600"},
		{"missing from", "/api/v1/measurements?city=Berlin&to=1609545600"},
		{"bad time format", "/api/v1/measurements?city=Berlin&from=yesterday&to=1609545600"},
		{"inverted window", "/api/v1/measurements?city=Berlin&from=1609545600&to=1609459200"},
	}

	app := newTestApp(&fakeMarks{}, &fakeMeasurements{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := get(t, app, tt.path)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(&fakeMarks{}, &fakeMeasurements{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Metrics output must contain runtime collectors")
	}
}
