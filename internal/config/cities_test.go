package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCitiesFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cities.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write cities file: %v", err)
	}
	return path
}

func TestLoadCities(t *testing.T) {
	path := writeCitiesFile(t, `
cities:
  - name: Berlin
    lat: 52.52
    lon: 13.405
  - name: London
    lat: 51.5072
    lon: -0.1276
`)

	cfg, err := LoadCities(path)
	if err != nil {
		t.Fatalf("LoadCities failed: %v", err)
	}

	if len(cfg.Cities) != 2 {
		t.Fatalf("len(Cities) = %d, want 2", len(cfg.Cities))
	}
	if cfg.Cities[0].Name != "Berlin" {
		t.Errorf("Cities[0].Name = %q, want Berlin", cfg.Cities[0].Name)
	}
	if float64(cfg.Cities[0].Lat) != 52.52 {
		t.Errorf("Cities[0].Lat = %v, want 52.52", cfg.Cities[0].Lat)
	}
	if float64(cfg.Cities[1].Lon) != -0.1276 {
		t.Errorf("Cities[1].Lon = %v, want -0.1276", cfg.Cities[1].Lon)
	}
}

func TestLoadCities_StringCoordinates(t *testing.T) {
	path := writeCitiesFile(t, `
cities:
  - name: Berlin
    lat: "52.52"
    lon: "13.405"
`)

	cfg, err := LoadCities(path)
	if err != nil {
		t.Fatalf("LoadCities failed: %v", err)
	}
	if float64(cfg.Cities[0].Lat) != 52.52 || float64(cfg.Cities[0].Lon) != 13.405 {
		t.Errorf("Coordinates = (%v, %v), want (52.52, 13.405)", cfg.Cities[0].Lat, cfg.Cities[0].Lon)
	}
}

func TestLoadCities_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty list", "cities: []"},
		{"missing name", "cities:\n  - lat: 1\n    lon: 2"},
		{"latitude out of range", "cities:\n  - name: Nowhere\n    lat: 95\n    lon: 0"},
		{"longitude out of range", "cities:\n  - name: Nowhere\n    lat: 0\n    lon: 200"},
		{"non-numeric coordinate", "cities:\n  - name: Nowhere\n    lat: north\n    lon: 0"},
		{"broken yaml", "cities: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCitiesFile(t, tt.content)
			if _, err := LoadCities(path); err == nil {
				t.Error("LoadCities must fail")
			}
		})
	}
}

func TestLoadCities_MissingFile(t *testing.T) {
	if _, err := LoadCities(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("LoadCities must fail for a missing file")
	}
}
