package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skyline-data/air-pollution-ingest/pkg/openweather"
)

// Coordinate is a latitude or longitude that accepts both numeric and
// string YAML values, normalized to a float on load.
type Coordinate float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Coordinate) UnmarshalYAML(value *yaml.Node) error {
	var f float64
	if err := value.Decode(&f); err == nil {
		*c = Coordinate(f)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("coordinate must be a number or numeric string: %w", err)
	}
	v, err := openweather.ParseCoordinate(s)
	if err != nil {
		return err
	}
	*c = Coordinate(v)
	return nil
}

// City is a geographic ingest target.
type City struct {
	Name string     `yaml:"name"`
	Lat  Coordinate `yaml:"lat"`
	Lon  Coordinate `yaml:"lon"`
}

// CitiesConfig is the set of cities the pipeline ingests.
type CitiesConfig struct {
	Cities []City `yaml:"cities"`
}

// LoadCities reads and validates the YAML cities file.
func LoadCities(path string) (*CitiesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities config: %w", err)
	}

	var cfg CitiesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse cities config: %w", err)
	}

	if len(cfg.Cities) == 0 {
		return nil, fmt.Errorf("cities config %s lists no cities", path)
	}
	for i, city := range cfg.Cities {
		if city.Name == "" {
			return nil, fmt.Errorf("city %d has no name", i)
		}
		if city.Lat < -90 || city.Lat > 90 {
			return nil, fmt.Errorf("city %s: latitude %v out of range", city.Name, float64(city.Lat))
		}
		if city.Lon < -180 || city.Lon > 180 {
			return nil, fmt.Errorf("city %s: longitude %v out of range", city.Name, float64(city.Lon))
		}
	}

	return &cfg, nil
}
