// Package config loads pipeline configuration from the environment and
// the cities file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/skyline-data/air-pollution-ingest/pkg/logging"
	"github.com/skyline-data/air-pollution-ingest/pkg/openweather"
)

// APIConfig holds the provider endpoint and credential.
type APIConfig struct {
	BaseURL string
	Key     openweather.Secret
}

// DBConfig holds the warehouse connection settings.
type DBConfig struct {
	User     string
	Password openweather.Secret
	Host     string
	Port     int
	Name     string
}

// DSN builds the postgres connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password.Reveal(), c.Name, c.Port)
}

// RedisConfig holds the watermark store connection settings.
type RedisConfig struct {
	Addr string
	DB   int
}

// DQConfig holds the data quality gate parameters.
type DQConfig struct {
	// ThresholdPercent is the maximum acceptable validation failure rate.
	ThresholdPercent float64
	// MinFailedItems is the minimum number of failed records before the
	// rate threshold applies.
	MinFailedItems int
}

// AppConfig is the full pipeline configuration.
type AppConfig struct {
	API   APIConfig
	DB    DBConfig
	Redis RedisConfig
	DQ    DQConfig

	// FetchInterval controls how often the scheduler ingests each city.
	FetchInterval time.Duration

	// FetchConcurrency bounds how many cities are ingested in parallel.
	FetchConcurrency int

	// CitiesPath points at the YAML cities file.
	CitiesPath string

	Port      string
	LogLevel  logging.LogLevel
	LogPretty bool
}

// Load reads configuration from the environment with sensible defaults.
// A .env file is honored when present.
func Load() (*AppConfig, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.API.BaseURL = getenvDefault("API_BASE_URL", "https://api.openweathermap.org/data/2.5/air_pollution/history")
	cfg.API.Key = openweather.Secret(os.Getenv("API_KEY"))
	if cfg.API.Key.IsEmpty() {
		return nil, fmt.Errorf("API_KEY is required")
	}

	cfg.DB.User = getenvDefault("DB_USER", "postgres")
	cfg.DB.Password = openweather.Secret(os.Getenv("DB_PASSWORD"))
	cfg.DB.Host = getenvDefault("DB_HOST", "localhost")
	cfg.DB.Name = getenvDefault("DB_NAME", "air_quality")
	port := getenvInt("DB_PORT", 5432)
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.DB.Port = port

	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.DB = getenvInt("REDIS_DB", 0)

	intervalStr := getenvDefault("FETCH_INTERVAL", "24h")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_INTERVAL: %w", err)
	}
	cfg.FetchInterval = interval

	cfg.FetchConcurrency = getenvInt("FETCH_CONCURRENCY", 4)
	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY must be >= 1, got %d", cfg.FetchConcurrency)
	}

	cfg.CitiesPath = getenvDefault("CITIES_CONFIG", "cities.yml")

	cfg.DQ.ThresholdPercent = getenvFloat("DQ_THRESHOLD_PERCENT", 20.0)
	cfg.DQ.MinFailedItems = getenvInt("DQ_MIN_FAILED_ITEMS", 5)

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = logging.LogLevel(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogPretty = getenvDefault("LOG_PRETTY", "false") == "true"

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
