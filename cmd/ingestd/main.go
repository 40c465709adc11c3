package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	httpapi "github.com/skyline-data/air-pollution-ingest/internal/api/http"
	"github.com/skyline-data/air-pollution-ingest/internal/config"
	"github.com/skyline-data/air-pollution-ingest/internal/pipeline"
	"github.com/skyline-data/air-pollution-ingest/internal/scheduler"
	"github.com/skyline-data/air-pollution-ingest/internal/store"
	"github.com/skyline-data/air-pollution-ingest/pkg/logging"
	"github.com/skyline-data/air-pollution-ingest/pkg/openweather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		fallback := logging.NewLogger("main")
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	citiesCfg, err := config.LoadCities(cfg.CitiesPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CitiesPath).Msg("Failed to load cities")
	}
	cities := citiesCfg.Cities
	logger.Info().Int("cities", len(cities)).Msg("Cities loaded")

	// Warehouse
	db, err := gorm.Open(gormpg.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	warehouse := store.NewPollutionStore(db)
	if err := warehouse.Migrate(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate schema")
	}
	logger.Info().Str("host", cfg.DB.Host).Msg("Connected to postgres")

	// Watermark store
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
	}
	marks := store.NewWatermarkStore(redisClient)
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to redis")

	// Provider client
	client, err := openweather.New(openweather.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.Key,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create provider client")
	}
	defer client.Close()

	gate := pipeline.DQGate{
		ThresholdPercent: cfg.DQ.ThresholdPercent,
		MinFailedItems:   cfg.DQ.MinFailedItems,
	}
	ingestor := pipeline.NewIngestor(client, warehouse, marks, gate, cfg.FetchInterval)

	sched := scheduler.New(ingestor, cities, cfg.FetchInterval, cfg.FetchConcurrency)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	app := httpapi.NewApp()
	app.Use(recover.New())
	httpapi.RegisterRoutes(app, cities, marks, warehouse)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("HTTP server listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during HTTP shutdown")
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing redis client")
	}
}
