package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/skyline-data/air-pollution-ingest/pkg/logging"
)

// watermarkKeyPrefix namespaces watermark keys in Redis.
const watermarkKeyPrefix = "airpollution:watermark:"

// WatermarkStore persists the end of the last successfully ingested window
// per city, so scheduled runs resume where they left off instead of
// re-fetching the full default window.
type WatermarkStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewWatermarkStore creates a watermark store.
func NewWatermarkStore(redisClient *redis.Client) *WatermarkStore {
	return &WatermarkStore{
		redis:  redisClient,
		logger: logging.NewLogger("watermark-store"),
	}
}

// Get returns the city's watermark as Unix epoch seconds, or 0 when no
// watermark has been written yet.
func (w *WatermarkStore) Get(ctx context.Context, city string) (int64, error) {
	val, err := w.redis.Get(ctx, watermarkKeyPrefix+city).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark for %s: %w", city, err)
	}

	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt watermark for %s: %w", city, err)
	}
	return ts, nil
}

// Set stores the city's watermark.
func (w *WatermarkStore) Set(ctx context.Context, city string, ts int64) error {
	if err := w.redis.Set(ctx, watermarkKeyPrefix+city, strconv.FormatInt(ts, 10), 0).Err(); err != nil {
		return fmt.Errorf("set watermark for %s: %w", city, err)
	}
	w.logger.Debug().Str("city", city).Int64("watermark", ts).Msg("Watermark advanced")
	return nil
}

// All returns the watermarks for the given cities. Cities without a
// watermark map to 0.
func (w *WatermarkStore) All(ctx context.Context, cities []string) (map[string]int64, error) {
	marks := make(map[string]int64, len(cities))
	for _, city := range cities {
		ts, err := w.Get(ctx, city)
		if err != nil {
			return nil, err
		}
		marks[city] = ts
	}
	return marks, nil
}
