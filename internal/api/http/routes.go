// Package httpapi exposes the operational HTTP surface: health, ingest
// status, measurement queries, and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyline-data/air-pollution-ingest/internal/config"
	"github.com/skyline-data/air-pollution-ingest/internal/store"
)

// WatermarkSource reads per-city ingest watermarks.
// Satisfied by *store.WatermarkStore.
type WatermarkSource interface {
	All(ctx context.Context, cities []string) (map[string]int64, error)
}

// MeasurementSource reads loaded measurement rows.
// Satisfied by *store.PollutionStore.
type MeasurementSource interface {
	MeasurementsInWindow(ctx context.Context, city string, start, end time.Time) ([]store.Measurement, error)
}

// cityStatus is one row of the status response.
type cityStatus struct {
	City      string  `json:"city"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Watermark string  `json:"watermark,omitempty"`
	Ingested  bool    `json:"ingested"`
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, cities []config.City, marks WatermarkSource, measurements MeasurementSource) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "air-pollution-ingest",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	names := make([]string, 0, len(cities))
	for _, city := range cities {
		names = append(names, city.Name)
	}

	v1.Get("/status", func(c *fiber.Ctx) error {
		wm, err := marks.All(c.Context(), names)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "watermark store unavailable")
		}

		statuses := make([]cityStatus, 0, len(cities))
		for _, city := range cities {
			st := cityStatus{
				City: city.Name,
				Lat:  float64(city.Lat),
				Lon:  float64(city.Lon),
			}
			if ts, ok := wm[city.Name]; ok && ts > 0 {
				st.Watermark = time.Unix(ts, 0).UTC().Format(time.RFC3339)
				st.Ingested = true
			}
			statuses = append(statuses, st)
		}
		return c.JSON(fiber.Map{"cities": statuses})
	})

	v1.Get("/measurements", func(c *fiber.Ctx) error {
		city := c.Query("city")
		if city == "" {
			return fiber.NewError(fiber.StatusBadRequest, "city query parameter is required")
		}

		from, err := parseTimeQuery(c.Query("from"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "from: "+err.Error())
		}
		to, err := parseTimeQuery(c.Query("to"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "to: "+err.Error())
		}
		if !to.After(from) {
			return fiber.NewError(fiber.StatusBadRequest, "to must be after from")
		}

		rows, err := measurements.MeasurementsInWindow(c.Context(), city, from, to)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query measurements")
		}
		return c.JSON(fiber.Map{
			"city":         city,
			"from":         from.UTC().Format(time.RFC3339),
			"to":           to.UTC().Format(time.RFC3339),
			"measurements": rows,
		})
	})
}

// parseTimeQuery accepts either RFC3339 or Unix seconds.
func parseTimeQuery(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("required")
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

// NewApp builds the Fiber app with the shared error handler and middleware.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               "air-pollution-ingest",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
}
