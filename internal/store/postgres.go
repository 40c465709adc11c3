// Package store persists transformed measurements in the warehouse and
// ingest watermarks in Redis.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/skyline-data/air-pollution-ingest/pkg/logging"
)

// Measurement is one air quality reading ready for the air_pollution table.
type Measurement struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	City        string    `gorm:"type:varchar(120);index:idx_air_pollution_city_measured_at"`
	AQI         int       `gorm:"column:aqi"`
	AQICategory string    `gorm:"column:aqi_interpretation;type:varchar(20)"`
	MeasuredAt  time.Time `gorm:"type:timestamptz;index:idx_air_pollution_city_measured_at"`
	DayOfWeek   string    `gorm:"type:varchar(12)"`
	TimeOfDay   string    `gorm:"type:varchar(5)"`
	NO          float64   `gorm:"column:no"`
	NO2         float64   `gorm:"column:no2"`
	O3          float64   `gorm:"column:o3"`
	SO2         float64   `gorm:"column:so2"`
	NH3         float64   `gorm:"column:nh3"`
	PM25        float64   `gorm:"column:pm2_5"`
	PM10        float64   `gorm:"column:pm10"`
}

// TableName implements the gorm naming override.
func (Measurement) TableName() string {
	return "air_pollution"
}

// QuarantineRecord preserves a raw provider record that failed validation,
// together with the failure detail, for later inspection.
type QuarantineRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	City          string    `gorm:"type:varchar(120);index"`
	Raw           string    `gorm:"type:jsonb"`
	Reason        string    `gorm:"type:text"`
	QuarantinedAt time.Time `gorm:"type:timestamptz"`
}

// TableName implements the gorm naming override.
func (QuarantineRecord) TableName() string {
	return "air_pollution_quarantine"
}

// PollutionStore loads measurement rows into postgres.
type PollutionStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewPollutionStore creates a store on top of an open gorm connection.
func NewPollutionStore(db *gorm.DB) *PollutionStore {
	return &PollutionStore{
		db:     db,
		logger: logging.NewLogger("pollution-store"),
	}
}

// Migrate creates or updates the destination tables.
func (s *PollutionStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Measurement{}, &QuarantineRecord{}); err != nil {
		return fmt.Errorf("migrate air pollution schema: %w", err)
	}
	return nil
}

// ReplaceWindow loads rows idempotently: within one transaction it deletes
// the city's rows covering the batch window, then inserts the batch.
// Re-running an ingest for the same window never duplicates data.
func (s *PollutionStore) ReplaceWindow(ctx context.Context, city string, rows []Measurement) error {
	if len(rows) == 0 {
		s.logger.Warn().Str("city", city).Msg("Empty batch, nothing to load")
		return nil
	}

	from, to := windowBounds(rows)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("city = ? AND measured_at BETWEEN ? AND ?", city, from, to).
			Delete(&Measurement{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Str("city", city).Msg("Failed to load measurement batch")
		return fmt.Errorf("load %d rows for %s: %w", len(rows), city, err)
	}

	s.logger.Info().
		Str("city", city).
		Int("rows", len(rows)).
		Time("from", from).
		Time("to", to).
		Msg("Measurement batch loaded")
	return nil
}

// Quarantine persists rejected raw records.
func (s *PollutionStore) Quarantine(ctx context.Context, city string, recs []QuarantineRecord) error {
	if len(recs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(recs, 500).Error; err != nil {
		s.logger.Error().Err(err).Str("city", city).Msg("Failed to persist quarantine batch")
		return fmt.Errorf("quarantine %d records for %s: %w", len(recs), city, err)
	}
	s.logger.Warn().Str("city", city).Int("records", len(recs)).Msg("Records quarantined")
	return nil
}

// MeasurementsInWindow returns the city's rows within [from, to], ordered
// by measurement instant.
func (s *PollutionStore) MeasurementsInWindow(ctx context.Context, city string, from, to time.Time) ([]Measurement, error) {
	var rows []Measurement
	err := s.db.WithContext(ctx).
		Where("city = ? AND measured_at BETWEEN ? AND ?", city, from, to).
		Order("measured_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query measurements for %s: %w", city, err)
	}
	return rows, nil
}

// windowBounds returns the earliest and latest measurement instants in a batch.
func windowBounds(rows []Measurement) (time.Time, time.Time) {
	from, to := rows[0].MeasuredAt, rows[0].MeasuredAt
	for _, r := range rows[1:] {
		if r.MeasuredAt.Before(from) {
			from = r.MeasuredAt
		}
		if r.MeasuredAt.After(to) {
			to = r.MeasuredAt
		}
	}
	return from, to
}
