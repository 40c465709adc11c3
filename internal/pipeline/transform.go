package pipeline

import (
	"time"

	"github.com/skyline-data/air-pollution-ingest/internal/store"
)

// aqiCategories maps the provider's 1-5 index to its categorical
// interpretation.
var aqiCategories = map[int]string{
	1: "good",
	2: "fair",
	3: "moderate",
	4: "poor",
	5: "very poor",
}

// Transform converts validated raw records into warehouse rows, deriving
// the UTC measurement instant, AQI category, day-of-week, and time-of-day
// fields. Pure function, no I/O.
func Transform(records []RawRecord, city string) []store.Measurement {
	rows := make([]store.Measurement, 0, len(records))
	for _, rec := range records {
		at := time.Unix(rec.Dt, 0).UTC()
		rows = append(rows, store.Measurement{
			City:        city,
			AQI:         rec.Main.AQI,
			AQICategory: aqiCategories[rec.Main.AQI],
			MeasuredAt:  at,
			DayOfWeek:   at.Weekday().String(),
			TimeOfDay:   at.Format("15:04"),
			NO:          rec.Components.NO,
			NO2:         rec.Components.NO2,
			O3:          rec.Components.O3,
			SO2:         rec.Components.SO2,
			NH3:         rec.Components.NH3,
			PM25:        rec.Components.PM25,
			PM10:        rec.Components.PM10,
		})
	}
	return rows
}
