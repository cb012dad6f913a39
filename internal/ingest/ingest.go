// Package ingest coerces the flat key/value reports pushed by the station
// firmware into storable samples.
package ingest

import (
	"database/sql"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gradus-incrementi/weather-station-data-collector/internal/store"
)

// ParseSample builds a Sample from a station report. Absent or non-numeric
// measurement fields become SQL NULL; values are not range-checked. The
// identifying strings are stored as sent.
func ParseSample(values url.Values) *store.Sample {
	return &store.Sample{
		PassKey:     values.Get("PASSKEY"),
		StationType: values.Get("stationtype"),
		DateUTC:     NormalizeTimestamp(values.Get("dateutc")),

		TempF:          nullFloat(values, "tempf"),
		Humidity:       nullFloat(values, "humidity"),
		WindSpeedMPH:   nullFloat(values, "windspeedmph"),
		WindGustMPH:    nullFloat(values, "windgustmph"),
		MaxDailyGust:   nullFloat(values, "maxdailygust"),
		WindDir:        nullFloat(values, "winddir"),
		UV:             nullFloat(values, "uv"),
		SolarRadiation: nullFloat(values, "solarradiation"),
		HourlyRainIn:   nullFloat(values, "hourlyrainin"),
		EventRainIn:    nullFloat(values, "eventrainin"),
		DailyRainIn:    nullFloat(values, "dailyrainin"),
		WeeklyRainIn:   nullFloat(values, "weeklyrainin"),
		MonthlyRainIn:  nullFloat(values, "monthlyrainin"),
		TotalRainIn:    nullFloat(values, "totalrainin"),
		BattOut:        nullFloat(values, "battout"),
		TempInF:        nullFloat(values, "tempinf"),
		HumidityIn:     nullFloat(values, "humidityin"),
		BaromRelIn:     nullFloat(values, "baromrelin"),
		BaromAbsIn:     nullFloat(values, "baromabsin"),
	}
}

// NormalizeTimestamp rewrites the firmware's URL-safe "YYYY-MM-DD+HH:mm:ss"
// timestamp into the canonical space-separated layout so lexicographic range
// scans hold. Values that still don't match the layout pass through as sent;
// the store does not validate timestamps.
func NormalizeTimestamp(raw string) string {
	s := strings.ReplaceAll(raw, "+", " ")
	if _, err := time.Parse(store.TimeLayout, s); err == nil {
		return s
	}
	return raw
}

func nullFloat(values url.Values, key string) sql.NullFloat64 {
	raw := values.Get(key)
	if raw == "" {
		return sql.NullFloat64{}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
