package store

import (
	"context"
	"database/sql"
)

// TimeLayout is the canonical format for sample timestamps. Timestamps are
// stored as UTC text in this fixed-width form, so lexicographic comparison
// on the column is equivalent to temporal comparison.
const TimeLayout = "2006-01-02 15:04:05"

// DateLayout is the format for station-local summary dates.
const DateLayout = "2006-01-02"

// Store defines the interface for sample and summary storage.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	// InsertSample appends one raw sample and returns its assigned id.
	// Ids are strictly increasing in insertion order and never reused.
	InsertSample(ctx context.Context, s *Sample) (int64, error)

	// LatestSample returns the sample with the maximum id, or nil when the
	// store is empty.
	LatestSample(ctx context.Context) (*Sample, error)

	// AllSamples returns every sample in insertion (id) order.
	AllSamples(ctx context.Context) ([]Sample, error)

	// SamplesInRange returns samples whose dateutc lies within
	// [startUTC, endUTC], inclusive on both ends. Empty slice when nothing
	// matches.
	SamplesInRange(ctx context.Context, startUTC, endUTC string) ([]Sample, error)

	// TempExtremes reduces max/min over non-null tempf values in
	// [startUTC, endUTC]. Returns nil when no sample in range has a
	// temperature.
	TempExtremes(ctx context.Context, startUTC, endUTC string) (*TempExtremes, error)

	// GetDailySummary is a pure cache lookup; nil when no row exists.
	GetDailySummary(ctx context.Context, date string) (*DailySummary, error)

	// InsertDailySummary stores a new summary row. Fails on the uniqueness
	// constraint if a row for the date already exists; callers are expected
	// to re-read on failure.
	InsertDailySummary(ctx context.Context, ds *DailySummary) (int64, error)

	// SummariesForYear returns cached summaries with dates inside
	// [year-01-01, year-12-31], sorted ascending by date.
	SummariesForYear(ctx context.Context, year int) ([]DailySummary, error)

	// SampleCount returns the total number of stored samples.
	SampleCount(ctx context.Context) (int, error)

	// DataRange returns the oldest and newest sample timestamps, or empty
	// strings for an empty store.
	DataRange(ctx context.Context) (oldest, newest string, err error)

	// Close closes the database connection.
	Close() error
}

// Sample is one raw telemetry reading as pushed by the station. The store
// is agnostic to the meaning of the measurement fields; all of them are
// nullable because the firmware omits sensors it doesn't have. The station
// clock may be unsynchronized, so DateUTC is not guaranteed monotonic
// relative to ID.
type Sample struct {
	ID          int64
	PassKey     string
	StationType string
	DateUTC     string // UTC, TimeLayout format, as reported by the station

	TempF          sql.NullFloat64
	Humidity       sql.NullFloat64
	WindSpeedMPH   sql.NullFloat64
	WindGustMPH    sql.NullFloat64
	MaxDailyGust   sql.NullFloat64
	WindDir        sql.NullFloat64
	UV             sql.NullFloat64
	SolarRadiation sql.NullFloat64
	HourlyRainIn   sql.NullFloat64
	EventRainIn    sql.NullFloat64
	DailyRainIn    sql.NullFloat64
	WeeklyRainIn   sql.NullFloat64
	MonthlyRainIn  sql.NullFloat64
	TotalRainIn    sql.NullFloat64
	BattOut        sql.NullFloat64
	TempInF        sql.NullFloat64
	HumidityIn     sql.NullFloat64
	BaromRelIn     sql.NullFloat64
	BaromAbsIn     sql.NullFloat64
}

// DailySummary is the memoized high/low temperature for one station-local
// calendar date. Rows are immutable once written: a summary computed before
// the day ends stays frozen at first-request values.
type DailySummary struct {
	ID       int64
	Date     string // station-local, DateLayout format, unique
	HighTemp float64
	LowTemp  float64
}

// TempExtremes is the min/max reduction over tempf for a time range.
type TempExtremes struct {
	High  float64
	Low   float64
	Count int // samples in range with a non-null temperature
}
