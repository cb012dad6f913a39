// Package aggregate orchestrates the sample store, the day-boundary
// resolver, and the daily summary cache to answer derived queries.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gradus-incrementi/weather-station-data-collector/internal/store"
	"github.com/gradus-incrementi/weather-station-data-collector/internal/timerange"
)

// Service answers aggregate queries over the sample store. It owns the
// station-local timezone and the policy of defaulting missing dates to
// "today" in that zone.
type Service struct {
	store  store.Store
	tzName string
	loc    *time.Location
	logger *slog.Logger
}

// New creates a Service. tzName is the station's IANA zone, loaded once here
// and never re-read from ambient state.
func New(s store.Store, tzName string, logger *slog.Logger) (*Service, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("loading station timezone %q: %w", tzName, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, tzName: tzName, loc: loc, logger: logger}, nil
}

// Location returns the configured station timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// CurrentReading returns the most recently inserted sample, or nil when the
// store is empty.
func (s *Service) CurrentReading(ctx context.Context) (*store.Sample, error) {
	return s.store.LatestSample(ctx)
}

// DayRaw returns all samples observed during one calendar day. tz overrides
// the station zone when non-empty. An empty slice is a valid result, not an
// error.
func (s *Service) DayRaw(ctx context.Context, date, tz string) ([]store.Sample, error) {
	if tz == "" {
		tz = s.tzName
	}
	startUTC, endUTC, err := timerange.DayBounds(date, tz)
	if err != nil {
		return nil, err
	}
	return s.store.SamplesInRange(ctx, startUTC, endUTC)
}

// DaySummary returns the high/low temperature summary for a station-local
// date, computing and caching it on first request. date empty means "today"
// in the station zone. A cached row is returned unchanged even if samples
// arrived after it was computed. Returns nil when the day has no samples
// with a temperature; nothing is written in that case.
//
// The summary is always keyed by the station zone; a per-request zone would
// store zone-dependent values under a zone-independent date.
func (s *Service) DaySummary(ctx context.Context, date string) (*store.DailySummary, error) {
	if date == "" {
		date = time.Now().In(s.loc).Format(store.DateLayout)
	}
	startUTC, endUTC, err := timerange.DayBounds(date, s.tzName)
	if err != nil {
		return nil, err
	}

	cached, err := s.store.GetDailySummary(ctx, date)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	ext, err := s.store.TempExtremes(ctx, startUTC, endUTC)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, nil
	}

	ds := &store.DailySummary{Date: date, HighTemp: ext.High, LowTemp: ext.Low}
	if _, err := s.store.InsertDailySummary(ctx, ds); err != nil {
		// A concurrent first request may have won the insert race. The date
		// column is unique, so re-read and serve whatever landed.
		winner, readErr := s.store.GetDailySummary(ctx, date)
		if readErr == nil && winner != nil {
			s.logger.Debug("daily summary insert lost race", "date", date)
			return winner, nil
		}
		return nil, err
	}

	s.logger.Info("daily summary computed",
		"date", date,
		"high_temp", ds.HighTemp,
		"low_temp", ds.LowTemp,
		"samples", ext.Count,
	)
	return ds, nil
}

// YearSummaries returns all cached summaries for a year, sorted ascending by
// date. An empty or unparsable year defaults to the current station-local
// year. This is a read over already-cached rows only; missing days are not
// computed.
func (s *Service) YearSummaries(ctx context.Context, year string) ([]store.DailySummary, int, error) {
	y, err := strconv.Atoi(year)
	if err != nil || y <= 0 {
		y = time.Now().In(s.loc).Year()
	}
	summaries, err := s.store.SummariesForYear(ctx, y)
	if err != nil {
		return nil, y, err
	}
	return summaries, y, nil
}
