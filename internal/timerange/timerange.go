// Package timerange converts station-local calendar days into UTC instant
// ranges for range scans over the sample table.
package timerange

import (
	"errors"
	"fmt"
	"time"

	"github.com/gradus-incrementi/weather-station-data-collector/internal/store"
)

var (
	// ErrInvalidDate means the date string is not a YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidTimezone means the zone name is not a recognized IANA zone.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// DayBounds returns the UTC instants of local midnight and local 23:59:59 for
// the given calendar date in the named IANA zone, formatted with
// store.TimeLayout. The window is inclusive on both ends. Bounds are computed
// from wall-clock semantics in the zone, so days shortened or stretched by a
// DST transition still resolve to the correct 23- or 25-hour span.
func DayBounds(date, tz string) (startUTC, endUTC string, err error) {
	day, err := time.Parse(store.DateLayout, date)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if tz == "" {
		// time.LoadLocation("") silently means UTC; reject it so a missing
		// zone is always an explicit caller bug.
		return "", "", fmt.Errorf("%w: empty zone name", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}

	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d, 23, 59, 59, 0, loc)
	return start.UTC().Format(store.TimeLayout), end.UTC().Format(store.TimeLayout), nil
}
