package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gradus-incrementi/weather-station-data-collector/internal/aggregate"
	"github.com/gradus-incrementi/weather-station-data-collector/internal/ingest"
	"github.com/gradus-incrementi/weather-station-data-collector/internal/store"
	"github.com/gradus-incrementi/weather-station-data-collector/internal/timerange"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Store         store.Store
	Service       *aggregate.Service
	Logger        *slog.Logger
	StartTime     time.Time
	StorageDriver string
	StoragePath   string
	Version       string
}

// apiError is a JSON error response.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, apiError{Error: msg, Code: status})
}

// writeResolverError maps resolver failures to 400. Anything else is a store
// failure: logged with the query that hit it, written as a bare 500.
func (h *Handlers) writeResolverError(w http.ResponseWriter, err error, op string, attrs ...any) {
	switch {
	case errors.Is(err, timerange.ErrInvalidDate):
		h.writeError(w, http.StatusBadRequest, "invalid 'date' parameter (YYYY-MM-DD)")
	case errors.Is(err, timerange.ErrInvalidTimezone):
		h.writeError(w, http.StatusBadRequest, "invalid 'timezone' parameter (IANA zone name)")
	default:
		h.Logger.Error("failed to "+op, append(attrs, "error", err)...)
		h.writeError(w, http.StatusInternalServerError, "query failed")
	}
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// ReceiveWeatherData handles POST/GET /weather-data, the station's push
// endpoint. The firmware sends a flat key/value report; anything it omits is
// stored as NULL. No authentication and no range validation.
func (h *Handlers) ReceiveWeatherData(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed report body")
		return
	}

	smp := ingest.ParseSample(r.Form)
	id, err := h.Store.InsertSample(r.Context(), smp)
	if err != nil {
		h.Logger.Error("failed to insert sample", "dateutc", smp.DateUTC, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to store sample")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "id": id})
}

// GetCurrentReading handles GET /api/v1/current
func (h *Handlers) GetCurrentReading(w http.ResponseWriter, r *http.Request) {
	smp, err := h.Service.CurrentReading(r.Context())
	if err != nil {
		h.Logger.Error("failed to get current reading", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get current reading")
		return
	}
	if smp == nil {
		h.writeError(w, http.StatusNotFound, "no samples recorded")
		return
	}

	h.writeJSON(w, http.StatusOK, sampleToMap(smp))
}

// GetDayRaw handles GET /api/v1/raw?date=YYYY-MM-DD[&timezone=ZONE]
func (h *Handlers) GetDayRaw(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		h.writeError(w, http.StatusBadRequest, "missing 'date' parameter (YYYY-MM-DD)")
		return
	}
	tz := q.Get("timezone")

	samples, err := h.Service.DayRaw(r.Context(), date, tz)
	if err != nil {
		h.writeResolverError(w, err, "query day samples", "date", date, "timezone", tz)
		return
	}

	result := make([]map[string]any, len(samples))
	for i := range samples {
		result[i] = sampleToMap(&samples[i])
	}

	type rawResponse struct {
		Date    string           `json:"date"`
		Count   int              `json:"count"`
		Samples []map[string]any `json:"samples"`
	}
	h.writeJSON(w, http.StatusOK, rawResponse{Date: date, Count: len(result), Samples: result})
}

// GetAllSamples handles GET /api/v1/samples — a full dump in insertion order.
func (h *Handlers) GetAllSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := h.Store.AllSamples(r.Context())
	if err != nil {
		h.Logger.Error("failed to list samples", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list samples")
		return
	}

	result := make([]map[string]any, len(samples))
	for i := range samples {
		result[i] = sampleToMap(&samples[i])
	}

	type samplesResponse struct {
		Count   int              `json:"count"`
		Samples []map[string]any `json:"samples"`
	}
	h.writeJSON(w, http.StatusOK, samplesResponse{Count: len(result), Samples: result})
}

// GetDaySummary handles GET /api/v1/summary[?date=YYYY-MM-DD]
// A missing date means "today" in the station-local timezone.
func (h *Handlers) GetDaySummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")

	ds, err := h.Service.DaySummary(r.Context(), date)
	if err != nil {
		h.writeResolverError(w, err, "compute daily summary", "date", date)
		return
	}
	if ds == nil {
		h.writeError(w, http.StatusNotFound, "no data for this date")
		return
	}

	h.writeJSON(w, http.StatusOK, summaryToMap(ds))
}

// GetYearSummaries handles GET /api/v1/summaries[?year=YYYY]
// A missing or unparsable year means the current station-local year.
func (h *Handlers) GetYearSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, year, err := h.Service.YearSummaries(r.Context(), r.URL.Query().Get("year"))
	if err != nil {
		h.Logger.Error("failed to list summaries", "year", year, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list summaries")
		return
	}

	result := make([]map[string]any, len(summaries))
	for i := range summaries {
		result[i] = summaryToMap(&summaries[i])
	}

	type summariesResponse struct {
		Year      int              `json:"year"`
		Count     int              `json:"count"`
		Summaries []map[string]any `json:"summaries"`
	}
	h.writeJSON(w, http.StatusOK, summariesResponse{Year: year, Count: len(result), Summaries: result})
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	type dbHealth struct {
		Driver       string `json:"driver"`
		Status       string `json:"status"`
		SizeBytes    int64  `json:"size_bytes,omitempty"`
		TotalSamples int    `json:"total_samples"`
		OldestSample string `json:"oldest_sample,omitempty"`
		NewestSample string `json:"newest_sample,omitempty"`
	}
	type healthResponse struct {
		Status   string   `json:"status"`
		Version  string   `json:"version"`
		Uptime   string   `json:"uptime"`
		Timezone string   `json:"timezone"`
		Database dbHealth `json:"database"`
	}

	resp := healthResponse{
		Status:  "healthy",
		Version: h.Version,
		Uptime:  formatUptime(time.Since(h.StartTime)),
	}
	if h.Service != nil {
		resp.Timezone = h.Service.Location().String()
	}

	// Database health (path omitted to avoid exposing filesystem details).
	resp.Database = dbHealth{
		Driver: h.StorageDriver,
		Status: "ok",
	}
	if h.StorageDriver == "sqlite" && h.StoragePath != "" {
		if info, err := os.Stat(h.StoragePath); err == nil {
			resp.Database.SizeBytes = info.Size()
		}
	}
	if count, err := h.Store.SampleCount(r.Context()); err == nil {
		resp.Database.TotalSamples = count
	}
	if oldest, newest, err := h.Store.DataRange(r.Context()); err == nil {
		resp.Database.OldestSample = oldest
		resp.Database.NewestSample = newest
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func nullable(v sql.NullFloat64) any {
	if v.Valid {
		return v.Float64
	}
	return nil
}

// sampleToMap converts a Sample to a map with the wire field names for JSON
// responses. Null measurements serialize as JSON null.
func sampleToMap(s *store.Sample) map[string]any {
	return map[string]any{
		"id":             s.ID,
		"passkey":        s.PassKey,
		"stationtype":    s.StationType,
		"dateutc":        s.DateUTC,
		"tempf":          nullable(s.TempF),
		"humidity":       nullable(s.Humidity),
		"windspeedmph":   nullable(s.WindSpeedMPH),
		"windgustmph":    nullable(s.WindGustMPH),
		"maxdailygust":   nullable(s.MaxDailyGust),
		"winddir":        nullable(s.WindDir),
		"uv":             nullable(s.UV),
		"solarradiation": nullable(s.SolarRadiation),
		"hourlyrainin":   nullable(s.HourlyRainIn),
		"eventrainin":    nullable(s.EventRainIn),
		"dailyrainin":    nullable(s.DailyRainIn),
		"weeklyrainin":   nullable(s.WeeklyRainIn),
		"monthlyrainin":  nullable(s.MonthlyRainIn),
		"totalrainin":    nullable(s.TotalRainIn),
		"battout":        nullable(s.BattOut),
		"tempinf":        nullable(s.TempInF),
		"humidityin":     nullable(s.HumidityIn),
		"baromrelin":     nullable(s.BaromRelIn),
		"baromabsin":     nullable(s.BaromAbsIn),
	}
}

// summaryToMap converts a DailySummary to a map with snake_case keys.
func summaryToMap(ds *store.DailySummary) map[string]any {
	return map[string]any{
		"date":      ds.Date,
		"high_temp": ds.HighTemp,
		"low_temp":  ds.LowTemp,
	}
}
