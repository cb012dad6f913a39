package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gradus-incrementi/weather-station-data-collector/internal/aggregate"
	"github.com/gradus-incrementi/weather-station-data-collector/internal/store"
)

// mockStore is an in-memory Store for handler tests.
type mockStore struct {
	mu        sync.Mutex
	samples   []store.Sample
	summaries []store.DailySummary
}

func (m *mockStore) InsertSample(ctx context.Context, s *store.Sample) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.samples) + 1)
	m.samples = append(m.samples, *s)
	return s.ID, nil
}

func (m *mockStore) LatestSample(ctx context.Context) (*store.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return nil, nil
	}
	s := m.samples[len(m.samples)-1]
	return &s, nil
}

func (m *mockStore) AllSamples(ctx context.Context) ([]store.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Sample{}, m.samples...), nil
}

func (m *mockStore) SamplesInRange(ctx context.Context, startUTC, endUTC string) ([]store.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []store.Sample{}
	for _, s := range m.samples {
		if s.DateUTC >= startUTC && s.DateUTC <= endUTC {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockStore) TempExtremes(ctx context.Context, startUTC, endUTC string) (*store.TempExtremes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ext *store.TempExtremes
	for _, s := range m.samples {
		if s.DateUTC < startUTC || s.DateUTC > endUTC || !s.TempF.Valid {
			continue
		}
		v := s.TempF.Float64
		if ext == nil {
			ext = &store.TempExtremes{High: v, Low: v}
		} else {
			if v > ext.High {
				ext.High = v
			}
			if v < ext.Low {
				ext.Low = v
			}
		}
		ext.Count++
	}
	return ext, nil
}

func (m *mockStore) GetDailySummary(ctx context.Context, date string) (*store.DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ds := range m.summaries {
		if ds.Date == date {
			ds := ds
			return &ds, nil
		}
	}
	return nil, nil
}

func (m *mockStore) InsertDailySummary(ctx context.Context, ds *store.DailySummary) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.summaries {
		if existing.Date == ds.Date {
			return 0, fmt.Errorf("UNIQUE constraint failed: daily_temperature_summary.date")
		}
	}
	ds.ID = int64(len(m.summaries) + 1)
	m.summaries = append(m.summaries, *ds)
	return ds.ID, nil
}

func (m *mockStore) SummariesForYear(ctx context.Context, year int) ([]store.DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := fmt.Sprintf("%04d-", year)
	result := []store.DailySummary{}
	for _, ds := range m.summaries {
		if strings.HasPrefix(ds.Date, prefix) {
			result = append(result, ds)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

func (m *mockStore) SampleCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples), nil
}

func (m *mockStore) DataRange(ctx context.Context) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return "", "", nil
	}
	oldest, newest := m.samples[0].DateUTC, m.samples[0].DateUTC
	for _, s := range m.samples[1:] {
		if s.DateUTC < oldest {
			oldest = s.DateUTC
		}
		if s.DateUTC > newest {
			newest = s.DateUTC
		}
	}
	return oldest, newest, nil
}

func (m *mockStore) Close() error { return nil }

func newTestHandlers(t *testing.T) (*Handlers, *mockStore) {
	t.Helper()
	m := &mockStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := aggregate.New(m, "America/Chicago", logger)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	h := &Handlers{
		Store:         m,
		Service:       svc,
		Logger:        logger,
		StartTime:     time.Now(),
		StorageDriver: "sqlite",
		Version:       "test",
	}
	return h, m
}

func addSample(m *mockStore, dateutc string, tempf float64) {
	m.InsertSample(context.Background(), &store.Sample{ //nolint:errcheck
		PassKey:     "test-passkey",
		StationType: "WS-2902",
		DateUTC:     dateutc,
		TempF:       sql.NullFloat64{Float64: tempf, Valid: true},
	})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestReceiveWeatherData_Post(t *testing.T) {
	h, m := newTestHandlers(t)

	form := url.Values{}
	form.Set("PASSKEY", "ABC123")
	form.Set("stationtype", "AMBWeatherPro_V5.1.9")
	form.Set("dateutc", "2024-06-15 12:00:00")
	form.Set("tempf", "72.5")
	form.Set("humidity", "not-a-number")

	req := httptest.NewRequest(http.MethodPost, "/weather-data", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ReceiveWeatherData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["id"] != float64(1) {
		t.Errorf("id = %v, want 1", body["id"])
	}

	if len(m.samples) != 1 {
		t.Fatalf("expected 1 stored sample, got %d", len(m.samples))
	}
	stored := m.samples[0]
	if !stored.TempF.Valid || stored.TempF.Float64 != 72.5 {
		t.Errorf("tempf = %+v, want valid 72.5", stored.TempF)
	}
	if stored.Humidity.Valid {
		t.Errorf("humidity = %+v, want null for malformed value", stored.Humidity)
	}
}

func TestReceiveWeatherData_GetQuery(t *testing.T) {
	h, m := newTestHandlers(t)

	// Some firmware revisions push readings as GET query parameters.
	req := httptest.NewRequest(http.MethodGet,
		"/weather-data?PASSKEY=ABC123&dateutc=2024-06-15+12:00:00&tempf=72.5", nil)
	rec := httptest.NewRecorder()
	h.ReceiveWeatherData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if len(m.samples) != 1 {
		t.Fatalf("expected 1 stored sample, got %d", len(m.samples))
	}
	if m.samples[0].DateUTC != "2024-06-15 12:00:00" {
		t.Errorf("dateutc = %q, want normalized %q", m.samples[0].DateUTC, "2024-06-15 12:00:00")
	}
}

func TestGetCurrentReading(t *testing.T) {
	h, m := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/current", nil)
	rec := httptest.NewRecorder()
	h.GetCurrentReading(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for empty store, want 404", rec.Code)
	}

	addSample(m, "2024-06-15 12:00:00", 72.5)
	addSample(m, "2024-06-15 12:05:00", 72.7)

	rec = httptest.NewRecorder()
	h.GetCurrentReading(rec, httptest.NewRequest(http.MethodGet, "/api/v1/current", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["dateutc"] != "2024-06-15 12:05:00" {
		t.Errorf("dateutc = %v, want the most recent sample", body["dateutc"])
	}
	if body["tempf"] != 72.7 {
		t.Errorf("tempf = %v, want 72.7", body["tempf"])
	}
	if body["humidity"] != nil {
		t.Errorf("humidity = %v, want JSON null", body["humidity"])
	}
}

func TestGetDayRaw(t *testing.T) {
	h, m := newTestHandlers(t)
	addSample(m, "2024-06-15 12:00:00", 72) // 2024-06-15 Chicago
	addSample(m, "2024-06-16 03:00:00", 65) // still 2024-06-15 Chicago
	addSample(m, "2024-06-16 12:00:00", 80) // next local day

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCount  float64
	}{
		{"valid date", "/api/v1/raw?date=2024-06-15", http.StatusOK, 2},
		{"timezone override", "/api/v1/raw?date=2024-06-15&timezone=UTC", http.StatusOK, 1},
		{"empty day", "/api/v1/raw?date=2030-01-01", http.StatusOK, 0},
		{"missing date", "/api/v1/raw", http.StatusBadRequest, 0},
		{"invalid date", "/api/v1/raw?date=2024-02-30", http.StatusBadRequest, 0},
		{"invalid timezone", "/api/v1/raw?date=2024-06-15&timezone=Mars/Olympus", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetDayRaw(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decodeBody(t, rec)
			if body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
			samples, ok := body["samples"].([]any)
			if !ok {
				t.Fatalf("samples is %T, want array", body["samples"])
			}
			if float64(len(samples)) != tt.wantCount {
				t.Errorf("len(samples) = %d, want %v", len(samples), tt.wantCount)
			}
		})
	}
}

func TestGetAllSamples(t *testing.T) {
	h, m := newTestHandlers(t)
	addSample(m, "2024-06-15 12:00:00", 72)
	addSample(m, "2024-06-15 12:05:00", 73)

	rec := httptest.NewRecorder()
	h.GetAllSamples(rec, httptest.NewRequest(http.MethodGet, "/api/v1/samples", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestGetDaySummary(t *testing.T) {
	h, m := newTestHandlers(t)
	addSample(m, "2024-06-15 11:00:00", 50)
	addSample(m, "2024-06-15 19:00:00", 72)
	addSample(m, "2024-06-16 03:00:00", 65)

	rec := httptest.NewRecorder()
	h.GetDaySummary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary?date=2024-06-15", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["high_temp"] != float64(72) {
		t.Errorf("high_temp = %v, want 72", body["high_temp"])
	}
	if body["low_temp"] != float64(50) {
		t.Errorf("low_temp = %v, want 50", body["low_temp"])
	}
	if body["date"] != "2024-06-15" {
		t.Errorf("date = %v, want 2024-06-15", body["date"])
	}

	// First request cached the summary row.
	if len(m.summaries) != 1 {
		t.Errorf("expected 1 cached summary, got %d", len(m.summaries))
	}

	// A later reading must not alter the served summary.
	addSample(m, "2024-06-16 02:00:00", 99)
	rec = httptest.NewRecorder()
	h.GetDaySummary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary?date=2024-06-15", nil))
	body = decodeBody(t, rec)
	if body["high_temp"] != float64(72) {
		t.Errorf("cached high_temp changed to %v, want frozen 72", body["high_temp"])
	}
}

func TestGetDaySummary_Errors(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.GetDaySummary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary?date=2024-06-15", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for day with no data, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.GetDaySummary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary?date=garbage", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d for invalid date, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] == "" || body["code"] != float64(400) {
		t.Errorf("error envelope = %v", body)
	}
}

func TestGetYearSummaries(t *testing.T) {
	h, m := newTestHandlers(t)
	m.summaries = []store.DailySummary{
		{ID: 1, Date: "2024-06-15", HighTemp: 72, LowTemp: 50},
		{ID: 2, Date: "2024-01-01", HighTemp: 35, LowTemp: 15},
		{ID: 3, Date: "2023-07-04", HighTemp: 90, LowTemp: 70},
	}

	rec := httptest.NewRecorder()
	h.GetYearSummaries(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summaries?year=2024", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["year"] != float64(2024) {
		t.Errorf("year = %v, want 2024", body["year"])
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	summaries := body["summaries"].([]any)
	first := summaries[0].(map[string]any)
	if first["date"] != "2024-01-01" {
		t.Errorf("first summary date = %v, want ascending order", first["date"])
	}
}

// failStore makes range queries fail so handler error paths can be exercised.
type failStore struct {
	mockStore
	err error
}

func (f *failStore) SamplesInRange(ctx context.Context, startUTC, endUTC string) ([]store.Sample, error) {
	return nil, f.err
}

func (f *failStore) TempExtremes(ctx context.Context, startUTC, endUTC string) (*store.TempExtremes, error) {
	return nil, f.err
}

func TestQueryHandlers_StoreFailureLogged(t *testing.T) {
	fs := &failStore{err: errors.New("disk I/O error")}
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	svc, err := aggregate.New(fs, "America/Chicago", logger)
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	h := &Handlers{Store: fs, Service: svc, Logger: logger, StartTime: time.Now()}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		target  string
		wantLog []string
	}{
		{
			name:    "raw",
			handler: h.GetDayRaw,
			target:  "/api/v1/raw?date=2024-06-15",
			wantLog: []string{"query day samples", "date=2024-06-15", "disk I/O error"},
		},
		{
			name:    "summary",
			handler: h.GetDaySummary,
			target:  "/api/v1/summary?date=2024-06-15",
			wantLog: []string{"compute daily summary", "date=2024-06-15", "disk I/O error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logBuf.Reset()
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500; body: %s", rec.Code, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if body["error"] != "query failed" {
				t.Errorf("error = %v, want %q", body["error"], "query failed")
			}
			for _, want := range tt.wantLog {
				if !strings.Contains(logBuf.String(), want) {
					t.Errorf("log missing %q; log: %s", want, logBuf.String())
				}
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h, m := newTestHandlers(t)
	addSample(m, "2024-06-15 12:00:00", 72)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if body["timezone"] != "America/Chicago" {
		t.Errorf("timezone = %v, want America/Chicago", body["timezone"])
	}
	db := body["database"].(map[string]any)
	if db["driver"] != "sqlite" {
		t.Errorf("driver = %v, want sqlite", db["driver"])
	}
	if db["total_samples"] != float64(1) {
		t.Errorf("total_samples = %v, want 1", db["total_samples"])
	}
	if db["oldest_sample"] != "2024-06-15 12:00:00" {
		t.Errorf("oldest_sample = %v", db["oldest_sample"])
	}
}
