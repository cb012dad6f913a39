package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database, sets file permissions, and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// Set pragmas for performance and safety.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	// Set file permissions to 0600.
	if err := os.Chmod(dsn, 0600); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("setting file permissions: %w", err)
	}

	// Run migrations.
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying database connection for migration commands.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) InsertSample(ctx context.Context, smp *Sample) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_data (
			passkey, stationtype, dateutc,
			tempf, humidity, windspeedmph, windgustmph, maxdailygust, winddir,
			uv, solarradiation, hourlyrainin, eventrainin, dailyrainin,
			weeklyrainin, monthlyrainin, totalrainin, battout, tempinf,
			humidityin, baromrelin, baromabsin
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		smp.PassKey, smp.StationType, smp.DateUTC,
		smp.TempF, smp.Humidity, smp.WindSpeedMPH, smp.WindGustMPH, smp.MaxDailyGust, smp.WindDir,
		smp.UV, smp.SolarRadiation, smp.HourlyRainIn, smp.EventRainIn, smp.DailyRainIn,
		smp.WeeklyRainIn, smp.MonthlyRainIn, smp.TotalRainIn, smp.BattOut, smp.TempInF,
		smp.HumidityIn, smp.BaromRelIn, smp.BaromAbsIn,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting sample: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading sample id: %w", err)
	}
	smp.ID = id
	return id, nil
}

func (s *SQLiteStore) LatestSample(ctx context.Context) (*Sample, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sampleColumns+`
		FROM weather_data
		ORDER BY id DESC
		LIMIT 1`)

	smp, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest sample: %w", err)
	}
	return smp, nil
}

func (s *SQLiteStore) AllSamples(ctx context.Context) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sampleColumns+`
		FROM weather_data
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanSamples(rows)
}

func (s *SQLiteStore) SamplesInRange(ctx context.Context, startUTC, endUTC string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sampleColumns+`
		FROM weather_data
		WHERE dateutc >= ? AND dateutc <= ?
		ORDER BY id`, startUTC, endUTC)
	if err != nil {
		return nil, fmt.Errorf("querying sample range: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanSamples(rows)
}

func (s *SQLiteStore) TempExtremes(ctx context.Context, startUTC, endUTC string) (*TempExtremes, error) {
	var high, low sql.NullFloat64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(tempf), MIN(tempf), COUNT(tempf)
		FROM weather_data
		WHERE dateutc >= ? AND dateutc <= ?`,
		startUTC, endUTC).Scan(&high, &low, &count)
	if err != nil {
		return nil, fmt.Errorf("querying temperature extremes: %w", err)
	}
	if count == 0 || !high.Valid || !low.Valid {
		return nil, nil
	}
	return &TempExtremes{High: high.Float64, Low: low.Float64, Count: count}, nil
}

func (s *SQLiteStore) GetDailySummary(ctx context.Context, date string) (*DailySummary, error) {
	var ds DailySummary
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, high_temp, low_temp
		FROM daily_temperature_summary
		WHERE date = ?`, date).Scan(&ds.ID, &ds.Date, &ds.HighTemp, &ds.LowTemp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting daily summary: %w", err)
	}
	return &ds, nil
}

func (s *SQLiteStore) InsertDailySummary(ctx context.Context, ds *DailySummary) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_temperature_summary (date, high_temp, low_temp)
		VALUES (?, ?, ?)`,
		ds.Date, ds.HighTemp, ds.LowTemp)
	if err != nil {
		return 0, fmt.Errorf("inserting daily summary for %s: %w", ds.Date, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading summary id: %w", err)
	}
	ds.ID = id
	return id, nil
}

func (s *SQLiteStore) SummariesForYear(ctx context.Context, year int) ([]DailySummary, error) {
	start := fmt.Sprintf("%04d-01-01", year)
	end := fmt.Sprintf("%04d-12-31", year)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, high_temp, low_temp
		FROM daily_temperature_summary
		WHERE date >= ? AND date <= ?
		ORDER BY date`, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying summaries for %d: %w", year, err)
	}
	defer rows.Close() //nolint:errcheck

	var result []DailySummary
	for rows.Next() {
		var ds DailySummary
		if err := rows.Scan(&ds.ID, &ds.Date, &ds.HighTemp, &ds.LowTemp); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		result = append(result, ds)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) SampleCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_data`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) DataRange(ctx context.Context) (oldest, newest string, err error) {
	var oldestRaw, newestRaw *string
	err = s.db.QueryRowContext(ctx, `
		SELECT MIN(dateutc), MAX(dateutc) FROM weather_data`).Scan(&oldestRaw, &newestRaw)
	if err != nil {
		return "", "", fmt.Errorf("querying data range: %w", err)
	}
	if oldestRaw == nil || newestRaw == nil {
		return "", "", nil
	}
	return *oldestRaw, *newestRaw, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Shared helpers ---

const sampleColumns = `id, passkey, stationtype, dateutc,
		tempf, humidity, windspeedmph, windgustmph, maxdailygust, winddir,
		uv, solarradiation, hourlyrainin, eventrainin, dailyrainin,
		weeklyrainin, monthlyrainin, totalrainin, battout, tempinf,
		humidityin, baromrelin, baromabsin`

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (*Sample, error) {
	var smp Sample
	err := row.Scan(
		&smp.ID, &smp.PassKey, &smp.StationType, &smp.DateUTC,
		&smp.TempF, &smp.Humidity, &smp.WindSpeedMPH, &smp.WindGustMPH, &smp.MaxDailyGust, &smp.WindDir,
		&smp.UV, &smp.SolarRadiation, &smp.HourlyRainIn, &smp.EventRainIn, &smp.DailyRainIn,
		&smp.WeeklyRainIn, &smp.MonthlyRainIn, &smp.TotalRainIn, &smp.BattOut, &smp.TempInF,
		&smp.HumidityIn, &smp.BaromRelIn, &smp.BaromAbsIn,
	)
	if err != nil {
		return nil, err
	}
	return &smp, nil
}

func scanSamples(rows *sql.Rows) ([]Sample, error) {
	result := []Sample{}
	for rows.Next() {
		smp, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		result = append(result, *smp)
	}
	return result, rows.Err()
}

// replacePlaceholders converts ? to $1, $2, $3 etc for postgres.
func replacePlaceholders(query string) string {
	result := make([]byte, 0, len(query))
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, fmt.Sprintf("$%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
