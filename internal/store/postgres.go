package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed pgmigrations/*.sql
var pgMigrations embed.FS

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a PostgreSQL connection and runs migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	goose.SetBaseFS(pgMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "pgmigrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// DB returns the underlying database connection for migration commands.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) InsertSample(ctx context.Context, smp *Sample) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, replacePlaceholders(`
		INSERT INTO weather_data (
			passkey, stationtype, dateutc,
			tempf, humidity, windspeedmph, windgustmph, maxdailygust, winddir,
			uv, solarradiation, hourlyrainin, eventrainin, dailyrainin,
			weeklyrainin, monthlyrainin, totalrainin, battout, tempinf,
			humidityin, baromrelin, baromabsin
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		smp.PassKey, smp.StationType, smp.DateUTC,
		smp.TempF, smp.Humidity, smp.WindSpeedMPH, smp.WindGustMPH, smp.MaxDailyGust, smp.WindDir,
		smp.UV, smp.SolarRadiation, smp.HourlyRainIn, smp.EventRainIn, smp.DailyRainIn,
		smp.WeeklyRainIn, smp.MonthlyRainIn, smp.TotalRainIn, smp.BattOut, smp.TempInF,
		smp.HumidityIn, smp.BaromRelIn, smp.BaromAbsIn,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting sample: %w", err)
	}
	smp.ID = id
	return id, nil
}

func (s *PostgresStore) LatestSample(ctx context.Context) (*Sample, error) {
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

func (s *PostgresStore) AllSamples(ctx context.Context) ([]Sample, error) {
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

func (s *PostgresStore) SamplesInRange(ctx context.Context, startUTC, endUTC string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, replacePlaceholders(`
		SELECT `+sampleColumns+`
		FROM weather_data
		WHERE dateutc >= ? AND dateutc <= ?
		ORDER BY id`), startUTC, endUTC)
	if err != nil {
		return nil, fmt.Errorf("querying sample range: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanSamples(rows)
}

func (s *PostgresStore) TempExtremes(ctx context.Context, startUTC, endUTC string) (*TempExtremes, error) {
	var high, low sql.NullFloat64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(tempf), MIN(tempf), COUNT(tempf)
		FROM weather_data
		WHERE dateutc >= $1 AND dateutc <= $2`,
		startUTC, endUTC).Scan(&high, &low, &count)
	if err != nil {
		return nil, fmt.Errorf("querying temperature extremes: %w", err)
	}
	if count == 0 || !high.Valid || !low.Valid {
		return nil, nil
	}
	return &TempExtremes{High: high.Float64, Low: low.Float64, Count: count}, nil
}

func (s *PostgresStore) GetDailySummary(ctx context.Context, date string) (*DailySummary, error) {
	var ds DailySummary
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, high_temp, low_temp
		FROM daily_temperature_summary
		WHERE date = $1`, date).Scan(&ds.ID, &ds.Date, &ds.HighTemp, &ds.LowTemp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting daily summary: %w", err)
	}
	return &ds, nil
}

func (s *PostgresStore) InsertDailySummary(ctx context.Context, ds *DailySummary) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO daily_temperature_summary (date, high_temp, low_temp)
		VALUES ($1, $2, $3)
		RETURNING id`,
		ds.Date, ds.HighTemp, ds.LowTemp).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting daily summary for %s: %w", ds.Date, err)
	}
	ds.ID = id
	return id, nil
}

func (s *PostgresStore) SummariesForYear(ctx context.Context, year int) ([]DailySummary, error) {
	start := fmt.Sprintf("%04d-01-01", year)
	end := fmt.Sprintf("%04d-12-31", year)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, high_temp, low_temp
		FROM daily_temperature_summary
		WHERE date >= $1 AND date <= $2
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

func (s *PostgresStore) SampleCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_data`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DataRange(ctx context.Context) (oldest, newest string, err error) {
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
