// Package rollup warms the daily summary cache on a schedule, so a day's
// high/low is computed from the complete day even if nobody queries it.
package rollup

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/gradus-incrementi/weather-station-data-collector/internal/aggregate"
	"github.com/gradus-incrementi/weather-station-data-collector/internal/store"
)

// Scheduler runs a daily job shortly after station-local midnight that
// computes the previous day's summary. The job goes through the same cache
// path as queries, so it never overwrites a row that already exists.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *aggregate.Service
	at        string
	logger    *slog.Logger
}

// New creates a Scheduler. at is the station-local wall-clock time ("HH:MM")
// to run the job.
func New(svc *aggregate.Service, at string, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(svc.Location())
	return &Scheduler{
		scheduler: s,
		service:   svc,
		at:        at,
		logger:    logger,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(s.runOnce)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("summary rollup scheduled", "at", s.at, "timezone", s.service.Location().String())
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	date := time.Now().In(s.service.Location()).AddDate(0, 0, -1).Format(store.DateLayout)
	ds, err := s.service.DaySummary(ctx, date)
	switch {
	case err != nil:
		s.logger.Error("summary rollup failed", "date", date, "error", err)
	case ds == nil:
		s.logger.Info("summary rollup found no samples", "date", date)
	default:
		s.logger.Info("summary rollup complete",
			"date", date, "high_temp", ds.HighTemp, "low_temp", ds.LowTemp)
	}
}
