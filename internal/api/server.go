package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gradus-incrementi/weather-station-data-collector/internal/aggregate"
	"github.com/gradus-incrementi/weather-station-data-collector/internal/store"
)

// Server is the HTTP server: the station push endpoint plus the query API.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
}

// NewServer creates a new server with all routes registered.
func NewServer(s store.Store, svc *aggregate.Service, logger *slog.Logger) *Server {
	h := &Handlers{
		Store:     s,
		Service:   svc,
		Logger:    logger,
		StartTime: time.Now(),
	}

	mux := http.NewServeMux()

	// Station push endpoint. Some firmware revisions push GET queries
	// instead of a POST body, so both are accepted.
	mux.HandleFunc("POST /weather-data", h.ReceiveWeatherData)
	mux.HandleFunc("GET /weather-data", h.ReceiveWeatherData)

	// Query API.
	mux.HandleFunc("GET /api/v1/current", h.GetCurrentReading)
	mux.HandleFunc("GET /api/v1/raw", h.GetDayRaw)
	mux.HandleFunc("GET /api/v1/samples", h.GetAllSamples)
	mux.HandleFunc("GET /api/v1/summary", h.GetDaySummary)
	mux.HandleFunc("GET /api/v1/summaries", h.GetYearSummaries)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Apply middleware (outermost runs first).
	var handler http.Handler = mux
	handler = ContentType(handler)
	handler = SecurityHeaders(handler)
	handler = CORS("")(handler) // Empty string disables CORS headers.
	handler = Logger(handler)
	handler = RequestID(handler)
	handler = Recovery(handler)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, handlers: h}
}

// ListenAndServe starts the HTTP server. Blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer.Addr = addr
	slog.Info("api server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetVersion sets the version string for the health endpoint.
func (s *Server) SetVersion(v string) { s.handlers.Version = v }

// SetStorageInfo sets storage driver and path for the health endpoint.
func (s *Server) SetStorageInfo(driver, path string) {
	s.handlers.StorageDriver = driver
	s.handlers.StoragePath = path
}
