// Package httpadapter serves build status while fuelstar runs on a schedule.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// BuildStatus reports whether the store is usable and what the last
// successful build produced.
type BuildStatus interface {
	sharedobs.ReadinessChecker
	LastReport() (domain.Report, bool)
}

// StatusServer exposes /healthz, /readyz, /report and /metrics.
type StatusServer struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewStatusServer wires the status routes. /metrics serves gatherer.
func NewStatusServer(addr string, status BuildStatus, gatherer prometheus.Gatherer, logger *slog.Logger) *StatusServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(status))
	mux.HandleFunc("GET /report", reportHandler(status))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError)}))

	return &StatusServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// reportHandler returns the last successful build report, or 404 before the
// first build has finished.
func reportHandler(status BuildStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report, ok := status.LastReport()
		if !ok {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no successful build yet"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, report)
	}
}

// Start listens until Shutdown. Returns http.ErrServerClosed after a
// graceful shutdown.
func (s *StatusServer) Start() error {
	s.logger.Info("status server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains open connections within ctx.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ServeHTTP dispatches to the status routes.
func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.srv.Handler.ServeHTTP(w, r)
}
