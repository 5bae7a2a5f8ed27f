package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"aquanet/internal/core/app"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ObservabilityServer struct {
	addr          string
	metrics       bool
	healthService *app.HealthService
	server        *http.Server
}

func NewObservabilityServer(addr string, metrics bool, healthService *app.HealthService) *ObservabilityServer {
	return &ObservabilityServer{
		addr:          addr,
		metrics:       metrics,
		healthService: healthService,
	}
}

func (s *ObservabilityServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("observability server starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("observability server failed", "error", err)
		}
	}()

	return nil
}

func (s *ObservabilityServer) handler() http.Handler {
	mux := http.NewServeMux()

	if s.metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := s.healthService.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Debug("health response write failed", "error", err)
		}
	})

	return mux
}

func (s *ObservabilityServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
