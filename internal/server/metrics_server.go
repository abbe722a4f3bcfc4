package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessChecker reports whether the handoff manager is ready to serve.
type ReadinessChecker interface {
	Ready() (bool, string)
}

// MetricsServer serves Prometheus metrics and health/readiness endpoints
// over HTTP, alongside the gRPC transport and management services.
type MetricsServer struct {
	httpServer *http.Server
	checker    ReadinessChecker
	logger     *zap.Logger
	stopChan   chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	Port int
	Path string
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(cfg *MetricsServerConfig, checker ReadinessChecker, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	ms := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		checker:  checker,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", ms.healthHandler)
	mux.HandleFunc("/ready", ms.readyHandler)

	return ms
}

// Start starts the metrics server.
func (s *MetricsServer) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.httpServer.Addr))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	s.logger.Info("stopping metrics server")
	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}

func (s *MetricsServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s","goroutines":%d}`,
		time.Now().Format(time.RFC3339), runtime.NumGoroutine())
}

func (s *MetricsServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	ready, reason := s.checker.Ready()
	if !ready {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"not_ready","reason":%q}`, reason)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ready","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}
