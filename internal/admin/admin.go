// Package admin serves the service's operational HTTP surface: a liveness
// probe, Prometheus metrics, and the strategy capability surface's JSON
// schema. It runs as an independent loop and never touches the series
// cache, the kline store, or the sandbox.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kline-runner/runner/internal/logger"
	"github.com/kline-runner/runner/internal/metrics"
	"github.com/kline-runner/runner/pkg/utils"
)

// Server is the admin HTTP server. Build one with New and run it with
// ListenAndServe; Shutdown stops it gracefully.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// New builds a Server bound to addr (e.g. ":8090"). The JSON schema served
// at /schema is reflected once here, not per-request.
func New(addr string, metricsReg *metrics.Registry, log *logger.Logger) *Server {
	log = log.Named("admin")

	schemaJSON, err := utils.ReflectJSONSchema(CapabilitySurface{}, true)
	if err != nil {
		log.Warn("failed to build capability schema, /schema will serve an error")
		schemaJSON = nil
	}

	router := mux.NewRouter()

	router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/schema", handleSchema(schemaJSON)).Methods(http.MethodGet)

	if metricsReg != nil && metricsReg.Prom != nil {
		router.Handle("/metrics", promhttp.HandlerFor(metricsReg.Prom, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// ListenAndServe blocks serving HTTP until Shutdown is called or the
// listener fails for a reason other than a graceful shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("admin server listening")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleSchema(schemaJSON []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if schemaJSON == nil {
			http.Error(w, "schema unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(schemaJSON)
	}
}
