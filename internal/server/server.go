// Package server assembles the HTTP surface: the query endpoint, health,
// and metrics.
package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/query_layer/infrastructure/config"
	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/infrastructure/httputil"
	"github.com/R3E-Network/query_layer/infrastructure/logging"
	"github.com/R3E-Network/query_layer/infrastructure/metrics"
	"github.com/R3E-Network/query_layer/infrastructure/middleware"
	"github.com/R3E-Network/query_layer/internal/query"
)

const serviceName = "queryserver"

// ServiceName returns the label under which this binary reports metrics.
func ServiceName() string { return serviceName }

// Server owns the router and the request driver.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *metrics.Metrics
	driver  *query.Driver
	started time.Time
}

// New wires the server together.
func New(cfg *config.Config, log *logging.Logger, m *metrics.Metrics, driver *query.Driver) *Server {
	if log == nil {
		log = logging.Default()
	}
	return &Server{
		cfg:     cfg,
		log:     log,
		metrics: m,
		driver:  driver,
		started: time.Now(),
	}
}

// Router builds the full middleware chain and routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(s.log).Handler)
	r.Use(middleware.LoggingMiddleware(s.log))
	if s.metrics != nil {
		r.Use(middleware.MetricsMiddleware(serviceName, s.metrics))
	}
	r.Use(middleware.NewBodyLimitMiddleware(s.cfg.MaxScriptBytes).Handler)

	queryHandler := http.Handler(http.HandlerFunc(s.handleQuery))
	if s.cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst, s.log)
		queryHandler = limiter.Handler(queryHandler)
	}

	r.Handle("/query", queryHandler).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// handleQuery reads the script body, runs it, and replies with either the
// JSON array of emitted values or a bare error string.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadAllStrict(r.Body, s.cfg.MaxScriptBytes)
	if err != nil {
		httputil.WriteText(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		httputil.WriteText(w, http.StatusBadRequest, "empty script")
		return
	}

	// A client that disconnects mid-run does not stop the engine; the
	// script runs to completion or to its limits.
	execCtx := context.WithoutCancel(r.Context())

	values, err := s.driver.Execute(execCtx, string(body))
	if err != nil {
		httputil.WriteText(w, errors.GetHTTPStatus(err), err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, values)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).String(),
	})
}
