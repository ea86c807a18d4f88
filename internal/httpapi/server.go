// Package httpapi serves the scanner's health, status and metrics
// endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/pipeline"
	"github.com/tokenscout/tokenscout/internal/providers"
)

// Server exposes /healthz, /status and /metrics for one scanner process.
type Server struct {
	controller *pipeline.Controller
	gate       *providers.Gate
	breakers   *providers.BreakerSet
	registry   *metrics.Registry
	providers  []string
	started    time.Time
}

// NewServer wires the status surface. providerNames lists the providers
// whose gate and breaker state the /status endpoint reports.
func NewServer(ctl *pipeline.Controller, gate *providers.Gate, breakers *providers.BreakerSet, registry *metrics.Registry, providerNames []string) *Server {
	return &Server{
		controller: ctl,
		gate:       gate,
		breakers:   breakers,
		registry:   registry,
		providers:  providerNames,
		started:    time.Now(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry.Prometheus(), promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe blocks serving the router on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("status server listening")
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// providerStatus is one provider's row on the status page.
type providerStatus struct {
	Breaker  string `json:"breaker"`
	Failures uint32 `json:"consecutive_failures"`
	Tripped  bool   `json:"tripped"`
	InFlight int    `json:"in_flight"`
}

type statusResponse struct {
	Uptime    string                    `json:"uptime"`
	Providers map[string]providerStatus `json:"providers"`
	LastCycle *pipeline.CostReport      `json:"last_cycle,omitempty"`
	Lifetime  pipeline.CostReport       `json:"lifetime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Providers: make(map[string]providerStatus, len(s.providers)),
		LastCycle: s.controller.LastReport(),
		Lifetime:  s.controller.Cost().Snapshot(),
	}
	for _, p := range s.providers {
		resp.Providers[p] = providerStatus{
			Breaker:  s.breakers.State(p),
			Failures: s.breakers.FailureCount(p),
			Tripped:  s.breakers.Tripped(p),
			InFlight: s.gate.InFlight(p),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("status encode failed")
	}
}
