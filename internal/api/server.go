// Package api exposes the planner over a small JSON HTTP surface with
// server-sent and WebSocket event streams.
package api

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"busquest/internal/metrics"
	"busquest/internal/planner"
	"busquest/internal/store"
)

type Server struct {
	Planner *planner.Service
	Store   store.Store
	Broker  EventBroker

	// AdminToken guards mutating admin endpoints. Empty means open, which is
	// only reasonable in development.
	AdminToken string
	Logger     *log.Logger
}

func NewServer(svc *planner.Service, st store.Store, broker EventBroker, adminToken string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if broker == nil {
		broker = NewBroker()
	}
	return &Server{Planner: svc, Store: st, Broker: broker, AdminToken: adminToken, Logger: logger}
}

// Routes builds the full request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/challenges", s.ChallengesHandler)
	mux.HandleFunc("/v1/challenges/", s.ChallengeByIDHandler) // includes /trace, /history
	mux.HandleFunc("/v1/diagnostics", s.DiagnosticsHandler)

	mux.HandleFunc("/v1/events/stream", s.EventStreamHandler)
	mux.HandleFunc("/v1/events/ws", s.EventWSHandler)

	mux.HandleFunc("/v1/admin/reload", s.ReloadHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return mux
}

// authorized checks the admin bearer token.
func (s *Server) authorized(r *http.Request) bool {
	if s.AdminToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.AdminToken
}
