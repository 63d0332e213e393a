package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"busquest/internal/buildinfo"
	"busquest/internal/model"
	"busquest/internal/planner"
	"busquest/internal/store"
)

// ChallengesHandler handles GET /v1/challenges
func (s *Server) ChallengesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Planner.ListChallenges()})
}

// ChallengeByIDHandler handles GET /v1/challenges/{id} plus the /trace and
// /history subresources.
func (s *Server) ChallengeByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/challenges/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing challenge id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		plan, err := s.Planner.GetChallenge(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	case len(parts) == 2 && parts[1] == "trace":
		trace, err := s.Planner.SearchTrace(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, trace)
	case len(parts) == 2 && parts[1] == "history":
		s.historyHandler(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request, id string) {
	if s.Store == nil {
		writeProblem(w, http.StatusNotFound, "History unavailable", "no plan store configured", r.URL.Path)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	plans, err := s.Store.ListPlans(r.Context(), id, limit)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusInternalServerError, "History lookup failed", err.Error(), r.URL.Path)
		return
	}
	if plans == nil {
		plans = []*model.ChallengePlan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": plans})
}

// DiagnosticsHandler handles GET /v1/diagnostics
func (s *Server) DiagnosticsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Planner.Diagnostics(r.Context()))
}

// ReloadHandler handles POST /v1/admin/reload
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin token required", r.URL.Path)
		return
	}
	version, err := s.Planner.Reload(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	evt := Event{Type: "network.reloaded", Data: map[string]any{
		"networkVersion": version,
		"ts":             time.Now().UTC().Format(time.RFC3339),
	}}
	for _, info := range s.Planner.ListChallenges() {
		s.Broker.Publish(info.ID, evt)
	}
	writeJSON(w, http.StatusOK, map[string]any{"networkVersion": version})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler handles GET /readyz. Ready means a usable snapshot is loaded.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.Planner.Snapshot()
	if snap == nil || len(snap.Stops) == 0 || len(snap.Edges) == 0 {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", "network snapshot is empty", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "networkVersion": snap.Version})
}

// writeError maps planner errors onto problem responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var noPath *planner.NoPathFoundError
	var cfgErr *planner.ConfigValidationError
	switch {
	case errors.Is(err, planner.ErrUnknownChallenge):
		writeProblem(w, http.StatusNotFound, "Challenge not found", err.Error(), r.URL.Path)
	case errors.As(err, &noPath):
		writeProblem(w, http.StatusUnprocessableEntity, "No itinerary found", err.Error(), r.URL.Path)
	case errors.As(err, &cfgErr):
		writeProblem(w, http.StatusBadRequest, "Invalid configuration", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), r.URL.Path)
	}
}
