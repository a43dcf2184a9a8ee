package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/codestore/domain/embedding"
)

// StatsSource reports per-backend counters.
type StatsSource interface {
	BackendStats() []embedding.BackendStats
}

// HealthRouter serves the health endpoint.
type HealthRouter struct {
	source StatsSource
}

// NewHealthRouter creates a new HealthRouter.
func NewHealthRouter(source StatsSource) *HealthRouter {
	return &HealthRouter{source: source}
}

// Routes returns the router for the health endpoint.
func (h *HealthRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", h.Health)
	return router
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status   string          `json:"status"`
	Backends []BackendHealth `json:"backends"`
}

// BackendHealth holds the counters of one backend.
type BackendHealth struct {
	Name      string `json:"name"`
	Requests  int64  `json:"requests"`
	Successes int64  `json:"successes"`
	Failures  int64  `json:"failures"`
}

// Health reports "ok" with the backend counters, or "unavailable" with 503
// when no backend is configured.
func (h *HealthRouter) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.source.BackendStats()

	response := HealthResponse{Status: "ok", Backends: make([]BackendHealth, 0, len(stats))}
	for _, s := range stats {
		response.Backends = append(response.Backends, BackendHealth{
			Name:      s.Name(),
			Requests:  s.Requests(),
			Successes: s.Successes(),
			Failures:  s.Failures(),
		})
	}

	status := http.StatusOK
	if len(stats) == 0 {
		response.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
