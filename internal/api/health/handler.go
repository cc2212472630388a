// Package health provides health check endpoints for the API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/good-yellow-bee/blazereport/pkg/config"
)

// Checker defines the interface for health checkers.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewHandler creates a new health handler.
func NewHandler() *Handler {
	return &Handler{timeout: 5 * time.Second}
}

// RegisterChecker adds a dependency checker.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func write(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Health returns basic health status and the running version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	write(w, http.StatusOK, HealthResponse{Status: "ok", Version: config.Version})
}

// Live returns 200 while the process is running.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	write(w, http.StatusOK, HealthResponse{Status: "live"})
}

// Ready runs every registered checker and returns 200 only if all pass.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	allHealthy := true
	for _, checker := range checkers {
		if err := checker.Check(ctx); err != nil {
			results[checker.Name()] = err.Error()
			allHealthy = false
		} else {
			results[checker.Name()] = "ok"
		}
	}

	if !allHealthy {
		write(w, http.StatusServiceUnavailable, HealthResponse{Status: "not_ready", Checks: results})
		return
	}
	write(w, http.StatusOK, HealthResponse{Status: "ready", Checks: results})
}
