package httptransport

import (
	"context"
	"database/sql"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"girok/pkg/platform/httputil"
)

// Pinger is the slice of the cache client the readiness probe needs.
type Pinger interface {
	Health(ctx context.Context) error
}

// Health serves the liveness and readiness probes. Readiness flips to false
// at the start of the shutdown grace period so the edge drains traffic while
// in-flight requests finish.
type Health struct {
	db    *sql.DB
	cache Pinger
	ready atomic.Bool
}

func NewHealth(db *sql.DB, cache Pinger) *Health {
	h := &Health{db: db, cache: cache}
	h.ready.Store(true)
	return h
}

// SetReady toggles the readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Health) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/health/live", h.handleLive)
	r.Get("/health/ready", h.handleReady)
}

func (h *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Health) handleLive(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Nil dependencies are skipped so test assemblies without real backends
	// can still mount the probe.
	deps := map[string]string{}
	status := http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			deps["postgres"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			deps["postgres"] = "up"
		}
	}
	if h.cache != nil {
		if err := h.cache.Health(ctx); err != nil {
			deps["redis"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			deps["redis"] = "up"
		}
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
	})
}
