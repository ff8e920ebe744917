package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/pairroom/internal/room"
	"github.com/ashureev/pairroom/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// ConnectionCounter reports open realtime connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo        store.Repository
	registry    *room.Registry
	connections ConnectionCounter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, registry *room.Registry, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{repo: repo, registry: registry, connections: connections}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.registry != nil {
		status["rooms"] = h.registry.Len()
	}
	if h.connections != nil {
		status["connections"] = h.connections.ConnectionCount()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
