package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ashenomo/tomigaya/internal/middleware"
)

// healthCheckTimeout bounds the readiness probe of the cache backend.
const healthCheckTimeout = 2 * time.Second

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles liveness and readiness endpoints.
type HealthHandler struct {
	store Pinger
	env   string
}

// NewHealthHandler creates a HealthHandler. store may be nil when the cache
// backend has no connectivity to probe (the file store).
func NewHealthHandler(store Pinger, env string) *HealthHandler {
	return &HealthHandler{store: store, env: env}
}

// HealthResponse is the liveness response body.
type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
}

// ReadyResponse is the readiness response body.
type ReadyResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// Health handles GET /health: a basic liveness check with no dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Environment: h.env,
	})
}

// Ready handles GET /health/ready: verifies the cache backend is reachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, ReadyResponse{Status: "ready", Store: "file"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("cache store health check failed", err, nil)
		}
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Store:  "disconnected",
		})
		return
	}

	c.JSON(http.StatusOK, ReadyResponse{Status: "ready", Store: "connected"})
}
