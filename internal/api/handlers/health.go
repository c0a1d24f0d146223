package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health and readiness endpoints.
type HealthHandler struct {
	store Pinger
	cache Pinger
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(store, cache Pinger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache}
}

// Healthz returns 200 if the process is running.
func (*HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Readyz returns 200 if the database is reachable, 503 otherwise. An
// unreachable cache only degrades readiness since stats fall back to
// computing directly.
func (h *HealthHandler) Readyz(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, StatusResponse{Status: "unavailable"})
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			return c.JSON(http.StatusOK, StatusResponse{Status: "degraded"})
		}
	}

	return c.JSON(http.StatusOK, StatusResponse{Status: "ready"})
}
