package obs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadyCheck reports whether a backing dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// HealthHandlers exposes endpoints for liveness and readiness checks.
type HealthHandlers struct {
	Checks map[string]ReadyCheck
	Logger *slog.Logger
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			logger := h.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "dependency": name})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
