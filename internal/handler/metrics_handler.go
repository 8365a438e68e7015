package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admission-sync/internal/service"
	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
	"github.com/noah-isme/admission-sync/pkg/response"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether one dependency answers.
type ReadinessCheck func(ctx context.Context) error

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	checks  map[string]ReadinessCheck
}

// NewMetricsHandler constructs a metrics handler. Every check must pass for /ready to succeed.
func NewMetricsHandler(metrics *service.MetricsService, checks map[string]ReadinessCheck) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, checks: checks}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness probes.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every readiness check and reports the store as unavailable when one fails.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	var failed error
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			failed = err
			continue
		}
		results[name] = "ok"
	}
	if failed != nil {
		appErr := appErrors.Wrap(failed, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "dependencies not ready")
		response.ErrorWithMeta(c, appErr, map[string]interface{}{"checks": results})
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "ready", "checks": results}, nil)
}
