package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-sync/internal/service"
)

func newMetricsRouter(checks map[string]ReadinessCheck) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(service.NewMetricsService(), checks)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	return r
}

func TestMetricsHandlerReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	r := newMetricsRouter(map[string]ReadinessCheck{"postgres": ok})

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/ready", nil).Code)
}

func TestMetricsHandlerNotReady(t *testing.T) {
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }
	r := newMetricsRouter(map[string]ReadinessCheck{"postgres": down})

	rec := doRequest(r, http.MethodGet, "/ready", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "STORE_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, map[string]interface{}{"postgres": "dial tcp: connection refused"}, env.Meta["checks"])
}

func TestMetricsHandlerServesPrometheus(t *testing.T) {
	rec := doRequest(newMetricsRouter(nil), http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutines_total")
}
