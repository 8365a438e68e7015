package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/pkg/middleware/requestid"
)

// Audit logs admin actions that completed successfully.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", requestid.Value(c)),
			zap.Time("at", start),
		}
		if claims := AdminClaims(c); claims != nil {
			fields = append(fields, zap.String("admin", claims.Email))
		}
		logger.Info("admin action", fields...)
	}
}
