package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/admission-sync/pkg/errors"
	"github.com/noah-isme/admission-sync/pkg/response"
)

// RoleAdmin is the role carried by imported administrators.
const RoleAdmin = "admin"

// RequireRoles lets the request through only when the admin's role is one of roles.
// Roles compare case-insensitively since they come from a hand-edited spreadsheet.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := AdminClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(claims.Role))]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin is RequireRoles(RoleAdmin).
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(RoleAdmin)
}
