package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "crosspay.facilitator/internal/domain/errors"
	"crosspay.facilitator/internal/interfaces/http/response"
	"crosspay.facilitator/pkg/jwt"
)

const (
	SubjectKey = "token_subject"
	RoleKey    = "token_role"

	RoleAdmin = "admin"
)

// AuthMiddleware validates a Bearer token on the admin API.
func AuthMiddleware(jwtService *jwt.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, domainerrors.Unauthorized("authorization header is missing"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, domainerrors.Unauthorized("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, domainerrors.Unauthorized("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// RequireAdmin rejects tokens without the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != RoleAdmin {
			response.Error(c, domainerrors.Forbidden("admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
