package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"crosspay.facilitator/pkg/utils"
)

const RequestIDKey = "request_id"

// RequestIDMiddleware assigns each request a unique id, honoring an
// incoming X-Request-ID header so upstream traces carry through.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = utils.GenerateUUIDv7().String()
		}

		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)

		// The string key matches what pkg/logger reads out of the request
		// context.
		ctx := context.WithValue(c.Request.Context(), "request_id", id) //nolint:staticcheck
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
