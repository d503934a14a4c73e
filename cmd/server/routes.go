package main

import (
	"github.com/gin-gonic/gin"

	"crosspay.facilitator/internal/interfaces/http/handlers"
	"crosspay.facilitator/internal/interfaces/http/middleware"
	"crosspay.facilitator/pkg/jwt"
	"crosspay.facilitator/pkg/metrics"
)

type routeDeps struct {
	facilitatorHandler *handlers.FacilitatorHandler
	bridgeJobHandler   *handlers.BridgeJobHandler
	jwtService         *jwt.JWTService
	// adminEnabled gates the admin group; without a configured secret the
	// admin API does not exist.
	adminEnabled bool
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	// Facilitator protocol surface
	r.POST("/verify", d.facilitatorHandler.Verify)
	r.POST("/settle", middleware.IdempotencyMiddleware(), d.facilitatorHandler.Settle)
	r.GET("/supported", d.facilitatorHandler.Supported)
	r.GET("/health", d.facilitatorHandler.Health)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if d.adminEnabled {
		admin := r.Group("/admin")
		admin.Use(middleware.AuthMiddleware(d.jwtService), middleware.RequireAdmin())
		{
			admin.GET("/bridge-jobs", d.bridgeJobHandler.List)
			admin.GET("/bridge-jobs/by-key/:key", d.bridgeJobHandler.GetByKey)
			admin.GET("/bridge-jobs/:id", d.bridgeJobHandler.Get)
			admin.GET("/bridge-jobs/:id/events", d.bridgeJobHandler.Events)
			admin.POST("/bridge-jobs/:id/cancel", d.bridgeJobHandler.Cancel)
		}
	}
}
