package main

import (
	"github.com/campuspool/backend/internal/config"
	"github.com/campuspool/backend/internal/middleware"
	"github.com/campuspool/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Health check
	r.GET("/health", svc.healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	{
		// SSE party event feed (board + inbox updates)
		api.GET("/events/stream", svc.streamHandler.StreamPartyEvents)

		// Everything else acts on behalf of an explicit user
		authed := api.Group("")
		authed.Use(middleware.Identity())
		{
			// Parties
			authed.POST("/parties", svc.partyHandler.Create)
			authed.GET("/parties", svc.partyHandler.List)
			authed.GET("/parties/mine", svc.partyHandler.Mine)
			authed.GET("/parties/:id", svc.partyHandler.GetByID)
			authed.POST("/parties/:id/leave", svc.partyHandler.Leave)
			authed.PUT("/parties/:id/status", svc.partyHandler.SetStatus)
			authed.DELETE("/parties/:id", svc.partyHandler.Delete)
			authed.GET("/parties/:id/requests", svc.requestHandler.Inbox)

			// Join requests
			authed.POST("/requests", svc.requestHandler.Create)
			authed.GET("/requests/pending", svc.requestHandler.Pending)
			authed.POST("/requests/:id/accept", svc.requestHandler.Accept)
			authed.POST("/requests/:id/decline", svc.requestHandler.Decline)
			authed.POST("/requests/:id/cancel", svc.requestHandler.Cancel)

			// Operator log
			authed.GET("/system-logs", svc.logHandler.List)
		}
	}
}
