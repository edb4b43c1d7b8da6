package main

import (
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/webhook"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, wh *webhook.Handler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Telnyx signature validation in production.
	r.POST("/webhooks/telnyx/call", wh.HandleCallEvent)

	// AUTH routes (token issuance).
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// RUN routes: agents drive their own runs; managers and admins can
		// control any run.
		runs := v1.Group("/runs")
		runs.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			runs.POST("", h.CreateRun)
			runs.GET("/:run_id", h.GetRun)
			runs.POST("/:run_id/start", h.StartRun)
			runs.POST("/:run_id/control", h.ControlRun)
			runs.GET("/:run_id/summary", h.RunSummary)
		}

		// CALLS routes (manual click-to-call)
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			calls.POST("/start", h.ManualDial)
		}

		// DISPOSITION routes
		dispositions := v1.Group("/dispositions")
		dispositions.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			dispositions.POST("/apply", h.ApplyDisposition)
		}
	}
}
