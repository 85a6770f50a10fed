package main

import (
	"context"
	"net/http"

	"lead-recovery/internal/httpapi"
	"lead-recovery/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, ready func(context.Context) error) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/v1/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer))
	{
		v1.GET("/leads", h.ListLeads)
		v1.GET("/dashboard", h.Dashboard)
		v1.GET("/campaigns/:id", h.GetCampaign)

		// Outbound traffic: operator only.
		dial := v1.Group("")
		dial.Use(rbac.RequireDialer())
		{
			dial.POST("/campaigns", h.StartCampaign)
			dial.POST("/campaigns/test", h.TestBlast)
			dial.POST("/sms", h.SendSMS)
		}
	}
}
