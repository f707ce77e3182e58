package main

import (
	"net/http"

	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: protect with PBX signature validation in production.
	r.POST("/webhooks/pbx/call-events", h.CallEvent)

	// Login mints the token, so it sits outside the authenticated group.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// JOURNEY routes. Authoring is restricted to owner/manager;
		// read access extends to analysts.
		journeys := v1.Group("/journeys")
		journeys.Use(rbac.RequireTenant())
		{
			read := journeys.Group("")
			read.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
			{
				read.GET("", h.ListJourneys)
				read.GET("/:journey_id", h.GetJourney)
			}

			write := journeys.Group("")
			write.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleSuperAdmin))
			{
				write.POST("", h.CreateJourney)
				write.PATCH("/:journey_id/active", h.SetJourneyActive)
				write.DELETE("/:journey_id", h.DeleteJourney)
				write.POST("/:journey_id/enroll", h.EnrollLead)
			}
		}

		// LEAD JOURNEY routes. Agents can pause/resume while working a lead.
		leadJourneys := v1.Group("/lead-journeys")
		leadJourneys.Use(rbac.RequireTenant())
		leadJourneys.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleAgent, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			leadJourneys.GET("", h.ListLeadJourneys)
			leadJourneys.GET("/:lead_journey_id", h.GetLeadJourney)
			leadJourneys.GET("/:lead_journey_id/history", h.ListLeadJourneyHistory)
			leadJourneys.POST("/:lead_journey_id/pause", h.PauseLeadJourney)
			leadJourneys.POST("/:lead_journey_id/resume", h.ResumeLeadJourney)
		}

		// DIALER routes: DID inventory and tenant dial settings.
		dids := v1.Group("/dids")
		dids.Use(httpapi.RequireTenantAndAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleSuperAdmin)...)
		{
			dids.POST("", h.CreateDID)
			dids.GET("", h.ListDIDs)
			dids.PATCH("/:did_id/active", h.SetDIDActive)
		}

		settings := v1.Group("/dial-settings")
		settings.Use(httpapi.RequireTenantAndAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleSuperAdmin)...)
		{
			settings.GET("", h.GetDialSettings)
			settings.PUT("", h.UpsertDialSettings)
		}

		// LEAD routes exposed here are read-only views over dial activity.
		leadRoutes := v1.Group("/leads")
		leadRoutes.Use(rbac.RequireTenant())
		leadRoutes.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleAgent, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			leadRoutes.GET("/:lead_id/call-attempts", h.ListLeadCallAttempts)
		}
	}
}
