package main

import (
	"dialer-platform/internal/bridge"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/inbound"
	"dialer-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW, signatureMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	// Provider webhooks. Signature-validated, never behind user auth.
	{
		r.POST(httpapi.VoiceWebhookPath, signatureMW, h.InboundVoice)
		r.POST(httpapi.OutgoingWebhookPath, signatureMW, h.OutgoingVoice)
		r.POST(inbound.InboundStatusPath, signatureMW, h.InboundStatus)
		r.POST(httpapi.ConferenceStatusWebhookPath, signatureMW, h.ConferenceStatus)
		r.POST(bridge.CallStatusPath, signatureMW, h.CallStatusWebhook)
	}

	// The refresh token is its own credential.
	r.POST("/v1/auth/refresh", h.RefreshToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		agents := v1.Group("/agents")
		{
			agents.GET("/availability", h.GetAvailability)
			agents.POST("/availability", h.SetAvailability)
		}

		in := v1.Group("/inbound")
		{
			in.GET("/waiting", h.Waiting)
			in.POST("/claim", h.Claim)
		}

		calls := v1.Group("/calls")
		{
			calls.POST("", h.Dial)
			calls.POST("/log", h.LogCall)
			calls.GET("/:sid/status", h.CallStatus)
			calls.POST("/:sid/end", h.EndCall)
		}

		v1.GET("/voice/token", h.VoiceToken)

		leads := v1.Group("/leads")
		{
			leads.GET("", h.ListLeads)
			leads.GET("/:id", h.GetLead)
			leads.PATCH("/:id", h.UpdateLead)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/setup", h.SetupNumber)
		}
	}
}
