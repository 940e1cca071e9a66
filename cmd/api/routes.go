package main

import (
	"casevoice/internal/calls"
	"casevoice/internal/config"
	"casevoice/internal/httpapi"
	"casevoice/internal/livefeed"
	"casevoice/internal/ratelimit"
	"casevoice/internal/softphone"
	"casevoice/internal/telephony"
	"casevoice/internal/transcription"
	"casevoice/internal/webhook"
	"casevoice/pkg/logger"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	Store       calls.Store
	Reconciler  *webhook.Reconciler
	Sessions    *transcription.Manager
	DialLimiter ratelimit.Limiter
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	{
		voice := telephony.VoiceHandler{PublicBaseURL: cfg.App.PublicBaseURL}
		r.POST("/webhooks/twilio/voice", voice.HandleVoice)

		wh := webhook.Handlers{Reconciler: deps.Reconciler}
		r.POST("/webhooks/twilio/voice-status", wh.HandleVoiceStatus)
		r.POST("/webhooks/twilio/recording-status", wh.HandleRecordingStatus)
	}

	// API group. Authentication lives in the upstream gateway, which
	// forwards the verified identity in X-User-Id.
	v1 := r.Group("/v1")
	{
		h := httpapi.Handlers{
			Calls: calls.NewService(deps.Store),
			Store: deps.Store,
			Tokens: softphone.NewTokenIssuer(
				cfg.Twilio.AccountSID,
				cfg.Twilio.APIKey,
				cfg.Twilio.APISecret,
				cfg.Twilio.TwimlAppSID,
				cfg.Calls.TokenTTL,
			),
			Dials:      deps.DialLimiter,
			FromNumber: cfg.Twilio.FromNumber,
		}
		if numbers, err := telephony.NewNumberSearch(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken); err == nil {
			h.Numbers = numbers
		}

		twilio := v1.Group("/twilio")
		{
			twilio.GET("/token", h.GetVoiceToken)
			twilio.GET("/available-numbers", h.ListAvailableNumbers)
		}

		callsGroup := v1.Group("/calls")
		{
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/stats", h.GetCallStats)
			callsGroup.GET("/:provider_call_id", h.GetCall)
			callsGroup.POST("/dial-check", h.DialCheck)
		}

		if deps.Sessions != nil {
			feed := livefeed.NewHandler(deps.Sessions)
			v1.GET("/calls/:provider_call_id/transcript/live", feed.HandleTranscriptFeed)
		} else {
			v1.GET("/calls/:provider_call_id/transcript/live", func(c *gin.Context) {
				logger.FromGin(c).Warn("live transcript requested but transcription is disabled")
				c.AbortWithStatusJSON(503, gin.H{"error": "live transcription not configured"})
			})
		}
	}
}
