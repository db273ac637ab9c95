package main

import (
	"net/http"

	"callcenter-pro/internal/auctionlog"
	"callcenter-pro/internal/auth"
	"callcenter-pro/internal/config"
	"callcenter-pro/internal/httpapi"
	"callcenter-pro/internal/rbac"
	"callcenter-pro/internal/routing"
	"callcenter-pro/internal/rtb"
	"callcenter-pro/internal/rtb/harness"
	"callcenter-pro/internal/targets"
	"callcenter-pro/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type dependencies struct {
	cfg         config.Config
	auth        *auth.Manager
	coordinator *rtb.Coordinator
	harness     *harness.Harness
	records     *auctionlog.Service
	targetCache httpapi.CacheInvalidator
	numbers     targets.NumberResolver
}

// registerRoutes wires HTTP routes to handlers. No business logic here.
func registerRoutes(r *gin.Engine, d dependencies) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks: public, signature-checked.
	{
		router := routing.NewAuctionRouter(d.coordinator, d.records, nil)
		h := telephony.TwilioWebhookHandler{
			Provider: telephony.NewTwilioProvider(router),
			Numbers:  d.numbers,
		}
		r.POST("/webhooks/twilio/voice",
			telephony.RequireTwilioSignature(d.cfg.Twilio.AuthToken, d.cfg.Twilio.WebhookBaseURL),
			h.HandleInboundCall)
	}

	h := httpapi.Handlers{
		Auctions: d.coordinator,
		Tests:    d.harness,
		Records:  d.records,
		Cache:    d.targetCache,
	}

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth), rbac.RequireAccount())
	{
		campaigns := v1.Group("/campaigns/:campaign_id")
		campaigns.POST("/auctions", rbac.RequireAnyRole(rbac.CanRunAuctions...), h.RunAuction)
		campaigns.POST("/test-auction", rbac.RequireAnyRole(rbac.CanTestTargets...), h.TestCampaign)
		campaigns.DELETE("/target-cache", rbac.RequireAnyRole(rbac.CanTestTargets...), h.InvalidateTargetCache)
		campaigns.GET("/target-health", rbac.RequireAnyRole(rbac.CanReadReports...), h.TargetHealth)

		v1.POST("/targets/:target_id/test", rbac.RequireAnyRole(rbac.CanTestTargets...), h.TestTarget)
	}
}
