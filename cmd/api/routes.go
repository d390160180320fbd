package main

import (
	"context"
	"database/sql"
	"time"

	"voip-platform/internal/auth"
	"voip-platform/internal/httpapi"
	"voip-platform/internal/metrics"
	"voip-platform/internal/rbac"
	"voip-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a app, authManager *auth.Manager, db *sql.DB, rdb *redis.Client) {
	h := a.handlers

	// public
	r.GET("/healthz", httpapi.Healthz)
	r.GET("/readyz", httpapi.Readyz(map[string]httpapi.Check{
		"postgres": func(ctx context.Context) error { return utils.HealthCheck(ctx, db, time.Second) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, 2*time.Second))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	public := r.Group("", httpapi.RateLimit(a.publicLimiter))
	public.GET("/v1/rates", h.LookupRates)
	if h.DevLogin {
		public.POST("/auth/token", h.Login)
	}

	// Provider webhooks (public, authenticated by provider signatures).
	tw := r.Group("/webhooks/twilio", a.twilioWebhooks.VerifySignature())
	{
		tw.POST("/voice", a.twilioWebhooks.HandleVoice)
		tw.POST("/status", a.twilioWebhooks.HandleStatus)
		tw.POST("/recording", a.twilioWebhooks.HandleRecording)
	}
	r.POST("/webhooks/stripe", a.paymentWebhooks.Handle)
	if a.sandboxCheckout != nil {
		r.GET("/sandbox/checkout/:payment_id", a.sandboxCheckout.Complete)
	}

	// protected API group
	v1 := r.Group("/v1", auth.RequireAccessToken(authManager))
	httpapi.RegisterUser(v1, h)
	httpapi.RegisterAdmin(v1.Group("/admin", rbac.RequireAdmin()), h)
}
