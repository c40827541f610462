package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/concierge-backend/internal/handlers"
	"github.com/yungbote/concierge-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName    string
	MessageHandler *handlers.MessageHandler
	OpsHandler     *handlers.OpsHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Webhooks  ||
	// ===============
	webhooks := router.Group("/api/webhooks")
	webhooks.Use(cfg.AuthMiddleware.RequireWebhookToken())
	webhooks.POST("/:channel/messages", cfg.MessageHandler.ReceiveMessage)

	// ===============
	// || Operators ||
	// ===============
	ops := router.Group("/api/ops")
	ops.Use(cfg.AuthMiddleware.RequireOpsToken())
	ops.GET("/dlq", cfg.OpsHandler.ListDLQ)
	ops.POST("/dlq/drain", cfg.OpsHandler.DrainDLQ)
	ops.GET("/audit", cfg.OpsHandler.ListAudit)
	ops.GET("/failures", cfg.OpsHandler.ListPermanentFailures)
	ops.GET("/breaker/:tenant_id", cfg.OpsHandler.BreakerState)
	ops.GET("/tenants/:tenant_id/health", cfg.OpsHandler.TenantHealth)

	return router
}
