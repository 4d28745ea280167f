package router

import (
	"github.com/concierge/gateway/internal/infrastructure/config"
	"github.com/concierge/gateway/internal/infrastructure/logger"
	"github.com/concierge/gateway/internal/interfaces/http/dto"
	"github.com/concierge/gateway/internal/interfaces/http/handler"
	"github.com/concierge/gateway/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers bundles the handler set the router wires up
type Handlers struct {
	Webhook *handler.WebhookHandler
	Admin   *handler.AdminHandler
	System  *handler.SystemHandler
}

// New builds the gin engine with middleware and all routes registered.
// Webhook endpoints stay unauthenticated at this layer; provider signature
// verification belongs to the channel providers' edge. The admin surface is
// guarded by the bearer token middleware.
func New(cfg *config.Config, log *zap.Logger, handlers Handlers) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := dto.RegisterValidators(); err != nil {
		log.Error("failed to register binding validators", zap.Error(err))
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
	)

	engine.GET("/health", handlers.System.Health)

	webhooks := engine.Group("/webhooks")
	{
		webhooks.POST("/voice", handlers.Webhook.HandleVoice)
		webhooks.POST("/messaging", handlers.Webhook.HandleMessaging)
		webhooks.POST("/web", handlers.Webhook.HandleWeb)
	}

	admin := engine.Group("/admin")
	admin.Use(middleware.AdminAuth(middleware.AdminAuthConfig{
		Secret: cfg.Admin.JWTSecret,
		Issuer: cfg.Admin.Issuer,
		Logger: log,
	}))
	{
		admin.POST("/bindings", handlers.Admin.RegisterBinding)
		admin.DELETE("/bindings", handlers.Admin.ReleaseBinding)
		admin.GET("/directory", handlers.Admin.GetDirectory)
		admin.POST("/directory/refresh", handlers.Admin.RefreshDirectory)
		admin.GET("/tenants/:id/usage", handlers.Admin.GetTenantUsage)
	}

	return engine
}
