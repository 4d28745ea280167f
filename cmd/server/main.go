package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/concierge/gateway/internal/application/admission"
	directoryapp "github.com/concierge/gateway/internal/application/directory"
	"github.com/concierge/gateway/internal/application/gateway"
	sessionapp "github.com/concierge/gateway/internal/application/session"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/concierge/gateway/internal/infrastructure/cache"
	"github.com/concierge/gateway/internal/infrastructure/config"
	"github.com/concierge/gateway/internal/infrastructure/engine"
	"github.com/concierge/gateway/internal/infrastructure/logger"
	"github.com/concierge/gateway/internal/infrastructure/persistence"
	"github.com/concierge/gateway/internal/infrastructure/telemetry"
	"github.com/concierge/gateway/internal/interfaces/http/handler"
	"github.com/concierge/gateway/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting concierge gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewGatewayMetrics(meterProvider)
	if err != nil {
		log.Fatal("Failed to create gateway metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Dedup store: Redis when configured, in-memory otherwise
	var dedup shared.DedupStore
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		dedup = cache.NewRedisDedupStoreWithClient(redisClient, "")
		log.Info("Redis dedup store initialized", zap.String("addr", cfg.Redis.Addr()))
	} else {
		dedup = cache.NewInMemoryDedupStore()
		log.Info("In-memory dedup store initialized")
	}
	defer func() {
		if err := dedup.Close(); err != nil {
			log.Error("Error closing dedup store", zap.Error(err))
		}
	}()

	// Repositories
	bindingRepo := persistence.NewGormBindingRepository(db.DB)
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	usageRepo := persistence.NewGormUsageRepository(db.DB)
	policyRepo := persistence.NewGormPolicyRepository(db.DB)
	overageSink := persistence.NewGormOverageSink(db.DB)

	// Directory cache: built in bulk before serving traffic
	directoryCache := directoryapp.NewCache(bindingRepo, tenantRepo, log)
	if err := directoryCache.Refresh(ctx); err != nil {
		log.Fatal("Failed to build directory snapshot", zap.Error(err))
	}
	log.Info("Directory snapshot built", zap.Time("built_at", directoryCache.BuiltAt()))

	// Admission controller and session manager
	admissionController := admission.NewController(usageRepo, policyRepo, overageSink, log, metrics)
	sessionManager := sessionapp.NewManager(sessionapp.ManagerConfig{
		IdleTimeout:   cfg.Session.IdleTimeout,
		EvictInterval: cfg.Session.EvictInterval,
	}, log, metrics)

	// Conversation engine
	var conversationEngine gateway.ConversationEngine
	switch cfg.Engine.Provider {
	case "openai":
		conversationEngine, err = engine.NewOpenAIEngine(engine.OpenAIConfig{
			APIKey:      cfg.Engine.APIKey,
			BaseURL:     cfg.Engine.BaseURL,
			Model:       cfg.Engine.Model,
			MaxTokens:   cfg.Engine.MaxTokens,
			Temperature: cfg.Engine.Temperature,
		}, log)
		if err != nil {
			log.Fatal("Failed to create conversation engine", zap.Error(err))
		}
	default:
		conversationEngine = engine.NewStaticEngine()
		log.Warn("Using static conversation engine", zap.String("provider", cfg.Engine.Provider))
	}
	conversationEngine = gateway.NewRetryingEngine(
		conversationEngine, cfg.Dispatch.EngineRetries, cfg.Dispatch.EngineRetryBackoff, log,
	)

	// Dispatcher
	dispatcher := gateway.NewDispatcher(
		gateway.DispatcherConfig{
			DedupTTL:           cfg.Dispatch.DedupTTL,
			EngineTimeout:      cfg.Dispatch.EngineTimeout,
			DeniedMessage:      cfg.Dispatch.DeniedMessage,
			UnavailableMessage: cfg.Dispatch.UnavailableMessage,
		},
		directoryCache, admissionController, sessionManager, conversationEngine, dedup, log, metrics,
	)

	// Background loops
	go directoryCache.RunPeriodicRefresh(ctx, cfg.Directory.RefreshInterval)
	go sessionManager.RunEvictionLoop(ctx)

	// HTTP server
	ginEngine := router.New(cfg, log, router.Handlers{
		Webhook: handler.NewWebhookHandler(dispatcher),
		Admin:   handler.NewAdminHandler(directoryCache, admissionController),
		System:  handler.NewSystemHandler(db.Ping, redisClient),
	})

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal("HTTP server failed", zap.Error(err))
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	log.Info("Gateway stopped")
}
