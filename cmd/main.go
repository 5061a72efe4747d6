package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/events"
	"catalog-import-service/internal/handlers"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/services"
	"catalog-import-service/internal/subscribers"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

// @title Catalog Import API
// @version 1.0.0
// @description Bulk catalog import service with staged sessions, validation and rollback support
// @termsOfService http://swagger.io/terms/

// @contact.name Catalog Import API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8097
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	// Set Redis password from GCP Secret Manager
	redisOpts.Password = secrets.GetRedisPassword()
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (caching will be disabled)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Initialize repositories
	sessionRepo := repository.NewSessionRepository(db, redisClient)
	catalogRepo := repository.NewCatalogRepository(db, redisClient)

	// Initialize event publisher for audit trail only if NATS_URL is set
	var eventsPublisher *events.Publisher
	natsURL := os.Getenv("NATS_URL")
	if natsURL != "" {
		var err error
		eventsPublisher, err = events.NewPublisher(logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
	}()

	// Initialize service layer (publisher may be nil if NATS not configured)
	importService := services.NewImportService(sessionRepo, catalogRepo, eventsPublisher, logger)

	// Initialize handlers
	importHandler := handlers.NewImportHandler(importService)
	sessionHandler := handlers.NewSessionHandler(importService)

	// Start approval subscriber when commits require sign-off
	var approvalSubscriber *subscribers.ApprovalSubscriber
	if cfg.RequireCommitApproval && natsURL != "" {
		approvalSubscriber, err = subscribers.NewApprovalSubscriber(importService, logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize approval subscriber: %v (continuing without approval flow)", err)
		} else if err := approvalSubscriber.Start(context.Background()); err != nil {
			log.Printf("WARNING: Failed to start approval subscriber: %v", err)
		} else {
			log.Println("✓ Approval subscriber started")
		}
	}
	defer func() {
		if approvalSubscriber != nil {
			approvalSubscriber.Stop()
		}
	}()

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("catalog-import-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("catalog-import-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("tesseract", "catalog_import_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize RBAC middleware
	staffServiceURL := os.Getenv("STAFF_SERVICE_URL")
	if staffServiceURL == "" {
		staffServiceURL = "http://staff-service:8080"
	}
	rbacMw := rbac.NewMiddlewareWithURL(staffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("catalog-import-service"))
	router.Use(gosharedmw.CompressionMiddleware())

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.HealthCheck)
	router.GET("/metrics", gosharedmw.Handler())

	// Protected API routes
	api := router.Group("/api/v1")

	// Initialize Istio auth middleware for Keycloak JWT validation
	// During migration, AllowLegacyHeaders enables fallback to X-* headers from auth-bff
	istioAuthLogger := logrus.NewEntry(logger).WithField("component", "istio_auth")
	istioAuth := gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
		RequireAuth:        true,
		AllowLegacyHeaders: true, // Allow X-User-ID, X-Tenant-ID during migration
		Logger:             istioAuthLogger,
	})

	// Authentication middleware
	// In development: use DevelopmentAuthMiddleware for local testing
	// In production: use IstioAuth which reads x-jwt-claim-* headers from Istio
	//                or falls back to X-* headers from auth-bff during migration
	if cfg.Environment == "development" {
		api.Use(middleware.DevelopmentAuthMiddleware())
	} else {
		api.Use(istioAuth)
	}
	api.Use(middleware.TenantMiddleware())

	// API routes
	v1 := api.Group("")
	{
		catalogImport := v1.Group("/catalog/import")
		{
			// Templates - require products:read permission
			catalogImport.GET("/templates/:entity", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.GetImportTemplate)

			sessions := catalogImport.Group("/sessions")
			{
				// Read operations - require products:read permission
				sessions.GET("", rbacMw.RequirePermission(rbac.PermissionProductsRead), sessionHandler.ListSessions)
				sessions.GET("/:id", rbacMw.RequirePermission(rbac.PermissionProductsRead), sessionHandler.GetSession)
				sessions.GET("/:id/errors.csv", rbacMw.RequirePermission(rbac.PermissionProductsRead), sessionHandler.DownloadErrors)

				// Staging operations - require products:import permission
				sessions.POST("", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.UploadImport)
				sessions.POST("/:id/files", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.AppendImportFile)
				sessions.PUT("/:id", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.UpdateSession)
				sessions.POST("/:id/rows", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.AddRow)
				sessions.PATCH("/:id/rows", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.UpdateRow)
				sessions.POST("/:id/rows/delete", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.RemoveRow)

				// Lifecycle operations - require products:import permission
				sessions.POST("/:id/save", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.SaveSession)
				sessions.POST("/:id/rollback", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.RollbackSession)
				sessions.POST("/:id/discard", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.DiscardSession)
				sessions.DELETE("/:id", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.DeleteSession)
				sessions.DELETE("/history", rbacMw.RequirePermission(rbac.PermissionProductsImport), sessionHandler.ClearHistory)
			}
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Start server
	port := cfg.Port
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Catalog import service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down catalog-import-service...")

	// Shutdown tracer provider
	if tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Catalog import service stopped")
}
