package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skaiscraper/backend/docs"
	"github.com/skaiscraper/backend/internal/config"
	"github.com/skaiscraper/backend/internal/database"
	"github.com/skaiscraper/backend/internal/handlers"
	"github.com/skaiscraper/backend/internal/logger"
	"github.com/skaiscraper/backend/internal/metrics"
	mW "github.com/skaiscraper/backend/internal/middleware"
	"github.com/skaiscraper/backend/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title SkaiScraper Token Ledger API
// @version 1.0
// @description Token balances, usage metering and purchase crediting for SkaiScraper organizations
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := config.Init(os.Getenv("CONFIG_FILE")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	serverCfg := config.LoadServerConfig()

	zl, err := logger.New(serverCfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if serverCfg.JWTSecret == "" {
		zl.Fatal("JWT_SECRET_KEY is required")
	}

	docs.SwaggerInfo.Host = "localhost:" + serverCfg.Port

	ctx := context.Background()

	db, err := database.InitDB(ctx, zl)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	redisClient := database.InitRedis(ctx, zl)
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	adminCfg := config.LoadAdminConfig()
	stripeCfg := config.LoadStripeConfig()
	if stripeCfg.WebhookSecret == "" {
		zl.Warn("STRIPE_WEBHOOK_SECRET not set, all webhook deliveries will be rejected")
	}

	tokenService := services.NewTokenService(db, config.LoadLedgerConfig(), zl, ledgerMetrics)
	limiter := services.NewGrantLimiter(redisClient, adminCfg.GrantLimit, adminCfg.GrantWindow, ledgerMetrics, zl)
	webhook := services.NewStripeWebhook(stripeCfg.WebhookSecret, stripeCfg.SignatureTolerance)

	tokenHandler := handlers.NewTokenHandler(tokenService, zl)
	adminHandler := handlers.NewAdminHandler(tokenService, limiter, zl)
	webhookHandler := handlers.NewWebhookHandler(tokenService, webhook, zl)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(zl))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		services.SendJSON(w, code, map[string]string{"status": status})
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Stripe authenticates with its own signature
	r.Post("/webhooks/stripe", webhookHandler.Stripe)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware(serverCfg.JWTSecret))

		r.Get("/tokens/balance", tokenHandler.GetBalance)
		r.Get("/tokens/ledger", tokenHandler.ListLedger)
		r.Post("/tokens/usage", tokenHandler.RecordUsage)

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole("admin"))

			r.Post("/admin/tenants/{tenantId}/grants", adminHandler.Grant)
			r.Post("/admin/tenants/{tenantId}/reconcile", adminHandler.Reconcile)
		})
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + serverCfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		zl.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server stopped")
}
