package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/clinova/backend/internal/config"
	"github.com/clinova/backend/internal/database"
	"github.com/clinova/backend/internal/handlers"
	"github.com/clinova/backend/internal/jobs"
	"github.com/clinova/backend/internal/middleware"
	"github.com/clinova/backend/internal/queue"
	"github.com/clinova/backend/internal/routes"
	"github.com/clinova/backend/internal/services/affiliate"
	"github.com/clinova/backend/internal/services/commission"
	"github.com/clinova/backend/internal/services/fraud"
	"github.com/clinova/backend/internal/services/notification"
	"github.com/clinova/backend/internal/services/plan"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()

	// Initialize database
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Create Redis-backed queue instance
	redisQueue := queue.NewRedisQueue(redisClient)

	// Initialize services. The external fraud provider is optional;
	// without one, scoring falls back to local velocity heuristics.
	var scoreProvider fraud.ScoreProvider
	if cfg.Fraud.BaseURL != "" {
		scoreProvider = fraud.NewHTTPProvider(fraud.HTTPProviderConfig{
			BaseURL: cfg.Fraud.BaseURL,
			APIKey:  cfg.Fraud.APIKey,
		})
	}
	fraudService := fraud.NewService(db, scoreProvider)

	alertDispatcher := jobs.NewFraudAlertDispatcher(redisQueue)
	commissionService := commission.NewService(db, fraudService, alertDispatcher)
	commissionService.SetTransactionTimeout(time.Duration(cfg.Commission.TxTimeoutSeconds) * time.Second)

	affiliateService := affiliate.NewService(db)
	planService := plan.NewService(db)
	emailService := notification.NewEmailService()

	// Start background job processor
	jobProcessor := queue.NewJobProcessor(redisQueue, cfg.Commission.WorkerCount)
	jobs.RegisterAllJobHandlers(jobProcessor, commissionService, fraudService)
	go jobProcessor.Start()

	// Schedule the approval sweep
	scheduler, err := jobs.ScheduleRecurringJobs(redisQueue, time.Duration(cfg.Commission.SweepIntervalMins)*time.Minute)
	if err != nil {
		log.Fatalf("Failed to schedule recurring jobs: %v", err)
	}

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(commissionService, affiliateService, emailService)
	commissionHandler := handlers.NewCommissionHandler(planService, affiliateService, commissionService)
	affiliateHandler := handlers.NewAffiliateHandler(affiliateService, commissionService, emailService)

	rateLimiter := middleware.NewRateLimiter(
		20, cfg.Commission.WebhookRatePerSec,
		40, cfg.Commission.WebhookBurst,
	)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	// Setup routes
	routes.SetupWebhookRoutes(router, webhookHandler, rateLimiter)
	routes.RegisterCommissionRoutes(router, commissionHandler, rateLimiter)
	routes.RegisterAffiliateRoutes(router, affiliateHandler, rateLimiter)
	routes.RegisterAdminRoutes(router, commissionHandler)
	routes.RegisterHealthRoutes(router)

	// Start server
	srv := startServer(router, cfg.Server)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop background work before the server so in-flight requests can
	// still enqueue
	scheduler.Stop()
	jobProcessor.Stop()
	rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Port)
	return srv
}
