package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"heartwise/config"
	"heartwise/middleware"
	"heartwise/provider"
	"heartwise/queue"
	"heartwise/routes"
	"heartwise/utils"
	"heartwise/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "HEARTWISE: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Build the provider registry from stored settings
	registry, err := provider.BuildRegistry(config.DB, utils.Decrypt)
	if err != nil {
		logger.Fatalf("Failed to build provider registry: %v", err)
	}
	if registry.ActiveName() == "" {
		logger.Println("⚠️ No email provider configured yet; sends will fail until one is set up")
	} else {
		logger.Printf("Active email provider: %s", registry.ActiveName())
	}

	// Queue orchestrator over the gorm-backed store
	store := queue.NewGormStore(config.DB)
	orchestrator := queue.NewOrchestrator(store, registry, log.New(os.Stdout, "QUEUE: ", log.LstdFlags))

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Start the background queue worker
	queueWorker := worker.NewQueueWorker(orchestrator.Scheduler, log.New(os.Stdout, "WORKER: ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queueWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, orchestrator, registry)

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
