/**
 * @description
 * Main entry point for the Veristat Backend API.
 * Initializes the Fiber web server, loads configuration, and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Redis connection
 *
 * @notes
 * - Redis is optional: without REDIS_URL the badge ledger and metadata cache
 *   run on the in-memory backend.
 */

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/veristat-project/backend/internal/activity"
	"github.com/veristat-project/backend/internal/api"
	"github.com/veristat-project/backend/internal/cache"
	"github.com/veristat-project/backend/internal/config"
	"github.com/veristat-project/backend/internal/db"
	"github.com/veristat-project/backend/internal/logger"
	"github.com/veristat-project/backend/internal/session"
	"github.com/veristat-project/backend/internal/venue"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Cache backend: Redis when configured, in-memory otherwise
	var backend cache.Backend = cache.NewMemoryBackend()
	if cfg.Redis.URL != "" {
		redisClient, err := db.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		backend = cache.NewRedisBackend(redisClient, "veristat")
	} else {
		logger.Info("REDIS_URL not set, using in-memory cache backend")
	}
	store := cache.New(backend)

	// 3. Core collaborators
	venueClient := venue.NewClient(cfg, store)
	ledger := activity.NewBadgeLedger(store)
	sessions := session.NewManager(cfg, venueClient, ledger)

	// 4. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "Veristat Analytics",
		StrictRouting: false,
		CaseSensitive: true,
	})

	// 5. Global Middleware
	app.Use(recover.New())     // Panic recovery
	app.Use(fiberlogger.New()) // Request logging
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	// 6. Routes
	api.SetupRoutes(app, sessions)

	// 7. Graceful shutdown: tear every session down as a unit
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down...")
		sessions.CloseAll()
		_ = app.Shutdown()
	}()

	logger.Info("🚀 Starting Veristat Backend on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
