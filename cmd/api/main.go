package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/forest-dashboard/backend/internal/api/handlers"
	"github.com/forest-dashboard/backend/internal/cache/redis"
	"github.com/forest-dashboard/backend/internal/forest"
	"github.com/forest-dashboard/backend/internal/geo"
	"github.com/forest-dashboard/backend/internal/metrics"
	"github.com/forest-dashboard/backend/internal/middleware/ratelimit"
	"github.com/forest-dashboard/backend/internal/middleware/security"
	"github.com/forest-dashboard/backend/internal/warehouse"
	"github.com/forest-dashboard/backend/internal/web"
	"github.com/forest-dashboard/backend/pkg/config"
	appLogger "github.com/forest-dashboard/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting forest dashboard API server",
		zap.String("warehouse_driver", cfg.Warehouse.Driver),
	)

	metrics.Init()

	// Backend sessions open on first use; missing credentials surface as
	// configuration errors on the requests that need them.
	warehouseClient, err := warehouse.NewClient(cfg.Warehouse)
	if err != nil {
		appLogger.Fatal("Failed to create warehouse client", zap.Error(err))
	}
	defer warehouseClient.Close()

	geoClient := geo.NewClient(cfg.Geo)

	var responseCache redis.Cache
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			responseCache = redisClient
		}
	}

	service := forest.NewService(forest.Config{
		WarehouseSource: cfg.Dashboard.WarehouseSource,
		GeoSource:       cfg.Dashboard.GeoSource,
		PreflightCheck:  cfg.Geo.PreflightCheck,
		CacheTTL:        cfg.Redis.TTL(),
	}, warehouseClient, geoClient, responseCache)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.RequestIDMiddleware())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		IsDevelopment:  cfg.Security.IsDevelopment,
	}))
	app.Use(metrics.Middleware())
	app.Use(cors.New(cors.Config{
		// The forest-loss preflight is answered by its own handler.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions && c.Path() == "/api"+handlers.ForestLossPath
		},
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, OPTIONS",
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	if err := web.Register(app); err != nil {
		appLogger.Fatal("Failed to load dashboard pages", zap.Error(err))
	}

	var apiMiddleware []fiber.Handler
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Burst:                cfg.RateLimit.Burst,
			Logger:               appLogger.GetLogger(),
		})
		defer limiter.Stop()
		apiMiddleware = append(apiMiddleware, limiter.Middleware())
	}

	api := app.Group("/api", apiMiddleware...)
	handlers.RegisterRoutes(api, service)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
