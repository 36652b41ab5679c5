package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/travelclothingclub/api/internal/auth"
	"github.com/travelclothingclub/api/internal/client"
	"github.com/travelclothingclub/api/internal/config"
	"github.com/travelclothingclub/api/internal/handler"
	"github.com/travelclothingclub/api/internal/middleware"
	"github.com/travelclothingclub/api/internal/service"
	ws "github.com/travelclothingclub/api/internal/websocket"
	"github.com/travelclothingclub/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	redisOK := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisOK = false
		log.Printf("Warning: Redis not available, async jobs and rate limiting are degraded: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run(ctx)

	// External clients
	fashnClient := client.NewFashnClient(&cfg.Fashn, cfg.Server.Debug)
	if !fashnClient.IsConfigured() {
		log.Println("Warning: FASHN_API_KEY not set, try-on requests will fail with a configuration error")
	}

	var storage client.StorageClient
	if cfg.Storage.IsConfigured() {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage disabled: %v", err)
		} else {
			storage = s3Client
			log.Printf("Result archive enabled (bucket: %s)", cfg.Storage.BucketName)
		}
	}

	var verifier auth.TokenVerifier
	if cfg.Supabase.JWKSEndpoint() != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.Supabase)
		if err != nil {
			log.Printf("Warning: JWKS verification disabled: %v", err)
		} else {
			verifier = jwksVerifier
			defer jwksVerifier.Close()
		}
	}

	// Services
	tryOnService := service.NewTryOnService(fashnClient, &cfg.Fashn, cfg.Models, cfg.Server.Debug)
	jobService := service.NewJobService(redisClient, asynqClient)
	archiveService := service.NewArchiveService(storage)

	// Handlers
	ingress := handler.NewIngress(validate, cfg.Upload)
	tryOnHandler := handler.NewTryOnHandler(tryOnService, ingress, cfg.Upload, cfg.Fashn.RequestTimeout, cfg.Server.Debug)
	jobHandler := handler.NewJobHandler(tryOnService, jobService, ingress, cfg.Upload, cfg.Server.Debug)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(verifier, cfg.Supabase.JWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    32 * 1024 * 1024, // two images plus base64 overhead
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: logFormat(cfg.Server.LogLevel),
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"fashn":   tryOnService.IsConfigured(),
				"redis":   redisClient.Ping(c.UserContext()).Err() == nil,
				"storage": archiveService.IsConfigured(),
				"auth":    authMiddleware.IsConfigured(),
			},
		})
	})

	// Synchronous try-on. Public, handles its own CORS and method dispatch.
	tryOnLimit := rateLimiter.TryOnLimit(cfg.RateLimit.TryOnPerHour)
	app.All("/api/fashn-tryon", handler.CORS, tryOnLimit, tryOnHandler.Handle)
	app.All("/.netlify/functions/fashn-tryon", handler.CORS, tryOnLimit, tryOnHandler.Handle)

	// Async try-on jobs
	jobs := app.Group("/api/tryon", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}), authMiddleware.Authenticate())
	jobs.Post("/jobs", tryOnLimit, jobHandler.Start)
	jobs.Get("/jobs/:jobId", jobHandler.Status)
	jobs.Post("/jobs/:jobId/cancel", jobHandler.Cancel)

	// WebSocket progress stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId",
		jobHandler.Subscribe(authMiddleware.Authenticate()),
		jobHandler.AuthorizeSubscription,
		websocket.New(func(c *websocket.Conn) {
			hub.HandleConnection(c, c.Params("jobId"))
		}),
	)

	// Asynq worker server
	workerServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			service.QueueTryOn: 1,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})

	tryOnWorker := worker.NewTryOnWorker(tryOnService, jobService, archiveService, hub)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeTryOn, tryOnWorker.ProcessTask)

	if redisOK {
		if err := workerServer.Start(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		workerServer.Shutdown()
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s (env=%s, debug=%t)", addr, cfg.Server.Env, cfg.Server.Debug)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func logFormat(level string) string {
	if strings.EqualFold(level, "debug") {
		return "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${error}\n"
	}
	return "[${time}] ${status} - ${latency} ${method} ${path}\n"
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
