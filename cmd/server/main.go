package main

import (
	"context"
	"log"
	"os"
	"os/signal"
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

	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/config"
	"github.com/stemforge/api/internal/handler"
	"github.com/stemforge/api/internal/model"
	"github.com/stemforge/api/internal/pipeline"
	"github.com/stemforge/api/internal/service"
	"github.com/stemforge/api/internal/store"
	"github.com/stemforge/api/internal/worker"
	ws "github.com/stemforge/api/internal/websocket"
)

// engineBackend is the full engine surface: the pipeline stage operations
// plus the preview operations of the analysis flow.
type engineBackend interface {
	pipeline.Engine
	service.AudioPreviewer
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize job store
	jobStore, err := store.NewJobStore(cfg.Jobs.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize engine backend
	var engine engineBackend
	if cfg.Engine.ServiceURL != "" {
		engineClient := client.NewEngineClient(&cfg.Engine)
		if err := engineClient.HealthCheck(ctx); err != nil {
			log.Printf("Warning: engine service not reachable: %v", err)
		}
		engine = engineClient
	} else {
		log.Println("Info: engine service not configured, using mock engine")
		engine = client.NewMockEngine()
	}

	// Initialize chat provider clients
	geminiClient := client.NewGeminiClient(&cfg.Gemini)
	groqClient := client.NewGroqClient(&cfg.Groq)
	if !geminiClient.IsConfigured() {
		log.Println("Info: Gemini not configured, using mock replies")
	}
	if !groqClient.IsConfigured() {
		log.Println("Info: Groq not configured, using mock replies")
	}

	// Initialize session registry
	var registry service.SessionRegistry
	if cfg.Session.Registry == "redis" {
		registry = service.NewRedisSessionRegistry(redisClient)
	} else {
		if cfg.Session.Registry != "memory" {
			log.Printf("Unknown session registry %q, using memory", cfg.Session.Registry)
		}
		registry = service.NewMemorySessionRegistry()
	}

	// Initialize services
	chatService := service.NewChatService(registry, geminiClient, groqClient, jobStore, model.ProviderTag(cfg.Chat.DefaultProvider))
	midiValidator := service.NewMidiValidator(geminiClient)
	analysisService := service.NewAnalysisService(engine, chatService, jobStore)

	// Initialize pipeline orchestrator
	orch := pipeline.NewOrchestrator(jobStore, engine, midiValidator, cfg.Jobs.DefaultStrategy, hub)

	// Initialize job dispatcher
	var dispatcher worker.Dispatcher
	var pool *worker.Pool
	if cfg.Worker.Driver == "asynq" {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		dispatcher = worker.NewAsynqDispatcher(asynqClient)
		go startWorkerServer(cfg, orch)
	} else {
		if cfg.Worker.Driver != "memory" {
			log.Printf("Unknown worker driver %q, using memory", cfg.Worker.Driver)
		}
		pool = worker.NewPool(cfg.Worker.Concurrency, orch)
		dispatcher = pool
	}

	jobService := service.NewJobService(jobStore, dispatcher, cfg.Jobs.DefaultStrategy)

	// Initialize handlers
	dev := cfg.Server.Env == "development"
	jobHandler := handler.NewJobHandler(jobService, validate, dev)
	analysisHandler := handler.NewAnalysisHandler(analysisService, chatService, validate, dev)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    100 * 1024 * 1024, // 100MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine": cfg.Engine.ServiceURL != "",
				"gemini": geminiClient.IsConfigured(),
				"groq":   groqClient.IsConfigured(),
				"redis":  redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	// Job routes
	jobs := api.Group("/jobs")
	jobs.Post("/", jobHandler.Submit)
	jobs.Get("/:jobId/status", jobHandler.Status)
	jobs.Get("/:jobId/midi", jobHandler.Midi)
	jobs.Get("/:jobId/analysis", jobHandler.Analysis)

	// Analysis routes
	api.Post("/spectrogram", analysisHandler.Spectrogram)
	api.Post("/analyze", analysisHandler.Analyze)
	api.Post("/chat", analysisHandler.Chat)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if pool != nil {
			pool.Shutdown()
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, runner worker.Runner) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"pipeline": 1,
			},
		},
	)

	pipelineWorker := worker.NewPipelineWorker(runner)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypePipeline, pipelineWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
