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

	"github.com/skify/api/internal/client"
	"github.com/skify/api/internal/config"
	"github.com/skify/api/internal/handler"
	"github.com/skify/api/internal/middleware"
	"github.com/skify/api/internal/model"
	"github.com/skify/api/internal/pipeline"
	"github.com/skify/api/internal/queue"
	"github.com/skify/api/internal/service"
	"github.com/skify/api/internal/store"
	"github.com/skify/api/internal/worker"
	ws "github.com/skify/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize stores and queue
	jobs := store.NewRedisJobStore(redisClient, cfg.Worker.JobRetention)
	workflows := store.NewRedisWorkflowStore(redisClient, cfg.Worker.JobRetention)
	templates := store.NewRedisTemplateStore(redisClient)
	tasks := queue.NewAsynqQueue(asynqClient, cfg.Worker.JobRetention)

	// Initialize orchestrator and services
	orchestrator := pipeline.NewOrchestrator(jobs, workflows, tasks)
	transformService := service.NewTransformService(jobs, workflows, orchestrator, tasks)
	templateService := service.NewTemplateService(templates)

	// Initialize handlers
	transformHandler := handler.NewTransformHandler(transformService, validate)
	templateHandler := handler.NewTemplateHandler(templateService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis": redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Transform workflow routes
	transform := api.Group("/transform")
	transform.Post("/start", rateLimiter.TransformLimit(cfg.RateLimit.TransformPerHour), transformHandler.Start)
	transform.Post("/:workflowId/video", transformHandler.AttachVideo)
	transform.Get("/:workflowId", transformHandler.Workflow)

	// Standalone job routes
	jobsGroup := api.Group("/jobs")
	jobsGroup.Post("/", rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour), transformHandler.SubmitJob)
	jobsGroup.Get("/:jobId", transformHandler.JobStatus)
	jobsGroup.Get("/:jobId/result", transformHandler.JobResult)
	jobsGroup.Post("/:jobId/cancel", transformHandler.CancelJob)

	// Template library routes
	tpl := api.Group("/templates", rateLimiter.TemplateLimit(cfg.RateLimit.TemplatePerHour))
	tpl.Get("/", templateHandler.List)
	tpl.Get("/:templateId", templateHandler.Get)
	tpl.Delete("/:templateId", templateHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		// Note: In production, validate the token from query param
		// token := c.Query("token")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobs, templates, orchestrator, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, jobs store.JobStore, templates store.TemplateStore, orchestrator *pipeline.Orchestrator, hub *ws.Hub) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    cfg.Worker.Concurrency,
			Queues:         queue.Queues(),
			RetryDelayFunc: queue.RetryDelay,
		},
	)

	// Provider clients fall back to mock behavior when unconfigured
	analysisClient := client.NewAnalysisClient(&cfg.Analysis)
	renderClient := client.NewRenderClient(&cfg.Render)
	mediaClient := client.NewMediaClient(&cfg.Media)

	var storageClient client.StorageClient
	r2, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Printf("Warning: R2 storage not available: %v", err)
	} else {
		storageClient = r2
	}

	// Create workers
	runner := worker.NewRunner(jobs, hub, orchestrator)
	analysisWorker := worker.NewAnalysisWorker(runner, analysisClient)
	templateWorker := worker.NewTemplateWorker(runner, templates, storageClient)
	applyWorker := worker.NewApplyWorker(runner, templates, renderClient)
	exportWorker := worker.NewExportWorker(runner, renderClient, storageClient)
	importWorker := worker.NewImportWorker(runner, mediaClient)

	mux := asynq.NewServeMux()
	mux.HandleFunc(string(model.JobTypeViralAnalysis), analysisWorker.ProcessTask)
	mux.HandleFunc(string(model.JobTypeTemplateSave), templateWorker.ProcessTask)
	mux.HandleFunc(string(model.JobTypeTemplateApplication), applyWorker.ProcessTask)
	mux.HandleFunc(string(model.JobTypeExport), exportWorker.ProcessTask)
	mux.HandleFunc(string(model.JobTypeImportTikTok), importWorker.ProcessTask)
	mux.HandleFunc(string(model.JobTypeImportInstagram), importWorker.ProcessTask)
	mux.HandleFunc(string(model.JobTypeImportYouTube), importWorker.ProcessTask)

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
