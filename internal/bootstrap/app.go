package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	httpHandler "sketch-lobby/internal/handler/http"
	wsHandler "sketch-lobby/internal/handler/websocket"
	"sketch-lobby/internal/hub"
	"sketch-lobby/internal/middleware"
	"sketch-lobby/internal/service"
	"sketch-lobby/internal/tasks"
	"sketch-lobby/internal/worker"
)

// App holds every long-running component of the lobby server.
type App struct {
	Config      *Config
	Log         *logrus.Logger
	Core        *Core
	AsynqClient *asynq.Client
	Worker      *worker.WorkerServer
	Scheduler   *worker.Scheduler
	Hub         *hub.Hub
	HttpServer  *http.Server

	stopHub context.CancelFunc
}

// NewApp loads configuration and wires all components.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel(), cfg.AppEnv)

	core, err := NewCore(cfg, log)
	if err != nil {
		return nil, err
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)

	// realtime
	correlator := service.NewSessionCorrelator(core.Store, core.Users, core.Auth, core.Locks, cfg.TxTimeout)
	hubInstance := hub.NewHub(correlator, tasks.NewDepartureQueue(asynqClient))

	// rooms
	coordinator := core.NewCoordinator(hubInstance)
	directory := service.NewRoomDirectory(core.Store.Rooms())
	guestService := service.NewGuestService(core.Guests)

	// background work
	workerServer := worker.NewWorkerServer(redisClientOpt, cfg.WorkerConcurrency,
		worker.NewExitBySessionHandler(coordinator),
		worker.NewFlaggedRoomAuditHandler(coordinator),
		log,
	)
	scheduler, err := worker.NewScheduler(redisClientOpt, cfg.AuditSchedule, log)
	if err != nil {
		return nil, fmt.Errorf("failed to register audit schedule: %w", err)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))
	router.Use(middleware.RateLimit(core.RedisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))

	httpHandler.RegisterRoutes(router,
		httpHandler.NewAuthHandler(core.Auth, guestService),
		httpHandler.NewRoomHandler(directory, coordinator, correlator),
		middleware.Identity(core.Resolver),
	)
	router.GET("/ws/rooms/:roomId", wsHandler.NewWebSocketHandler(hubInstance, correlator, cfg.CORSAllowedOrigin).HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	return &App{
		Config:      cfg,
		Log:         log,
		Core:        core,
		AsynqClient: asynqClient,
		Worker:      workerServer,
		Scheduler:   scheduler,
		Hub:         hubInstance,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start launches the hub, the worker, the scheduler and the HTTP server.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopHub = cancel
	go a.Hub.Run(ctx)
	go a.Worker.Start()
	go a.Scheduler.Start()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown stops accepting requests, drains background work and closes
// connections.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	if a.stopHub != nil {
		a.stopHub()
	}
	a.Scheduler.Shutdown()
	a.Worker.Shutdown()

	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq client: %v", err)
	}
	a.Core.Close(a.Log)
	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}

// CORSMiddleware allows the configured browser origin, including the guest
// header.
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, "+service.GuestHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", service.GuestHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
