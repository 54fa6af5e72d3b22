package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wekezahq/nexus/internal/fraud"
	"github.com/wekezahq/nexus/internal/payments"
	"github.com/wekezahq/nexus/pkg/common"
	"github.com/wekezahq/nexus/pkg/config"
	"github.com/wekezahq/nexus/pkg/database"
	"github.com/wekezahq/nexus/pkg/logger"
	"github.com/wekezahq/nexus/pkg/middleware"
	"github.com/wekezahq/nexus/pkg/redis"
	"go.uber.org/zap"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load("nexus")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Connect to PostgreSQL and apply migrations
	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	if err := database.RunMigrations(&cfg.Database); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL, migrations applied")

	// Build the fraud policy with config overrides
	policy := fraud.DefaultPolicy()
	if v := cfg.Fraud.CircularLookbackHours; v > 0 {
		policy.CircularLookback = time.Duration(v) * time.Hour
	}
	if v := cfg.Fraud.MaxGraphNodes; v > 0 {
		policy.MaxGraphNodes = v
	}
	if v := cfg.Fraud.AllowMaxScore; v > 0 {
		policy.AllowMaxScore = v
	}
	if v := cfg.Fraud.ReviewMaxScore; v > 0 {
		policy.ReviewMaxScore = v
	}
	if v := cfg.Fraud.ChallengeMaxScore; v > 0 {
		policy.ChallengeMaxScore = v
	}
	if v := cfg.Fraud.DefaultAverageAmount; v > 0 {
		policy.DefaultAverageAmount = v
	}

	// History store: Postgres, optionally fronted by the Redis velocity
	// cache
	var history fraud.HistoryStore
	repo := fraud.NewRepository(pool, policy.DefaultAverageAmount)
	history = repo

	healthChecks := map[string]func() error{
		"postgres": func() error { return pool.Ping(context.Background()) },
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()

		ttl := time.Duration(cfg.Fraud.VelocityCacheTTLSecs) * time.Second
		history = fraud.NewCachedHistoryStore(repo, redisClient, ttl)
		healthChecks["redis"] = func() error { return redisClient.Ping(context.Background()).Err() }
		logger.Info("Redis velocity cache enabled")
	}

	// Analyst alert queue
	opts := []fraud.Option{fraud.WithPolicy(policy)}
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()

		opts = append(opts, fraud.WithAlertPublisher(fraud.NewNATSAlertPublisher(nc)))
		healthChecks["nats"] = func() error {
			if !nc.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
		logger.Info("NATS alert queue enabled")
	}

	// Services and handlers
	fraudService := fraud.NewService(history, repo, opts...)
	fraudHandler := fraud.NewHandler(fraudService)

	paymentsRepo := payments.NewRepository(pool)
	paymentsService := payments.NewService(paymentsRepo, fraudService)
	paymentsHandler := payments.NewHandler(paymentsService)

	// Set up Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.CorrelationIDHeader}
	router.Use(cors.New(corsConfig))

	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics(cfg.Server.ServiceName))
	router.Use(middleware.Recovery())

	// Health check and metrics (no auth required)
	router.GET("/healthz", common.HealthCheckWithDeps(cfg.Server.ServiceName, serviceVersion, healthChecks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		api.POST("/transfers", paymentsHandler.CreateTransfer)
		api.POST("/transfers/stepup", paymentsHandler.CompleteStepUp)
		api.GET("/transfers", paymentsHandler.ListTransfers)

		// Analyst endpoints
		fraudGroup := api.Group("/fraud", middleware.RequireRole("analyst"))
		{
			fraudGroup.GET("/evaluations", fraudHandler.ListEvaluations)
			fraudGroup.GET("/evaluations/:id", fraudHandler.GetEvaluation)
			fraudGroup.POST("/reevaluate", fraudHandler.ReEvaluate)
		}
	}

	// Start server
	addr := ":" + cfg.Server.Port
	logger.Info("Nexus fraud service starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
