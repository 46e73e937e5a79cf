package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/tarun-08/pingme/internal/api"
	"github.com/tarun-08/pingme/internal/config"
	"github.com/tarun-08/pingme/internal/db"
	"github.com/tarun-08/pingme/internal/hub"
	"github.com/tarun-08/pingme/internal/middleware"
	"github.com/tarun-08/pingme/internal/observ"
	"github.com/tarun-08/pingme/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no parent request or deadline — Background() is right
	// here; once the server runs, each request carries its own context.
	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}

	// Redis is optional: with REDIS_URL set, message inserts fan out
	// across server instances; without it the hub delivers locally, which
	// is all a single dev instance needs.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("redis fanout enabled")
	}

	pool := database.Pool()
	profileRepo := postgres.NewProfileStore(pool)
	conversationRepo := postgres.NewConversationStore(pool)
	messageRepo := postgres.NewMessageStore(pool)

	msgHub := hub.New(rdb, logger)
	go msgHub.Run(ctx)

	authHandler := api.NewAuthHandler(profileRepo, cfg.JWTSecret, logger)
	profileHandler := api.NewProfileHandler(profileRepo, logger)
	conversationHandler := api.NewConversationHandler(conversationRepo, logger)
	messageHandler := api.NewMessageHandler(messageRepo, conversationRepo, msgHub, logger)
	wsHandler := api.NewWSHandler(conversationRepo, msgHub, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	// Health check is PUBLIC — load balancers hit it without a token.
	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Signup and login are the only other public routes; they produce the
	// token everything else requires.
	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		v1.POST("/auth/logout", authHandler.Logout)
		v1.GET("/session", authHandler.Session)

		v1.GET("/profiles", profileHandler.List)
		v1.GET("/profiles/me", profileHandler.GetMe)
		v1.GET("/profiles/:user_id", profileHandler.GetByUserID)

		v1.GET("/conversations", conversationHandler.Find)
		v1.POST("/conversations", conversationHandler.Create)
		v1.GET("/conversations/:id/messages", messageHandler.List)
		v1.POST("/conversations/:id/messages", messageHandler.Create)

		v1.GET("/ws", wsHandler.Subscribe)
	}

	logger.Info("starting pingme server",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	if err := srv.Run(":" + cfg.Port); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}
