package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"realtime-chat-service/internal/auth"
	"realtime-chat-service/internal/config"
	"realtime-chat-service/internal/db"
	"realtime-chat-service/internal/handlers"
	"realtime-chat-service/internal/logger"
	"realtime-chat-service/internal/middleware"
	"realtime-chat-service/internal/observability"
	"realtime-chat-service/internal/rabbitmq"
	"realtime-chat-service/internal/repositories"
	"realtime-chat-service/internal/telemetry"
	"realtime-chat-service/internal/ws"
)

const serviceName = "realtime-chat-service"

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		zlog.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	mongo, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoRetryCount, cfg.MongoRetryWait)
	if err != nil {
		zlog.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer mongo.Close(ctx)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis unreachable, presence cache disabled", zap.Error(err))
		rdb = nil
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, zlog)
	defer publisher.Close()

	userRepo := repositories.NewUserRepo(mongo.Database)
	convRepo := repositories.NewConversationRepo(mongo.Database)
	msgRepo := repositories.NewMessageRepo(mongo.Database)
	presenceRepo := repositories.NewPresenceRepo(mongo.Database, rdb)

	resolver := auth.NewResolver(cfg.JWTSecret, userRepo)

	hub := ws.NewHub()
	presence := ws.NewPresencePublisher(hub, presenceRepo, zlog)
	socketHandler := ws.NewSocketHandler(hub, resolver, presence, convRepo, msgRepo, userRepo, publisher, zlog)

	conversationHandler := handlers.NewConversationHandler(convRepo, msgRepo, userRepo, hub, zlog)
	messageHandler := handlers.NewMessageHandler(convRepo, msgRepo, userRepo, hub, zlog)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", socketHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(resolver)
	api := router.Group("/", authMiddleware)

	api.GET("/conversations", conversationHandler.List)
	api.POST("/conversations/start", conversationHandler.StartPrivate)
	api.POST("/conversations/group", conversationHandler.CreateGroup)
	api.POST("/conversations/:conversation_id/leave", conversationHandler.Leave)

	api.GET("/conversations/:conversation_id/messages", messageHandler.List)
	api.PATCH("/conversations/:conversation_id/messages/:message_id/status", messageHandler.UpdateStatus)
	api.PUT("/conversations/:conversation_id/messages/:message_id", messageHandler.Edit)
	api.DELETE("/conversations/:conversation_id/messages/:message_id/me", messageHandler.DeleteForMe)
	api.DELETE("/conversations/:conversation_id/messages/:message_id/all", messageHandler.DeleteForAll)
	api.PUT("/conversations/:conversation_id/messages/:message_id/reactions", messageHandler.AddReaction)
	api.DELETE("/conversations/:conversation_id/messages/:message_id/reactions", messageHandler.RemoveReaction)

	handlers.RegisterDebugRoutes(router, hub, cfg.DebugRoutes)

	zlog.Info("starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
	if err := router.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}
