// Package main runs the learning platform HTTP server with websocket chat and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vedalearn/backend/config"
	"github.com/vedalearn/backend/internal/auth"
	"github.com/vedalearn/backend/internal/chat"
	"github.com/vedalearn/backend/internal/courses"
	"github.com/vedalearn/backend/internal/enrollment"
	"github.com/vedalearn/backend/internal/middleware"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/internal/notifications"
	"github.com/vedalearn/backend/internal/orders"
	"github.com/vedalearn/backend/internal/progress"
	"github.com/vedalearn/backend/internal/rtc"
	"github.com/vedalearn/backend/internal/sessions"
	"github.com/vedalearn/backend/internal/worker"
	"github.com/vedalearn/backend/pkg/cache"
	"github.com/vedalearn/backend/pkg/database"
	"github.com/vedalearn/backend/pkg/queue"
	"github.com/vedalearn/backend/pkg/redis"
	"github.com/vedalearn/backend/pkg/response"
	"github.com/vedalearn/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Courses and orders
	courseRepo := courses.NewRepository(pool)
	courseHandler := courses.NewHandler(courseRepo, logger)
	orderRepo := orders.NewRepository(pool)

	// Notifications
	notificationRepo := notifications.NewRepository(pool)
	notificationSvc := notifications.NewService(notificationRepo, courseRepo, authRepo, jobQueue, logger)
	notificationHandler := notifications.NewHandler(notificationRepo, logger)
	orderHandler := orders.NewHandler(orderRepo, courseRepo, notificationSvc, logger)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	enrollCache := cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxEntries)
	resolver := enrollment.NewResolver(orderRepo, courseRepo, sessionRepo, enrollCache, logger)
	issuer := rtc.NewIssuer(cfg.Zego.AppID, cfg.Zego.ServerSecret, logger)
	progressRepo := progress.NewRepository(pool)
	progressHandler := progress.NewHandler(progressRepo, logger)
	sessionSvc := sessions.NewService(sessionRepo, courseRepo, authRepo, orderRepo,
		progressRepo, resolver, issuer, notificationSvc, sessions.Config{
			ChannelPrefix:     cfg.Session.ChannelPrefix,
			TokenTTLSeconds:   cfg.Session.TokenTTLSeconds,
			JoinWindowMinutes: cfg.Session.JoinWindowMinutes,
		}, logger)
	sessionHandler := sessions.NewHandler(sessionSvc, authRepo, s3Client, logger)

	// Realtime chat
	chatPubSub := chat.NewRedisPubSub(rdb.Client, logger)
	hub := chat.NewHub(logger, chatPubSub, chatPubSub)
	chatRepo := chat.NewRepository(pool)
	chatSvc := chat.NewService(chatRepo)
	chatHandler := chat.NewHandler(chatSvc, resolver)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok", "postgres": "up", "redis": "up"}
		healthy := true
		if err := database.Healthy(c.Request.Context(), pool); err != nil {
			status["postgres"] = "down"
			healthy = false
		}
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			status["redis"] = "down"
			healthy = false
		}
		if !healthy {
			status["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		response.OK(c, status)
	})

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)

		// Courses
		api.GET("/courses/:id", courseHandler.GetByID)
		api.GET("/courses/:id/sessions", sessionHandler.ListByCourse)
		api.GET("/courses/:id/progress", progressHandler.Get)
		api.GET("/forums/:courseID/messages", chatHandler.ForumHistory)

		// Sessions (student-facing)
		api.GET("/sessions/my", sessionHandler.ListMine)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.POST("/sessions/:id/join", sessionHandler.Join)
		api.POST("/sessions/:id/leave", sessionHandler.Leave)
		api.GET("/sessions/:id/recording", sessionHandler.GetRecording)

		// Chats (history; live traffic goes over /ws)
		api.GET("/chats/:peerID/messages", chatHandler.DirectHistory)

		// Orders
		api.POST("/orders", orderHandler.Create)
		api.GET("/orders/:id", orderHandler.GetByID)

		// Notifications
		api.GET("/notifications", notificationHandler.List)
		api.GET("/notifications/:id", notificationHandler.GetByID)
		api.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
		api.PATCH("/notifications/read-all", notificationHandler.MarkAllRead)
		api.DELETE("/notifications/:id", notificationHandler.Delete)
		api.DELETE("/notifications", notificationHandler.DeleteAll)

		// Admin
		admin := api.Group("/admin", middleware.RequireHostClass())
		{
			admin.POST("/sessions", sessionHandler.Create)
			admin.PUT("/sessions/:id", sessionHandler.Update)
			admin.DELETE("/sessions/:id", sessionHandler.Delete)
			admin.POST("/sessions/:id/start", sessionHandler.Start)
			admin.POST("/sessions/:id/end", sessionHandler.End)
			admin.POST("/sessions/:id/recording", sessionHandler.UploadRecording)
			admin.DELETE("/sessions/:id/recording", sessionHandler.RemoveRecording)
			admin.GET("/sessions/:id/report", sessionHandler.Report)
			admin.POST("/courses/:id/enrollments", courseHandler.Grant)
			admin.PUT("/orders/:id/status", orderHandler.UpdateStatus)
			admin.POST("/notifications", notificationHandler.Create)
			admin.POST("/notifications/bulk", notificationHandler.CreateBulk)
		}
	}

	// WebSocket (token in query; browsers cannot set headers on ws dials)
	router.GET("/ws", chat.ServeWs(hub, chatSvc, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background reminder scheduler
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()
	scheduler := worker.NewReminderScheduler(sessionSvc,
		time.Duration(cfg.Session.ReminderLeadMinutes)*time.Minute, logger)
	go scheduler.Run(schedulerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	schedulerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
