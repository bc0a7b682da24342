package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"genstudio/internal/config"
	"genstudio/internal/database"
	"genstudio/internal/handlers"
	"genstudio/internal/logging"
	"genstudio/internal/middleware"
	"genstudio/internal/repository"
	"genstudio/internal/router"
	"genstudio/internal/services"
	"genstudio/internal/websocket"
	"genstudio/internal/wizard"
	"genstudio/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.LoadServer()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.WithField("env", cfg.Env).Info("starting GenStudio backend")

	// ──── Step 2: Initialize Repositories ────
	var (
		userRepo repository.UserRepository
		jobRepo  repository.JobRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("PostgreSQL connection failed")
		}
		defer pool.Close()

		if err := database.RunMigrations(pool, database.Migrations, log); err != nil {
			log.WithError(err).Fatal("database migration failed")
		}
		userRepo = repository.NewUserRepo(pool)
		jobRepo = repository.NewJobRepo(pool)
		log.Info("PostgreSQL connected, migrations applied")
	} else {
		userRepo = repository.NewMemoryUserRepo()
		jobRepo = repository.NewMemoryJobRepo()
		log.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	// ──── Step 3: Initialize Redis Clients ────
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	rdb, err := database.ConnectRedis(connectCtx, cfg.RedisURL)
	cancelConnect()
	if err != nil {
		log.WithError(err).Fatal("Redis connection failed")
	}
	defer rdb.Close()
	log.Info("Redis connected")

	// ──── Step 4: Initialize Generator ────
	uploads, err := services.NewUploadStore(cfg.StoragePath, cfg.PublicURL)
	if err != nil {
		log.WithError(err).Fatal("upload storage unavailable")
	}

	var generator services.Generator = services.TemplateGenerator{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, uploads, log)
		if err != nil {
			log.WithError(err).Fatal("Gemini client initialization failed")
		}
		defer gemini.Close()
		generator = gemini
		log.WithField("model", cfg.GeminiModel).Info("Gemini generator initialized")
	} else {
		log.Warn("GEMINI_API_KEY not set, using template generator")
	}

	// ──── Step 5: Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.AccessTokenTTL)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, log)
	authService := services.NewAuthService(userRepo, rdb.Data, jwtAuth, emailService, cfg.RefreshTokenTTL, cfg.OTPTTL, log)
	userService := services.NewUserService(userRepo)
	generationService := services.NewGenerationService(jobRepo, userRepo, rdb.Data, wizard.NewFlow(nil), log)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(rdb.Data, jobRepo, userRepo, generator, generationService, log, cfg.WorkerCount, cfg.WorkerPollTimeout)
	workerPool.Start()

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(rdb.Events, jwtAuth, log)

	// ──── Step 8: Start HTTP Server ────
	handler, authLimiter := router.New(router.Deps{
		JWTAuth:           jwtAuth,
		AuthHandler:       handlers.NewAuthHandler(authService, log),
		UserHandler:       handlers.NewUserHandler(userService, uploads, log),
		ProfileHandler:    handlers.NewProfileHandler(userService, uploads, log),
		GenerationHandler: handlers.NewGenerationHandler(generationService, uploads, log),
		Hub:               wsHub,
		Ping:              rdb.Ping,
		UploadDir:         uploads.Dir(),
		FrontendURL:       cfg.FrontendURL,
		AuthRateLimit:     cfg.AuthRateLimit,
		Logger:            log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)

		wsHub.Close()
		authLimiter.Close()
		workerPool.Stop()
	}()

	log.WithFields(logrus.Fields{
		"api": cfg.PublicURL,
		"ws":  strings.Replace(cfg.PublicURL, "http", "ws", 1) + "/ai/ws",
	}).Info("GenStudio backend ready")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("server error")
	}
	<-stopped
}
