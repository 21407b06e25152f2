package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buzzhost/internal/config"
	"buzzhost/internal/repository"
	"buzzhost/internal/service"
	"buzzhost/internal/store"
	"buzzhost/internal/transport/rest"
	"buzzhost/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config failed", "error", err)
		os.Exit(1)
	}

	if cfg.Questions.Enabled() {
		logger.Info("question provider configured", "model", cfg.Questions.Model)
	} else {
		logger.Warn("question provider API key not set, using trivia db and local fallback")
	}

	ctx := context.Background()

	// MongoDB connection (long-term archive)
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Error("connecting to mongodb failed", "error", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		logger.Error("pinging mongodb failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to mongodb", "database", cfg.Mongo.Database)
	db := mongoClient.Database(cfg.Mongo.Database)

	// Redis connection (live game state)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("pinging redis failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)

	// Live store and archive repositories
	gameStore := store.NewRedisStore(rdb, logger)
	defer gameStore.Close()

	gameRepo := repository.NewGameRepo(db)
	playerRepo := repository.NewPlayerRepo(db)

	// Services
	authSvc := service.NewAuthService(cfg.Auth)
	questionSvc := service.NewQuestionService(cfg.Questions, logger)
	engine := service.NewGameService(gameStore, gameRepo, playerRepo, questionSvc, cfg, logger)

	// Ensure the default room exists and drive its question clock
	if err := engine.CreateRoom(ctx, cfg.Game.DefaultRoom); err != nil {
		logger.Error("creating default room failed", "room", cfg.Game.DefaultRoom, "error", err)
		os.Exit(1)
	}

	timerSvc := service.NewTimerService(engine, logger)
	defer timerSvc.Close()
	if err := timerSvc.Watch(cfg.Game.DefaultRoom); err != nil {
		logger.Error("watching default room failed", "room", cfg.Game.DefaultRoom, "error", err)
		os.Exit(1)
	}

	// WebSocket hub
	wsHub := ws.NewHub(gameStore, logger)

	router := rest.NewRouter(&rest.Container{
		AuthService:     authSvc,
		GameService:     engine,
		QuestionService: questionSvc,
		WSHub:           wsHub,
		Logger:          logger,
	})

	// Read/write timeouts stay unset: they would cut off long-lived
	// websocket connections
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr, "room", cfg.Game.DefaultRoom)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}
