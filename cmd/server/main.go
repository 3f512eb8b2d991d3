package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/riddle-backend/internal/ai"
	"github.com/riddle-backend/internal/auth"
	"github.com/riddle-backend/internal/billing"
	"github.com/riddle-backend/internal/config"
	"github.com/riddle-backend/internal/handler"
	"github.com/riddle-backend/internal/kafka"
	"github.com/riddle-backend/internal/logging"
	"github.com/riddle-backend/internal/postgres"
	"github.com/riddle-backend/internal/redis"
	"github.com/riddle-backend/internal/service"
	"github.com/riddle-backend/internal/websocket"
	"github.com/riddle-backend/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to set up logging:", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if err := repo.SeedRiddles(ctx, postgres.StarterRiddles); err != nil {
		return fmt.Errorf("seeding riddles: %w", err)
	}

	cache := redis.NewCache(redisClient, logger)
	quota := redis.NewQuotaCounter(redisClient, logger)
	tokens := auth.NewTokenManager(cfg.JWT)

	var assistant service.Assistant
	if cfg.Gemini.APIKey != "" {
		gemini, err := ai.NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return fmt.Errorf("creating gemini client: %w", err)
		}
		assistant = ai.NewAssistant(gemini, logger)
		logger.Info("AI features enabled", "model", cfg.Gemini.Model)
	} else {
		logger.Warn("gemini api key not set, AI features disabled")
	}

	var provider billing.Provider
	switch cfg.Billing.Provider {
	case billing.ProviderStripe:
		provider = billing.NewStripe(cfg.Stripe, logger)
	default:
		provider = billing.NewRevenueCat(cfg.RevenueCat, logger)
	}
	reconciler := billing.NewReconciler(repo, cache, cfg.Game, logger)
	logger.Info("billing provider selected", "provider", provider.Name())

	leaderboardService := service.NewLeaderboardService(redis.NewLeaderboard(redisClient, logger), repo, &cfg.Leaderboard, logger)
	authService := service.NewAuthService(repo, tokens, cache, quota, service.LogResetSender{Logger: logger}, cfg.Game, logger)
	riddleService := service.NewRiddleService(repo, quota, cache, leaderboardService, assistant, cfg.Game, logger)
	subscriptionService := service.NewSubscriptionService(repo, provider, reconciler, cfg.Stripe, logger)

	hub := websocket.NewHub(leaderboardService, cfg.Leaderboard.DefaultLimit, 0, logger)
	go hub.Run()
	leaderboardService.SetNotifier(hub)

	syncWorker := worker.NewSyncWorker(leaderboardService, repo, &cfg.Sync, logger)
	if err := syncWorker.RestoreAll(ctx); err != nil {
		logger.Warn("failed to restore leaderboards from database", "error", err)
	}
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			return fmt.Errorf("starting sync worker: %w", err)
		}
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(&cfg.Kafka, reconciler, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := consumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			consumer = nil
		}
	}

	h := handler.NewHandler(handler.Deps{
		Auth:          authService,
		Riddles:       riddleService,
		Leaderboard:   leaderboardService,
		Subscriptions: subscriptionService,
		Tokens:        tokens,
		Hub:           hub,
		DB:            repo,
		Cache:         handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		Config:        cfg,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server",
			"port", cfg.Server.Port,
			"environment", cfg.App.Environment,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("HTTP server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	hub.Stop()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
