package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/discord"
	"github.com/duel-lords/internal/kafka"
	"github.com/duel-lords/internal/notifier"
	"github.com/duel-lords/internal/redis"
	"github.com/duel-lords/internal/scheduler"
	"github.com/duel-lords/internal/service"
	"github.com/duel-lords/internal/storage"
	"github.com/spf13/pflag"
)

func main() {
	// Parse command line flags
	configPath := pflag.StringP("config", "c", "config.yaml", "Path to configuration file")
	pflag.Parse()

	// Load configuration
	cfg, loadErr := config.Load(*configPath)
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if loadErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", loadErr)
	}

	if err := cfg.Discord.Validate(); err != nil {
		logger.Error("DISCORD_TOKEN not found, set discord.token or the DISCORD_TOKEN environment variable", "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Discord.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize persistence
	store, err := storage.Open(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize the optional leaderboard cache
	var cache service.LeaderboardCache
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisCache, err := redis.NewLeaderboardCache(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without cache", "error", err)
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}

	// Initialize Discord session and notifier
	session, err := discord.NewSession(&cfg.Discord)
	if err != nil {
		logger.Error("failed to create discord session", "error", err)
		os.Exit(1)
	}
	messenger := discord.NewMessenger(session, cfg.Discord.GuildID)
	matchNotifier := notifier.New(messenger, logger)

	// Initialize scheduler and services
	reminderScheduler := scheduler.New(store, matchNotifier, logger)
	tournamentService := service.NewTournamentService(
		store,
		reminderScheduler,
		cache,
		&cfg.Leaderboard,
		logger,
	)

	commands := discord.NewCommands(tournamentService, matchNotifier, loc, logger)
	bot := discord.NewBot(session, commands, cfg.Discord.GuildID, logger)

	logger.Info("starting Duel Lords Discord bot")
	if err := bot.Open(); err != nil {
		logger.Error("failed to connect to Discord", "error", err)
		os.Exit(1)
	}

	// Recover reminders for matches scheduled before this start
	if err := reminderScheduler.Start(ctx); err != nil {
		logger.Warn("reminder recovery failed, continuing with an empty queue", "error", err)
	}

	// Initialize Kafka consumer for stats ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, tournamentService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down bot...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)

		// Stop Kafka consumer
		if kafkaConsumer != nil {
			if err := kafkaConsumer.Stop(); err != nil {
				logger.Error("failed to stop Kafka consumer", "error", err)
			}
		}

		// Stop scheduler, waiting for reminders being delivered
		reminderScheduler.Stop()

		// Disconnect from Discord
		if err := bot.Close(); err != nil {
			logger.Error("failed to close discord session", "error", err)
		}
	}()

	select {
	case <-done:
		logger.Info("bot stopped")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out")
	}
}
