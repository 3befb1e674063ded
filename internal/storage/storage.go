// Package storage selects the persistence backend shared by the bot and the
// web process.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/duel-lords/internal/postgres"
	"github.com/duel-lords/internal/sqlite"
)

// Store is the durable source of truth for players and matches. Every
// operation except IncrementStatsBatch is a single auto-committing statement.
type Store interface {
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	RegisterPlayer(ctx context.Context, discordID, username string) (*domain.Player, error)
	DeactivatePlayer(ctx context.Context, discordID string) error
	GetPlayer(ctx context.Context, discordID string) (*domain.Player, error)
	ListActivePlayers(ctx context.Context) ([]domain.Player, error)
	CountActivePlayers(ctx context.Context) (int64, error)
	GetLeaderboard(ctx context.Context, limit int) ([]domain.Player, error)
	IncrementStats(ctx context.Context, discordID string, delta domain.StatsDelta) error
	IncrementStatsBatch(ctx context.Context, updates []domain.StatsEvent) ([]error, error)

	CreateMatch(ctx context.Context, player1ID, player2ID int64, scheduledTime time.Time) (int64, error)
	GetMatch(ctx context.Context, matchID int64) (*domain.Match, error)
	ListUpcomingMatches(ctx context.Context, now time.Time, limit int) ([]domain.Match, error)
	ListUpcomingUnremindedMatches(ctx context.Context, now time.Time) ([]domain.Match, error)
	MarkReminderSent(ctx context.Context, matchID int64) error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Repository)(nil)
)

// Open connects to the configured backend and runs its migrations
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverSQLite:
		logger.Info("opening SQLite database", "path", cfg.SQLite.Path)
		store, err = sqlite.New(&cfg.SQLite, logger)
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		store, err = postgres.NewRepository(&cfg.Postgres, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.RunMigrations(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}
