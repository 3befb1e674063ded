package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "duellords:leaderboard"

// LeaderboardCache stores rendered leaderboard snapshots in Redis. It holds
// derived data only; the database stays the source of truth.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewLeaderboardCache connects to Redis and verifies the connection
func NewLeaderboardCache(cfg *config.RedisConfig, logger *slog.Logger) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &LeaderboardCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}

// topKey returns the key for the top-N snapshot
func topKey(limit int) string {
	return fmt.Sprintf("%s:top:%d", keyPrefix, limit)
}

// indexKey holds the set of snapshot keys so they can be dropped together
func indexKey() string {
	return keyPrefix + ":keys"
}

// Get returns the cached top-N leaderboard. ok is false on a cache miss.
func (c *LeaderboardCache) Get(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool, error) {
	data, err := c.client.Get(ctx, topKey(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting cached leaderboard: %w", err)
	}

	entries, err := decodeEntries(data)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// Set stores the top-N leaderboard snapshot with the configured TTL
func (c *LeaderboardCache) Set(ctx context.Context, limit int, entries []domain.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling leaderboard: %w", err)
	}

	key := topKey(limit)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, indexKey(), key)
	pipe.Expire(ctx, indexKey(), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("caching leaderboard: %w", err)
	}
	return nil
}

// Invalidate drops every cached snapshot
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	keys, err := c.client.SMembers(ctx, indexKey()).Result()
	if err != nil {
		return fmt.Errorf("listing cached leaderboards: %w", err)
	}

	pipe := c.client.Pipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidating leaderboard cache: %w", err)
	}

	c.logger.Debug("leaderboard cache invalidated", "keys", len(keys))
	return nil
}

func decodeEntries(data []byte) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding cached leaderboard: %w", err)
	}
	return entries, nil
}
