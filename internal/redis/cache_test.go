package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*LeaderboardCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cache, err := NewLeaderboardCache(&config.RedisConfig{
		Addr:     mr.Addr(),
		PoolSize: 2,
		CacheTTL: 30 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func sampleBoard() []domain.LeaderboardEntry {
	return []domain.LeaderboardEntry{
		{Rank: 1, DiscordID: "111", Username: "Дмитрий", Wins: 4, Losses: 1, Kills: 20, Deaths: 5, TotalMatches: 5, WinRate: 80, KDRatio: 4},
		{Rank: 2, DiscordID: "222", Username: "bob", Wins: 2, Draws: 1, Kills: 9, Deaths: 9, TotalMatches: 3, WinRate: 66.67, KDRatio: 1},
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "duellords:leaderboard:top:10", topKey(10))
	assert.Equal(t, "duellords:leaderboard:keys", indexKey())
}

func TestDecodeEntries(t *testing.T) {
	entries, err := decodeEntries([]byte(`[{"rank":1,"discord_id":"1","username":"alice","wins":3,"win_rate":100}]`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, 100.0, entries[0].WinRate)

	_, err = decodeEntries([]byte(`{not json`))
	assert.Error(t, err)
}

func TestNewLeaderboardCacheUnreachable(t *testing.T) {
	_, err := NewLeaderboardCache(&config.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestGetMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	entries, ok, err := cache.Get(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entries)
}

func TestSetThenGet(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Set(ctx, 10, sampleBoard()))

	entries, ok, err := cache.Get(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleBoard(), entries)

	// Another limit is a separate snapshot
	_, ok, err = cache.Get(ctx, 20)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 30*time.Second, mr.TTL(topKey(10)))
	assert.Equal(t, 30*time.Second, mr.TTL(indexKey()))
	members, err := mr.Members(indexKey())
	require.NoError(t, err)
	assert.Equal(t, []string{topKey(10)}, members)
}

func TestSetEmptyBoardIsAHit(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	require.NoError(t, cache.Set(ctx, 5, []domain.LeaderboardEntry{}))

	entries, ok, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, entries)
}

func TestSnapshotExpires(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Set(ctx, 10, sampleBoard()))
	mr.FastForward(31 * time.Second)

	_, ok, err := cache.Get(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(indexKey()))
}

func TestInvalidateDropsEveryLimit(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	for _, limit := range []int{5, 10, 20} {
		require.NoError(t, cache.Set(ctx, limit, sampleBoard()))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, cache.Invalidate(ctx))

	for _, limit := range []int{5, 10, 20} {
		_, ok, err := cache.Get(ctx, limit)
		require.NoError(t, err)
		assert.False(t, ok, "limit %d", limit)
	}
	assert.False(t, mr.Exists(indexKey()))
	assert.True(t, mr.Exists("unrelated"))
}

func TestInvalidateEmptyCache(t *testing.T) {
	cache, _ := newTestCache(t)
	assert.NoError(t, cache.Invalidate(context.Background()))
}

func TestCorruptSnapshot(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set(topKey(10), "{not json"))

	_, ok, err := cache.Get(context.Background(), 10)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestServerErrorsSurface(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	mr.SetError("LOADING redis is loading the dataset in memory")

	_, ok, err := cache.Get(ctx, 10)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, cache.Set(ctx, 10, sampleBoard()))
	assert.Error(t, cache.Invalidate(ctx))
}
