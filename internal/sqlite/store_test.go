package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceID = "100000000000000001"
	bobID   = "100000000000000002"
	carolID = "100000000000000003"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := New(&config.SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.RunMigrations(context.Background()))
	return store
}

func TestRegisterAndGetPlayer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.RegisterPlayer(ctx, aliceID, "alice")
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, aliceID, p.DiscordID)
	assert.True(t, p.IsActive)
	assert.WithinDuration(t, time.Now(), p.RegisteredAt, 5*time.Second)

	got, err := store.GetPlayer(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "alice", got.Username)

	_, err = store.GetPlayer(ctx, bobID)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestRegisterDuplicatePlayer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.RegisterPlayer(ctx, aliceID, "alice")
	require.NoError(t, err)

	_, err = store.RegisterPlayer(ctx, aliceID, "alice2")
	assert.ErrorIs(t, err, domain.ErrPlayerExists)
}

func TestDeactivateAndReactivateKeepsStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.RegisterPlayer(ctx, aliceID, "alice")
	require.NoError(t, err)
	require.NoError(t, store.IncrementStats(ctx, aliceID, domain.StatsDelta{Wins: 2, Kills: 5}))

	require.NoError(t, store.DeactivatePlayer(ctx, aliceID))
	_, err = store.GetPlayer(ctx, aliceID)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
	assert.ErrorIs(t, store.DeactivatePlayer(ctx, aliceID), domain.ErrPlayerNotFound)

	back, err := store.RegisterPlayer(ctx, aliceID, "alice-returns")
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID)
	assert.Equal(t, "alice-returns", back.Username)
	assert.Equal(t, int64(2), back.Wins)
	assert.Equal(t, int64(5), back.Kills)
	assert.True(t, back.IsActive)
}

func TestIncrementStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.RegisterPlayer(ctx, aliceID, "alice")
	require.NoError(t, err)

	require.NoError(t, store.IncrementStats(ctx, aliceID, domain.StatsDelta{Wins: 1, Losses: 2, Draws: 3, Kills: 4, Deaths: 5}))
	require.NoError(t, store.IncrementStats(ctx, aliceID, domain.StatsDelta{Wins: 1}))

	p, err := store.GetPlayer(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Wins)
	assert.Equal(t, int64(2), p.Losses)
	assert.Equal(t, int64(3), p.Draws)
	assert.Equal(t, int64(4), p.Kills)
	assert.Equal(t, int64(5), p.Deaths)

	assert.ErrorIs(t, store.IncrementStats(ctx, bobID, domain.StatsDelta{Wins: 1}), domain.ErrPlayerNotFound)
}

func TestLeaderboardOrderingAndListing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for id, name := range map[string]string{aliceID: "alice", bobID: "bob", carolID: "carol"} {
		_, err := store.RegisterPlayer(ctx, id, name)
		require.NoError(t, err)
	}
	require.NoError(t, store.IncrementStats(ctx, aliceID, domain.StatsDelta{Wins: 3, Kills: 1}))
	require.NoError(t, store.IncrementStats(ctx, bobID, domain.StatsDelta{Wins: 3, Kills: 9}))
	require.NoError(t, store.IncrementStats(ctx, carolID, domain.StatsDelta{Wins: 1, Kills: 20}))

	board, err := store.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "bob", board[0].Username)
	assert.Equal(t, "alice", board[1].Username)
	assert.Equal(t, "carol", board[2].Username)

	top, err := store.GetLeaderboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)

	require.NoError(t, store.DeactivatePlayer(ctx, bobID))

	players, err := store.ListActivePlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Username)
	assert.Equal(t, "carol", players[1].Username)

	count, err := store.CountActivePlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMatchLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	alice, err := store.RegisterPlayer(ctx, aliceID, "alice")
	require.NoError(t, err)
	bob, err := store.RegisterPlayer(ctx, bobID, "bob")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	soon := now.Add(30 * time.Minute)
	later := now.Add(2 * time.Hour)
	past := now.Add(-time.Hour)

	laterID, err := store.CreateMatch(ctx, alice.ID, bob.ID, later)
	require.NoError(t, err)
	soonID, err := store.CreateMatch(ctx, bob.ID, alice.ID, soon)
	require.NoError(t, err)
	_, err = store.CreateMatch(ctx, alice.ID, bob.ID, past)
	require.NoError(t, err)

	m, err := store.GetMatch(ctx, soonID)
	require.NoError(t, err)
	assert.Equal(t, bobID, m.Player1DiscordID)
	assert.Equal(t, aliceID, m.Player2DiscordID)
	assert.Equal(t, "bob", m.Player1Name)
	assert.Equal(t, domain.MatchStatusScheduled, m.Status)
	assert.True(t, soon.Equal(m.ScheduledTime))
	assert.False(t, m.ReminderSent)
	assert.Nil(t, m.WinnerID)

	upcoming, err := store.ListUpcomingMatches(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, soonID, upcoming[0].ID)
	assert.Equal(t, laterID, upcoming[1].ID)

	unreminded, err := store.ListUpcomingUnremindedMatches(ctx, now)
	require.NoError(t, err)
	require.Len(t, unreminded, 2)

	require.NoError(t, store.MarkReminderSent(ctx, soonID))
	assert.ErrorIs(t, store.MarkReminderSent(ctx, soonID), domain.ErrReminderAlreadySent)
	assert.ErrorIs(t, store.MarkReminderSent(ctx, 9999), domain.ErrMatchNotFound)

	unreminded, err = store.ListUpcomingUnremindedMatches(ctx, now)
	require.NoError(t, err)
	require.Len(t, unreminded, 1)
	assert.Equal(t, laterID, unreminded[0].ID)

	_, err = store.GetMatch(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}

func TestCreateMatchRequiresExistingPlayers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.CreateMatch(ctx, 41, 42, time.Now().Add(time.Hour))
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestIncrementStatsBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.RegisterPlayer(ctx, aliceID, "alice")
	require.NoError(t, err)

	results, err := store.IncrementStatsBatch(ctx, []domain.StatsEvent{
		{DiscordID: aliceID, Wins: 1, Kills: 3},
		{DiscordID: bobID, Wins: 1},
		{DiscordID: aliceID, Losses: 1, Deaths: 2},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0])
	assert.ErrorIs(t, results[1], domain.ErrPlayerNotFound)
	assert.NoError(t, results[2])

	p, err := store.GetPlayer(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, "1W-1L-0D", p.Record())
	assert.Equal(t, int64(3), p.Kills)
	assert.Equal(t, int64(2), p.Deaths)

	results, err = store.IncrementStatsBatch(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}
