package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	board   []domain.LeaderboardEntry
	total   int64
	matches []domain.Match
	loadErr error
	cached  int
}

func (f *fakeSource) LoadLeaderboard(context.Context, int) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.board, f.loadErr
}

func (f *fakeSource) CacheLeaderboard(context.Context, int, []domain.LeaderboardEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached++
	return nil
}

func (f *fakeSource) PlayerCount(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total, nil
}

func (f *fakeSource) UpcomingMatches(context.Context, int) ([]domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches, nil
}

type fakeBroadcaster struct {
	mu          sync.Mutex
	boards      int
	matchRounds int
	lastTotal   int64
}

func (f *fakeBroadcaster) BroadcastLeaderboardUpdate(_ []domain.LeaderboardEntry, total int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards++
	f.lastTotal = total
}

func (f *fakeBroadcaster) BroadcastMatchesUpdate([]domain.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchRounds++
}

func (f *fakeBroadcaster) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boards, f.matchRounds
}

func newTestWorker(src *fakeSource, b *fakeBroadcaster, interval time.Duration) *RefreshWorker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRefreshWorker(src, b, &config.RefreshConfig{Interval: interval, Enabled: true}, 20, logger)
}

func TestRunOnceBroadcastsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{board: []domain.LeaderboardEntry{{Rank: 1, Username: "alice"}}, total: 1}
	b := &fakeBroadcaster{}
	w := newTestWorker(src, b, time.Minute)

	assert.True(t, w.RunOnce(ctx))
	boards, matches := b.counts()
	assert.Equal(t, 1, boards)
	assert.Equal(t, 1, matches)

	assert.False(t, w.RunOnce(ctx))
	boards, matches = b.counts()
	assert.Equal(t, 1, boards)
	assert.Equal(t, 1, matches)
	assert.Equal(t, 2, src.cached)

	src.mu.Lock()
	src.board = []domain.LeaderboardEntry{{Rank: 1, Username: "alice", Wins: 1}}
	src.mu.Unlock()

	assert.True(t, w.RunOnce(ctx))
	boards, _ = b.counts()
	assert.Equal(t, 2, boards)
}

func TestRunOnceEmptyTournament(t *testing.T) {
	b := &fakeBroadcaster{}
	w := newTestWorker(&fakeSource{}, b, time.Minute)

	assert.True(t, w.RunOnce(context.Background()))
	assert.False(t, w.RunOnce(context.Background()))
	assert.Equal(t, int64(0), b.lastTotal)
}

func TestRunOnceLoadFailure(t *testing.T) {
	b := &fakeBroadcaster{}
	w := newTestWorker(&fakeSource{loadErr: errors.New("db locked")}, b, time.Minute)

	w.RunOnce(context.Background())
	boards, _ := b.counts()
	assert.Equal(t, 0, boards)
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{total: 2}
	b := &fakeBroadcaster{}
	w := newTestWorker(src, b, 10*time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	assert.Eventually(t, func() bool {
		boards, _ := b.counts()
		return boards == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

func TestRestartAfterStop(t *testing.T) {
	src := &fakeSource{total: 2}
	b := &fakeBroadcaster{}
	w := newTestWorker(src, b, 10*time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())

	src.mu.Lock()
	src.total = 3
	src.mu.Unlock()

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	assert.Eventually(t, func() bool {
		boards, _ := b.counts()
		return boards == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestConcurrentStop(t *testing.T) {
	w := newTestWorker(&fakeSource{}, &fakeBroadcaster{}, 10*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Stop())
		}()
	}
	wg.Wait()
	assert.False(t, w.IsRunning())
}
