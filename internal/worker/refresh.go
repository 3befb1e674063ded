package worker

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
)

// LeaderboardSource reads the data the web page shows
type LeaderboardSource interface {
	LoadLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	CacheLeaderboard(ctx context.Context, limit int, entries []domain.LeaderboardEntry) error
	PlayerCount(ctx context.Context) (int64, error)
	UpcomingMatches(ctx context.Context, limit int) ([]domain.Match, error)
}

// Broadcaster pushes updates to live subscribers
type Broadcaster interface {
	BroadcastLeaderboardUpdate(entries []domain.LeaderboardEntry, totalPlayers int64)
	BroadcastMatchesUpdate(matches []domain.Match)
}

// RefreshWorker periodically reloads the leaderboard and upcoming matches
// from the store and pushes them to subscribers when they change. The bot
// writes to the store from another process, so polling is how the web
// process notices.
type RefreshWorker struct {
	source      LeaderboardSource
	broadcaster Broadcaster
	config      *config.RefreshConfig
	limit       int
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool

	lastBoard   []domain.LeaderboardEntry
	lastTotal   int64
	lastMatches []domain.Match
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(
	source LeaderboardSource,
	broadcaster Broadcaster,
	cfg *config.RefreshConfig,
	limit int,
	logger *slog.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		source:      source,
		broadcaster: broadcaster,
		config:      cfg,
		limit:       limit,
		logger:      logger,
		lastTotal:   -1,
	}
}

// Start begins the background refresh loop. A stopped worker can be
// started again.
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	w.logger.Info("refresh worker started", "interval", w.config.Interval)

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the background refresh loop and waits for it to exit
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running || w.stopCh == nil {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.stopCh = nil
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("refresh worker stopped")
	return nil
}

// run is the main worker loop
func (w *RefreshWorker) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single refresh cycle and reports whether anything was
// broadcast
func (w *RefreshWorker) RunOnce(ctx context.Context) bool {
	startTime := time.Now()
	broadcast := false

	if w.refreshLeaderboard(ctx) {
		broadcast = true
	}
	if w.refreshMatches(ctx) {
		broadcast = true
	}

	w.logger.Debug("refresh cycle completed",
		"duration", time.Since(startTime),
		"broadcast", broadcast,
	)
	return broadcast
}

func (w *RefreshWorker) refreshLeaderboard(ctx context.Context) bool {
	entries, err := w.source.LoadLeaderboard(ctx, w.limit)
	if err != nil {
		w.logger.Error("failed to load leaderboard", "error", err)
		return false
	}
	total, err := w.source.PlayerCount(ctx)
	if err != nil {
		w.logger.Error("failed to count players", "error", err)
		return false
	}

	if err := w.source.CacheLeaderboard(ctx, w.limit, entries); err != nil {
		w.logger.Warn("failed to refresh leaderboard cache", "error", err)
	}

	if total == w.lastTotal && reflect.DeepEqual(entries, w.lastBoard) {
		return false
	}
	w.lastBoard, w.lastTotal = entries, total
	w.broadcaster.BroadcastLeaderboardUpdate(entries, total)
	return true
}

func (w *RefreshWorker) refreshMatches(ctx context.Context) bool {
	matches, err := w.source.UpcomingMatches(ctx, w.limit)
	if err != nil {
		w.logger.Error("failed to load upcoming matches", "error", err)
		return false
	}

	if matches == nil {
		matches = []domain.Match{}
	}
	if w.lastMatches != nil && reflect.DeepEqual(matches, w.lastMatches) {
		return false
	}
	w.lastMatches = matches
	w.broadcaster.BroadcastMatchesUpdate(matches)
	return true
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
