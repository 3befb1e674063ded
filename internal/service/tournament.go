package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/duel-lords/internal/storage"
)

// Reminders registers match reminders
type Reminders interface {
	Schedule(r domain.Reminder) (bool, error)
}

// LeaderboardCache holds leaderboard snapshots keyed by limit
type LeaderboardCache interface {
	Get(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool, error)
	Set(ctx context.Context, limit int, entries []domain.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

// TournamentService provides business logic for players, stats and matches
type TournamentService struct {
	store     storage.Store
	reminders Reminders
	cache     LeaderboardCache
	config    *config.LeaderboardConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewTournamentService creates a new tournament service. reminders and cache
// may be nil: the web process schedules nothing and Redis is optional.
func NewTournamentService(
	store storage.Store,
	reminders Reminders,
	cache LeaderboardCache,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		store:     store,
		reminders: reminders,
		cache:     cache,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterPlayer validates and registers a player
func (s *TournamentService) RegisterPlayer(ctx context.Context, discordID, username string) (*domain.Player, error) {
	if err := domain.ValidateDiscordID(discordID); err != nil {
		return nil, err
	}
	name := domain.SanitizeUsername(username)
	if name == "" {
		return nil, fmt.Errorf("%w: %q has no usable characters", domain.ErrInvalidUsername, username)
	}

	p, err := s.store.RegisterPlayer(ctx, discordID, name)
	if err != nil {
		return nil, err
	}

	s.logger.Info("player registered", "discord_id", discordID, "username", name)
	s.invalidate(ctx)
	return p, nil
}

// RemovePlayer soft-deletes a player
func (s *TournamentService) RemovePlayer(ctx context.Context, discordID string) error {
	if err := s.store.DeactivatePlayer(ctx, discordID); err != nil {
		return err
	}
	s.logger.Info("player removed", "discord_id", discordID)
	s.invalidate(ctx)
	return nil
}

// GetPlayer returns an active player
func (s *TournamentService) GetPlayer(ctx context.Context, discordID string) (*domain.Player, error) {
	return s.store.GetPlayer(ctx, discordID)
}

// ListPlayers returns every active player ordered by name
func (s *TournamentService) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	return s.store.ListActivePlayers(ctx)
}

// PlayerCount returns the number of active players
func (s *TournamentService) PlayerCount(ctx context.Context) (int64, error) {
	return s.store.CountActivePlayers(ctx)
}

// UpdateStats adds a delta to a player's counters
func (s *TournamentService) UpdateStats(ctx context.Context, discordID string, delta domain.StatsDelta) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	if err := s.store.IncrementStats(ctx, discordID, delta); err != nil {
		return err
	}

	s.logger.Info("player stats updated",
		"discord_id", discordID,
		"wins", delta.Wins,
		"losses", delta.Losses,
		"draws", delta.Draws,
		"kills", delta.Kills,
		"deaths", delta.Deaths,
	)
	s.invalidate(ctx)
	return nil
}

// ApplyStatsBatch applies stats events, skipping the ones that fail, and
// returns how many were applied
func (s *TournamentService) ApplyStatsBatch(ctx context.Context, events []domain.StatsEvent) (int, error) {
	valid := make([]domain.StatsEvent, 0, len(events))
	for _, e := range events {
		if err := validateEvent(e); err != nil {
			s.logger.Warn("skipping invalid stats event",
				"event_id", e.EventID,
				"discord_id", e.DiscordID,
				"error", err,
			)
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	results, err := s.store.IncrementStatsBatch(ctx, valid)
	if err != nil {
		return 0, fmt.Errorf("applying stats batch: %w", err)
	}

	applied := 0
	for i, err := range results {
		if err != nil {
			s.logger.Error("failed to apply stats event",
				"event_id", valid[i].EventID,
				"discord_id", valid[i].DiscordID,
				"error", err,
			)
			continue
		}
		applied++
	}

	s.logger.Info("stats batch applied", "received", len(events), "applied", applied)
	if applied > 0 {
		s.invalidate(ctx)
	}
	return applied, nil
}

func validateEvent(e domain.StatsEvent) error {
	if err := domain.ValidateDiscordID(e.DiscordID); err != nil {
		return err
	}
	return e.Delta().Validate()
}

// Leaderboard returns the ranked top players. A zero limit means the
// configured default; larger limits are clamped.
func (s *TournamentService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	limit = s.clampLimit(limit)

	if s.cache != nil {
		entries, ok, err := s.cache.Get(ctx, limit)
		if err != nil {
			s.logger.Warn("leaderboard cache read failed", "error", err)
		} else if ok {
			return entries, nil
		}
	}

	entries, err := s.LoadLeaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, limit, entries); err != nil {
			s.logger.Warn("leaderboard cache write failed", "error", err)
		}
	}
	return entries, nil
}

// LoadLeaderboard reads the leaderboard straight from the store
func (s *TournamentService) LoadLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	players, err := s.store.GetLeaderboard(ctx, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}
	return domain.NewLeaderboard(players), nil
}

// CacheLeaderboard replaces the cached snapshot for limit
func (s *TournamentService) CacheLeaderboard(ctx context.Context, limit int, entries []domain.LeaderboardEntry) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Set(ctx, s.clampLimit(limit), entries)
}

func (s *TournamentService) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return limit
}

// ScheduleMatch records a match between two active players and registers
// its reminder. The returned bool reports whether a reminder was registered.
func (s *TournamentService) ScheduleMatch(ctx context.Context, player1ID, player2ID string, matchTime time.Time) (*domain.Match, bool, error) {
	if player1ID == player2ID {
		return nil, false, domain.ErrSamePlayer
	}

	p1, err := s.store.GetPlayer(ctx, player1ID)
	if err != nil {
		return nil, false, fmt.Errorf("player 1: %w", err)
	}
	p2, err := s.store.GetPlayer(ctx, player2ID)
	if err != nil {
		return nil, false, fmt.Errorf("player 2: %w", err)
	}

	matchID, err := s.store.CreateMatch(ctx, p1.ID, p2.ID, matchTime)
	if err != nil {
		return nil, false, err
	}
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, false, fmt.Errorf("reading created match: %w", err)
	}

	s.logger.Info("match scheduled",
		"match_id", matchID,
		"player1", player1ID,
		"player2", player2ID,
		"scheduled_time", matchTime,
	)

	if s.reminders == nil {
		return match, false, nil
	}
	scheduled, err := s.reminders.Schedule(match.Reminder())
	if err != nil {
		// The match row is kept; the next scheduler start recovers it
		s.logger.Warn("failed to schedule reminder", "match_id", matchID, "error", err)
		return match, false, nil
	}
	return match, scheduled, nil
}

// UpcomingMatches returns scheduled matches that have not started yet
func (s *TournamentService) UpcomingMatches(ctx context.Context, limit int) ([]domain.Match, error) {
	return s.store.ListUpcomingMatches(ctx, s.now(), s.clampLimit(limit))
}

// Ping checks the store is reachable
func (s *TournamentService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ResolveMatchTime interprets day/hour/minute relative to the current time
// in loc
func (s *TournamentService) ResolveMatchTime(loc *time.Location, day, hour, minute int) (time.Time, error) {
	return domain.ResolveMatchTime(s.now().In(loc), day, hour, minute)
}

func (s *TournamentService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate leaderboard cache", "error", err)
	}
}
