package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbPool is the part of *pgxpool.Pool the repository uses
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   dbPool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	p, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := p.Ping(context.Background()); err != nil {
		p.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return newRepository(p, logger), nil
}

func newRepository(p dbPool, logger *slog.Logger) *Repository {
	return &Repository{pool: p, logger: logger}
}

// Close closes the database connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id BIGSERIAL PRIMARY KEY,
			discord_id VARCHAR(32) NOT NULL UNIQUE,
			username VARCHAR(100) NOT NULL,
			wins BIGINT NOT NULL DEFAULT 0,
			losses BIGINT NOT NULL DEFAULT 0,
			draws BIGINT NOT NULL DEFAULT 0,
			kills BIGINT NOT NULL DEFAULT 0,
			deaths BIGINT NOT NULL DEFAULT 0,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id BIGSERIAL PRIMARY KEY,
			player1_id BIGINT NOT NULL REFERENCES players(id),
			player2_id BIGINT NOT NULL REFERENCES players(id),
			scheduled_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
			winner_id BIGINT REFERENCES players(id),
			player1_kills BIGINT NOT NULL DEFAULT 0,
			player2_kills BIGINT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS tournaments (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ,
			status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
			max_players INT NOT NULL DEFAULT 64,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_players_leaderboard ON players(is_active, wins DESC, kills DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_upcoming ON matches(status, reminder_sent, scheduled_time)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const playerColumns = `id, discord_id, username, wins, losses, draws, kills, deaths, registered_at, is_active`

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.DiscordID, &p.Username, &p.Wins, &p.Losses, &p.Draws,
		&p.Kills, &p.Deaths, &p.RegisteredAt, &p.IsActive)
	if err != nil {
		return nil, err
	}
	p.RegisteredAt = p.RegisteredAt.UTC()
	return &p, nil
}

// RegisterPlayer inserts a new player or re-activates a soft-deleted one
func (r *Repository) RegisterPlayer(ctx context.Context, discordID, username string) (*domain.Player, error) {
	query := `
		INSERT INTO players (discord_id, username, registered_at, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (discord_id)
		DO UPDATE SET username = EXCLUDED.username, is_active = TRUE
		WHERE players.is_active = FALSE
		RETURNING ` + playerColumns
	p, err := scanPlayer(r.pool.QueryRow(ctx, query, discordID, username, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerExists
		}
		return nil, fmt.Errorf("registering player: %w", err)
	}
	return p, nil
}

// DeactivatePlayer soft-deletes an active player
func (r *Repository) DeactivatePlayer(ctx context.Context, discordID string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE players SET is_active = FALSE WHERE discord_id = $1 AND is_active`, discordID)
	if err != nil {
		return fmt.Errorf("deactivating player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// GetPlayer retrieves an active player by Discord id
func (r *Repository) GetPlayer(ctx context.Context, discordID string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE discord_id = $1 AND is_active`
	p, err := scanPlayer(r.pool.QueryRow(ctx, query, discordID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return p, nil
}

// ListActivePlayers retrieves every active player ordered by name
func (r *Repository) ListActivePlayers(ctx context.Context) ([]domain.Player, error) {
	return r.queryPlayers(ctx, `SELECT `+playerColumns+` FROM players WHERE is_active ORDER BY username`)
}

// CountActivePlayers returns the number of active players
func (r *Repository) CountActivePlayers(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM players WHERE is_active`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("getting player count: %w", err)
	}
	return count, nil
}

// GetLeaderboard retrieves the top active players
func (r *Repository) GetLeaderboard(ctx context.Context, limit int) ([]domain.Player, error) {
	query := `
		SELECT ` + playerColumns + ` FROM players
		WHERE is_active
		ORDER BY wins DESC, kills DESC, (wins + losses + draws) DESC, username ASC
		LIMIT $1
	`
	return r.queryPlayers(ctx, query, limit)
}

func (r *Repository) queryPlayers(ctx context.Context, query string, args ...any) ([]domain.Player, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}

// IncrementStats adds the delta to an active player's counters
func (r *Repository) IncrementStats(ctx context.Context, discordID string, d domain.StatsDelta) error {
	query := `
		UPDATE players
		SET wins = wins + $1, losses = losses + $2, draws = draws + $3,
			kills = kills + $4, deaths = deaths + $5
		WHERE discord_id = $6 AND is_active
	`
	result, err := r.pool.Exec(ctx, query, d.Wins, d.Losses, d.Draws, d.Kills, d.Deaths, discordID)
	if err != nil {
		return fmt.Errorf("incrementing stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

const matchSelect = `
	SELECT m.id, m.player1_id, m.player2_id, p1.discord_id, p2.discord_id, p1.username, p2.username,
		m.scheduled_time, m.created_at, m.status, m.winner_id, m.player1_kills, m.player2_kills,
		m.notes, m.reminder_sent
	FROM matches m
	JOIN players p1 ON m.player1_id = p1.id
	JOIN players p2 ON m.player2_id = p2.id`

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	err := row.Scan(&m.ID, &m.Player1ID, &m.Player2ID, &m.Player1DiscordID, &m.Player2DiscordID,
		&m.Player1Name, &m.Player2Name, &m.ScheduledTime, &m.CreatedAt, &m.Status, &m.WinnerID,
		&m.Player1Kills, &m.Player2Kills, &m.Notes, &m.ReminderSent)
	if err != nil {
		return nil, err
	}
	m.ScheduledTime = m.ScheduledTime.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// CreateMatch inserts a scheduled match between two player rows
func (r *Repository) CreateMatch(ctx context.Context, player1ID, player2ID int64, scheduledTime time.Time) (int64, error) {
	query := `
		INSERT INTO matches (player1_id, player2_id, scheduled_time, created_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query, player1ID, player2ID, scheduledTime.UTC(), time.Now().UTC(),
		string(domain.MatchStatusScheduled)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating match: %w", err)
	}
	r.logger.Info("match created", "match_id", id)
	return id, nil
}

// GetMatch retrieves a match by id
func (r *Repository) GetMatch(ctx context.Context, matchID int64) (*domain.Match, error) {
	m, err := scanMatch(r.pool.QueryRow(ctx, matchSelect+` WHERE m.id = $1`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// ListUpcomingMatches retrieves scheduled matches after now, soonest first
func (r *Repository) ListUpcomingMatches(ctx context.Context, now time.Time, limit int) ([]domain.Match, error) {
	query := matchSelect + `
		WHERE m.status = $1 AND m.scheduled_time > $2
		ORDER BY m.scheduled_time ASC
		LIMIT $3
	`
	return r.queryMatches(ctx, query, string(domain.MatchStatusScheduled), now.UTC(), limit)
}

// ListUpcomingUnremindedMatches retrieves future scheduled matches whose
// reminder has not been handled yet
func (r *Repository) ListUpcomingUnremindedMatches(ctx context.Context, now time.Time) ([]domain.Match, error) {
	query := matchSelect + `
		WHERE m.status = $1 AND NOT m.reminder_sent AND m.scheduled_time > $2
		ORDER BY m.scheduled_time ASC
	`
	return r.queryMatches(ctx, query, string(domain.MatchStatusScheduled), now.UTC())
}

func (r *Repository) queryMatches(ctx context.Context, query string, args ...any) ([]domain.Match, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// MarkReminderSent flips the reminder flag; it never goes back to false
func (r *Repository) MarkReminderSent(ctx context.Context, matchID int64) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE matches SET reminder_sent = TRUE WHERE id = $1 AND NOT reminder_sent`, matchID)
	if err != nil {
		return fmt.Errorf("marking reminder sent: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)`, matchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking match existence: %w", err)
	}
	if !exists {
		return domain.ErrMatchNotFound
	}
	return domain.ErrReminderAlreadySent
}

// IncrementStatsBatch applies several deltas in one round trip. The returned
// slice holds one error per delta, in order; nil means the row was updated.
func (r *Repository) IncrementStatsBatch(ctx context.Context, updates []domain.StatsEvent) ([]error, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	query := `
		UPDATE players
		SET wins = wins + $1, losses = losses + $2, draws = draws + $3,
			kills = kills + $4, deaths = deaths + $5
		WHERE discord_id = $6 AND is_active
	`
	for _, u := range updates {
		batch.Queue(query, u.Wins, u.Losses, u.Draws, u.Kills, u.Deaths, u.DiscordID)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	results := make([]error, len(updates))
	for i := range updates {
		tag, err := br.Exec()
		if err != nil {
			return nil, fmt.Errorf("batch incrementing stats: %w", err)
		}
		if tag.RowsAffected() == 0 {
			results[i] = domain.ErrPlayerNotFound
		}
	}
	return results, nil
}
