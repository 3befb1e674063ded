package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duel-lords/internal/config"
	"github.com/duel-lords/internal/domain"
	_ "modernc.org/sqlite"
)

// timestampLayout is fixed-width so stored timestamps compare correctly as text
const timestampLayout = "2006-01-02T15:04:05Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

//go:embed schema.sql
var schema string

// Store provides SQLite-backed data access
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the SQLite database at cfg.Path
func New(cfg *config.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := fmt.Sprintf("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = %d;",
		cfg.BusyTimeout.Milliseconds())
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations creates the tables if they do not exist
func (s *Store) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	s.logger.Info("database migrations completed")
	return nil
}

// --- Player methods ---

const playerColumns = `id, discord_id, username, wins, losses, draws, kills, deaths, registered_at, is_active`

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row scanner) (*domain.Player, error) {
	var p domain.Player
	var registeredAt string
	if err := row.Scan(&p.ID, &p.DiscordID, &p.Username, &p.Wins, &p.Losses, &p.Draws,
		&p.Kills, &p.Deaths, &registeredAt, &p.IsActive); err != nil {
		return nil, err
	}
	t, err := parseTimestamp(registeredAt)
	if err != nil {
		return nil, err
	}
	p.RegisteredAt = t
	return &p, nil
}

// RegisterPlayer inserts a new player. A soft-deleted player with the same
// Discord id is re-activated with their statistics intact.
func (s *Store) RegisterPlayer(ctx context.Context, discordID, username string) (*domain.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO players (discord_id, username, registered_at, is_active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(discord_id) DO UPDATE SET
			username = excluded.username,
			is_active = 1
		WHERE players.is_active = 0
		RETURNING `+playerColumns,
		discordID, username, formatTimestamp(time.Now()))

	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerExists
	}
	if err != nil {
		return nil, fmt.Errorf("registering player: %w", err)
	}
	return p, nil
}

// DeactivatePlayer soft-deletes an active player
func (s *Store) DeactivatePlayer(ctx context.Context, discordID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE players SET is_active = 0 WHERE discord_id = ? AND is_active = 1`, discordID)
	if err != nil {
		return fmt.Errorf("deactivating player: %w", err)
	}
	return requireRow(result, domain.ErrPlayerNotFound)
}

// GetPlayer returns an active player by Discord id
func (s *Store) GetPlayer(ctx context.Context, discordID string) (*domain.Player, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE discord_id = ? AND is_active = 1`, discordID)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return p, nil
}

// ListActivePlayers returns every active player ordered by name
func (s *Store) ListActivePlayers(ctx context.Context) ([]domain.Player, error) {
	return s.queryPlayers(ctx,
		`SELECT `+playerColumns+` FROM players WHERE is_active = 1 ORDER BY username`)
}

// CountActivePlayers returns the number of active players
func (s *Store) CountActivePlayers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE is_active = 1`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting players: %w", err)
	}
	return count, nil
}

// GetLeaderboard returns the top active players by wins, then kills, then
// matches played
func (s *Store) GetLeaderboard(ctx context.Context, limit int) ([]domain.Player, error) {
	return s.queryPlayers(ctx, `
		SELECT `+playerColumns+` FROM players
		WHERE is_active = 1
		ORDER BY wins DESC, kills DESC, (wins + losses + draws) DESC, username ASC
		LIMIT ?
	`, limit)
}

func (s *Store) queryPlayers(ctx context.Context, query string, args ...any) ([]domain.Player, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *Store) IncrementStats(ctx context.Context, discordID string, d domain.StatsDelta) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE players
		SET wins = wins + ?, losses = losses + ?, draws = draws + ?,
			kills = kills + ?, deaths = deaths + ?
		WHERE discord_id = ? AND is_active = 1
	`, d.Wins, d.Losses, d.Draws, d.Kills, d.Deaths, discordID)
	if err != nil {
		return fmt.Errorf("incrementing stats: %w", err)
	}
	return requireRow(result, domain.ErrPlayerNotFound)
}

// --- Match methods ---

const matchSelect = `
	SELECT m.id, m.player1_id, m.player2_id, p1.discord_id, p2.discord_id, p1.username, p2.username,
		m.scheduled_time, m.created_at, m.status, m.winner_id, m.player1_kills, m.player2_kills,
		m.notes, m.reminder_sent
	FROM matches m
	JOIN players p1 ON m.player1_id = p1.id
	JOIN players p2 ON m.player2_id = p2.id`

func scanMatch(row scanner) (*domain.Match, error) {
	var m domain.Match
	var scheduled, created string
	var winnerID sql.NullInt64
	var notes sql.NullString
	if err := row.Scan(&m.ID, &m.Player1ID, &m.Player2ID, &m.Player1DiscordID, &m.Player2DiscordID,
		&m.Player1Name, &m.Player2Name, &scheduled, &created, &m.Status, &winnerID,
		&m.Player1Kills, &m.Player2Kills, &notes, &m.ReminderSent); err != nil {
		return nil, err
	}

	var err error
	if m.ScheduledTime, err = parseTimestamp(scheduled); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if winnerID.Valid {
		m.WinnerID = &winnerID.Int64
	}
	m.Notes = notes.String
	return &m, nil
}

// CreateMatch inserts a scheduled match between two player rows
func (s *Store) CreateMatch(ctx context.Context, player1ID, player2ID int64, scheduledTime time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO matches (player1_id, player2_id, scheduled_time, created_at, status)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, player1ID, player2ID, formatTimestamp(scheduledTime), formatTimestamp(time.Now()),
		string(domain.MatchStatusScheduled)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating match: %w", err)
	}
	s.logger.Info("match created", "match_id", id)
	return id, nil
}

// GetMatch returns a match by id
func (s *Store) GetMatch(ctx context.Context, matchID int64) (*domain.Match, error) {
	m, err := scanMatch(s.db.QueryRowContext(ctx, matchSelect+` WHERE m.id = ?`, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// ListUpcomingMatches returns scheduled matches after now, soonest first
func (s *Store) ListUpcomingMatches(ctx context.Context, now time.Time, limit int) ([]domain.Match, error) {
	return s.queryMatches(ctx, matchSelect+`
		WHERE m.status = ? AND m.scheduled_time > ?
		ORDER BY m.scheduled_time ASC
		LIMIT ?
	`, string(domain.MatchStatusScheduled), formatTimestamp(now), limit)
}

// ListUpcomingUnremindedMatches returns every scheduled future match whose
// reminder has not been handled yet
func (s *Store) ListUpcomingUnremindedMatches(ctx context.Context, now time.Time) ([]domain.Match, error) {
	return s.queryMatches(ctx, matchSelect+`
		WHERE m.status = ? AND m.reminder_sent = 0 AND m.scheduled_time > ?
		ORDER BY m.scheduled_time ASC
	`, string(domain.MatchStatusScheduled), formatTimestamp(now))
}

func (s *Store) queryMatches(ctx context.Context, query string, args ...any) ([]domain.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *Store) MarkReminderSent(ctx context.Context, matchID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE matches SET reminder_sent = 1 WHERE id = ? AND reminder_sent = 0`, matchID)
	if err != nil {
		return fmt.Errorf("marking reminder sent: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM matches WHERE id = ?)`, matchID).Scan(&exists); err != nil {
		return fmt.Errorf("checking match existence: %w", err)
	}
	if !exists {
		return domain.ErrMatchNotFound
	}
	return domain.ErrReminderAlreadySent
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// IncrementStatsBatch applies several deltas inside one transaction. The
// returned slice holds one error per delta, in order; nil means the row was
// updated.
func (s *Store) IncrementStatsBatch(ctx context.Context, updates []domain.StatsEvent) ([]error, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE players
		SET wins = wins + ?, losses = losses + ?, draws = draws + ?,
			kills = kills + ?, deaths = deaths + ?
		WHERE discord_id = ? AND is_active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing batch update: %w", err)
	}
	defer stmt.Close()

	results := make([]error, len(updates))
	for i, u := range updates {
		result, err := stmt.ExecContext(ctx, u.Wins, u.Losses, u.Draws, u.Kills, u.Deaths, u.DiscordID)
		if err != nil {
			return nil, fmt.Errorf("batch incrementing stats: %w", err)
		}
		results[i] = requireRow(result, domain.ErrPlayerNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}
	return results, nil
}
