package domain

import (
	"fmt"
	"time"
)

// MatchStatus represents the lifecycle state of a match
type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// ReminderLead is how long before the match the reminder fires
const ReminderLead = 5 * time.Minute

// Game server every duel is played on
const (
	ServerIP   = "18.228.228.44"
	ServerPort = "3827"
	GameName   = "BombSquad"
)

// ServerAddress returns the ip:port players connect to
func ServerAddress() string {
	return ServerIP + ":" + ServerPort
}

// Match represents a scheduled duel between two players
type Match struct {
	ID               int64       `json:"id"`
	Player1ID        int64       `json:"player1_id"`
	Player2ID        int64       `json:"player2_id"`
	Player1DiscordID string      `json:"player1_discord_id"`
	Player2DiscordID string      `json:"player2_discord_id"`
	Player1Name      string      `json:"player1_name"`
	Player2Name      string      `json:"player2_name"`
	ScheduledTime    time.Time   `json:"scheduled_time"`
	CreatedAt        time.Time   `json:"created_at"`
	Status           MatchStatus `json:"status"`
	WinnerID         *int64      `json:"winner_id,omitempty"`
	Player1Kills     int64       `json:"player1_kills"`
	Player2Kills     int64       `json:"player2_kills"`
	Notes            string      `json:"notes,omitempty"`
	ReminderSent     bool        `json:"reminder_sent"`
}

// Reminder builds the reminder job description for this match
func (m *Match) Reminder() Reminder {
	return Reminder{
		MatchID:     m.ID,
		Player1ID:   m.Player1DiscordID,
		Player2ID:   m.Player2DiscordID,
		Player1Name: m.Player1Name,
		Player2Name: m.Player2Name,
		MatchTime:   m.ScheduledTime,
	}
}

// Reminder is an in-memory reminder job; it is never persisted
type Reminder struct {
	// MatchID is zero when the match row is unknown
	MatchID     int64
	Player1ID   string
	Player2ID   string
	Player1Name string
	Player2Name string
	MatchTime   time.Time
}

// Key identifies the job; scheduling the same key again replaces it
func (r Reminder) Key() string {
	return fmt.Sprintf("reminder_%s_%s_%d", r.Player1ID, r.Player2ID, r.MatchTime.Unix())
}

// FireAt returns the wall-clock time the reminder is due
func (r Reminder) FireAt() time.Time {
	return r.MatchTime.Add(-ReminderLead)
}

// Tournament groups matches; stored but not used by any operation yet
type Tournament struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Status      string     `json:"status"`
	MaxPlayers  int        `json:"max_players"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ResolveMatchTime turns a day-of-month and clock time into the next
// matching instant in now's location. A time already past this month moves
// to the following month.
func ResolveMatchTime(now time.Time, day, hour, minute int) (time.Time, error) {
	if day < 1 || day > 31 || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: day %d, %02d:%02d", ErrInvalidMatchTime, day, hour, minute)
	}

	year, month := now.Year(), now.Month()
	t, ok := exactDate(year, month, day, hour, minute, now.Location())
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s has no day %d", ErrInvalidMatchTime, month, day)
	}
	if !t.Before(now) {
		return t, nil
	}

	if month == time.December {
		year, month = year+1, time.January
	} else {
		month++
	}
	t, ok = exactDate(year, month, day, hour, minute, now.Location())
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s has no day %d", ErrInvalidMatchTime, month, day)
	}
	return t, nil
}

// exactDate is time.Date without normalisation of out-of-range days
func exactDate(year int, month time.Month, day, hour, minute int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}
