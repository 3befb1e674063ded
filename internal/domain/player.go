package domain

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

// Player represents a registered tournament participant
type Player struct {
	ID           int64     `json:"id"`
	DiscordID    string    `json:"discord_id"`
	Username     string    `json:"username"`
	Wins         int64     `json:"wins"`
	Losses       int64     `json:"losses"`
	Draws        int64     `json:"draws"`
	Kills        int64     `json:"kills"`
	Deaths       int64     `json:"deaths"`
	RegisteredAt time.Time `json:"registered_at"`
	IsActive     bool      `json:"is_active"`
}

// TotalMatches returns the number of matches with a recorded outcome
func (p *Player) TotalMatches() int64 {
	return p.Wins + p.Losses + p.Draws
}

// WinRate returns the win percentage rounded to two decimals
func (p *Player) WinRate() float64 {
	return WinRate(p.Wins, p.Losses, p.Draws)
}

// KDRatio returns the kill/death ratio rounded to two decimals
func (p *Player) KDRatio() float64 {
	return KDRatio(p.Kills, p.Deaths)
}

// Record formats the match record as W-L-D
func (p *Player) Record() string {
	return fmt.Sprintf("%dW-%dL-%dD", p.Wins, p.Losses, p.Draws)
}

// StatsDelta is an increment-only update to a player's counters
type StatsDelta struct {
	Wins   int64 `json:"wins"`
	Losses int64 `json:"losses"`
	Draws  int64 `json:"draws"`
	Kills  int64 `json:"kills"`
	Deaths int64 `json:"deaths"`
}

// Validate rejects negative components and empty updates
func (d StatsDelta) Validate() error {
	if d.Wins < 0 || d.Losses < 0 || d.Draws < 0 || d.Kills < 0 || d.Deaths < 0 {
		return fmt.Errorf("%w: values must not be negative", ErrInvalidStats)
	}
	if d.IsZero() {
		return fmt.Errorf("%w: nothing to update", ErrInvalidStats)
	}
	return nil
}

// IsZero reports whether the delta changes nothing
func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// StatsEvent is a stats delta published on the message bus
type StatsEvent struct {
	EventID   string    `json:"event_id,omitempty"`
	DiscordID string    `json:"discord_id"`
	MatchID   int64     `json:"match_id,omitempty"`
	Wins      int64     `json:"wins"`
	Losses    int64     `json:"losses"`
	Draws     int64     `json:"draws"`
	Kills     int64     `json:"kills"`
	Deaths    int64     `json:"deaths"`
	Timestamp time.Time `json:"timestamp"`
}

// Delta extracts the counter increments carried by the event
func (e StatsEvent) Delta() StatsDelta {
	return StatsDelta{
		Wins:   e.Wins,
		Losses: e.Losses,
		Draws:  e.Draws,
		Kills:  e.Kills,
		Deaths: e.Deaths,
	}
}

// LeaderboardEntry represents a single ranked row of the leaderboard
type LeaderboardEntry struct {
	Rank         int64   `json:"rank"`
	DiscordID    string  `json:"discord_id"`
	Username     string  `json:"username"`
	Wins         int64   `json:"wins"`
	Losses       int64   `json:"losses"`
	Draws        int64   `json:"draws"`
	Kills        int64   `json:"kills"`
	Deaths       int64   `json:"deaths"`
	TotalMatches int64   `json:"total_matches"`
	WinRate      float64 `json:"win_rate"`
	KDRatio      float64 `json:"kd_ratio"`
}

// RankLabel returns the medal for the podium and "#N" for everyone else
func (e LeaderboardEntry) RankLabel() string {
	return RankLabel(int(e.Rank))
}

// NewLeaderboard ranks players in the order given, starting at 1
func NewLeaderboard(players []Player) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, len(players))
	for i := range players {
		p := &players[i]
		entries[i] = LeaderboardEntry{
			Rank:         int64(i + 1),
			DiscordID:    p.DiscordID,
			Username:     p.Username,
			Wins:         p.Wins,
			Losses:       p.Losses,
			Draws:        p.Draws,
			Kills:        p.Kills,
			Deaths:       p.Deaths,
			TotalMatches: p.TotalMatches(),
			WinRate:      p.WinRate(),
			KDRatio:      p.KDRatio(),
		}
	}
	return entries
}

// WinRate calculates the win percentage
func WinRate(wins, losses, draws int64) float64 {
	total := wins + losses + draws
	if total == 0 {
		return 0
	}
	return round2(float64(wins) / float64(total) * 100)
}

// KDRatio calculates the kill/death ratio; with no deaths it is the kill count
func KDRatio(kills, deaths int64) float64 {
	if deaths == 0 {
		return float64(kills)
	}
	return round2(float64(kills) / float64(deaths))
}

// RankLabel returns the leaderboard label for a 1-based position
func RankLabel(position int) string {
	switch position {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("#%d", position)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

const maxUsernameLength = 100

var (
	discordIDPattern  = regexp.MustCompile(`^[0-9]{15,21}$`)
	usernameStripExpr = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\p{Z}\s\-.]`)
)

// ValidateDiscordID checks that id looks like a Discord snowflake
func ValidateDiscordID(id string) error {
	if !discordIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidDiscordID, id)
	}
	return nil
}

// SanitizeUsername strips characters other than letters, marks, digits,
// spaces and "-_." in any script, then truncates the result for storage
func SanitizeUsername(name string) string {
	clean := []rune(usernameStripExpr.ReplaceAllString(name, ""))
	if len(clean) > maxUsernameLength {
		clean = clean[:maxUsernameLength]
	}
	return string(clean)
}
