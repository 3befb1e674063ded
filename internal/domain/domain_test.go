package domain

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerDerivedStats(t *testing.T) {
	p := Player{Wins: 2, Losses: 1, Draws: 1, Kills: 7, Deaths: 3}

	assert.Equal(t, int64(4), p.TotalMatches())
	assert.Equal(t, 50.0, p.WinRate())
	assert.Equal(t, 2.33, p.KDRatio())
	assert.Equal(t, "2W-1L-1D", p.Record())
}

func TestWinRateAndKDRatio(t *testing.T) {
	assert.Equal(t, 0.0, WinRate(0, 0, 0))
	assert.Equal(t, 33.33, WinRate(1, 2, 0))
	assert.Equal(t, 100.0, WinRate(3, 0, 0))

	assert.Equal(t, 0.0, KDRatio(0, 0))
	assert.Equal(t, 5.0, KDRatio(5, 0))
	assert.Equal(t, 0.5, KDRatio(1, 2))
}

func TestRankLabel(t *testing.T) {
	assert.Equal(t, "🥇", RankLabel(1))
	assert.Equal(t, "🥈", RankLabel(2))
	assert.Equal(t, "🥉", RankLabel(3))
	assert.Equal(t, "#4", RankLabel(4))
}

func TestNewLeaderboard(t *testing.T) {
	entries := NewLeaderboard([]Player{
		{DiscordID: "1", Username: "a", Wins: 3},
		{DiscordID: "2", Username: "b", Wins: 1, Losses: 1},
	})

	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Rank)
	assert.Equal(t, "🥇", entries[0].RankLabel())
	assert.Equal(t, int64(2), entries[1].Rank)
	assert.Equal(t, int64(2), entries[1].TotalMatches)
	assert.Equal(t, 50.0, entries[1].WinRate)
}

func TestStatsDeltaValidate(t *testing.T) {
	assert.NoError(t, StatsDelta{Wins: 1}.Validate())
	assert.ErrorIs(t, StatsDelta{}.Validate(), ErrInvalidStats)
	assert.ErrorIs(t, StatsDelta{Wins: 1, Deaths: -1}.Validate(), ErrInvalidStats)
}

func TestValidateDiscordID(t *testing.T) {
	assert.NoError(t, ValidateDiscordID("123456789012345678"))
	assert.ErrorIs(t, ValidateDiscordID("12345"), ErrInvalidDiscordID)
	assert.ErrorIs(t, ValidateDiscordID("12345678901234567a"), ErrInvalidDiscordID)
	assert.ErrorIs(t, ValidateDiscordID(""), ErrInvalidDiscordID)
}

func TestSanitizeUsername(t *testing.T) {
	assert.Equal(t, "Bobscript", SanitizeUsername("Bob<script>!"))
	assert.Equal(t, "dark_lord-99.x", SanitizeUsername("dark_lord-99.x"))
	assert.Len(t, SanitizeUsername(strings.Repeat("a", 150)), 100)
}

func TestSanitizeUsernameKeepsNonLatinScripts(t *testing.T) {
	for _, name := range []string{"José", "Дмитрий", "李小龍", "Ωmega Lord", "Zoë-Ångström", "アキラ_07"} {
		assert.Equal(t, name, SanitizeUsername(name), name)
	}

	assert.Equal(t, "Дмитрий", SanitizeUsername("<Дмитрий>🔥"))
	assert.Equal(t, "李小龍 42", SanitizeUsername("李小龍 #42"))
	assert.Equal(t, 100, utf8.RuneCountInString(SanitizeUsername(strings.Repeat("ж", 150))))
}

func TestReminderKeyAndFireAt(t *testing.T) {
	at := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	r := Reminder{Player1ID: "111", Player2ID: "222", MatchTime: at}

	assert.Equal(t, "reminder_111_222_"+strconv.FormatInt(at.Unix(), 10), r.Key())
	assert.Equal(t, at.Add(-5*time.Minute), r.FireAt())
}

func TestMatchReminder(t *testing.T) {
	at := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	m := Match{ID: 9, Player1DiscordID: "111", Player2DiscordID: "222", Player1Name: "a", Player2Name: "b", ScheduledTime: at}

	r := m.Reminder()
	assert.Equal(t, int64(9), r.MatchID)
	assert.Equal(t, "111", r.Player1ID)
	assert.Equal(t, "b", r.Player2Name)
	assert.Equal(t, at, r.MatchTime)
}

func TestResolveMatchTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		now     time.Time
		day     int
		hour    int
		minute  int
		want    time.Time
		wantErr bool
	}{
		{name: "later this month", now: now, day: 15, hour: 14, minute: 30, want: time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)},
		{name: "later today", now: now, day: 10, hour: 18, minute: 0, want: time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)},
		{name: "past rolls to next month", now: now, day: 5, hour: 9, minute: 0, want: time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)},
		{name: "december rolls to january", now: time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC), day: 1, hour: 20, minute: 0, want: time.Date(2027, 1, 1, 20, 0, 0, 0, time.UTC)},
		{name: "day missing this month", now: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), day: 30, hour: 10, minute: 0, wantErr: true},
		{name: "day missing next month", now: time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC), day: 30, hour: 10, minute: 0, wantErr: true},
		{name: "hour out of range", now: now, day: 15, hour: 24, minute: 0, wantErr: true},
		{name: "minute out of range", now: now, day: 15, hour: 10, minute: 60, wantErr: true},
		{name: "day zero", now: now, day: 0, hour: 10, minute: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMatchTime(tt.now, tt.day, tt.hour, tt.minute)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMatchTime))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(ErrPlayerExists))
	assert.True(t, IsValidationError(ErrPlayerNotFound))
	assert.False(t, IsValidationError(ErrInternalError))
	assert.False(t, IsValidationError(errors.New("boom")))
}
