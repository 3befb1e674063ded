package kafka

import (
	"testing"
	"time"

	"github.com/duel-lords/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"event_id":"e1","discord_id":"123456789012345678","wins":1,"kills":4,"match_id":9}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", event.EventID)
	assert.Equal(t, int64(9), event.MatchID)
	assert.Equal(t, domain.StatsDelta{Wins: 1, Kills: 4}, event.Delta())
}

func TestDecodeEventRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		target  error
	}{
		{name: "malformed", payload: `{"discord_id":`, target: domain.ErrInvalidRequest},
		{name: "bad id", payload: `{"discord_id":"abc","wins":1}`, target: domain.ErrInvalidDiscordID},
		{name: "empty delta", payload: `{"discord_id":"123456789012345678"}`, target: domain.ErrInvalidStats},
		{name: "negative", payload: `{"discord_id":"123456789012345678","wins":-2}`, target: domain.ErrInvalidStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	in := domain.StatsEvent{
		EventID:   "e2",
		DiscordID: "123456789012345678",
		Losses:    1,
		Deaths:    3,
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := EncodeEvent(in)
	require.NoError(t, err)

	out, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, in.Delta(), out.Delta())
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
}
