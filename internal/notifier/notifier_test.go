package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/duel-lords/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	mu       sync.Mutex
	names    map[string]string
	failFor  map[string]bool
	messages map[string][]*discordgo.MessageEmbed
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		names:    map[string]string{},
		failFor:  map[string]bool{},
		messages: map[string][]*discordgo.MessageEmbed{},
	}
}

func (f *fakeMessenger) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := f.names[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

func (f *fakeMessenger) SendDirect(_ context.Context, userID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[userID] {
		return errors.New("cannot send messages to this user")
	}
	f.messages[userID] = append(f.messages[userID], embed)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fieldValue(t *testing.T, e *discordgo.MessageEmbed, name string) string {
	t.Helper()
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	t.Fatalf("embed has no field %q", name)
	return ""
}

var matchTime = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

func TestNotifyReminderSendsOpponentToEach(t *testing.T) {
	m := newFakeMessenger()
	n := New(m, testLogger())

	report := n.NotifyReminder(context.Background(), domain.Reminder{
		MatchID: 1, Player1ID: "111", Player2ID: "222",
		Player1Name: "alice", Player2Name: "bob", MatchTime: matchTime,
	})

	assert.True(t, report.AllDelivered())
	assert.ElementsMatch(t, []string{"111", "222"}, report.Delivered)

	require.Len(t, m.messages["111"], 1)
	toAlice := m.messages["111"][0]
	assert.Equal(t, "⏰ Match Reminder", toAlice.Title)
	assert.Equal(t, "**bob**", fieldValue(t, toAlice, "🥊 Your Opponent"))
	assert.Equal(t, "<t:"+strconv.FormatInt(matchTime.Unix(), 10)+":F>", fieldValue(t, toAlice, "📅 Match Time"))
	assert.Equal(t, "IP: `18.228.228.44:3827`", fieldValue(t, toAlice, "🎯 Server"))
	assert.Equal(t, "Good luck, warrior!", toAlice.Footer.Text)
	assert.Equal(t, "Duel Lords Tournament", toAlice.Author.Name)

	require.Len(t, m.messages["222"], 1)
	assert.Equal(t, "**alice**", fieldValue(t, m.messages["222"][0], "🥊 Your Opponent"))
}

func TestNotifyReminderFailureIsolated(t *testing.T) {
	m := newFakeMessenger()
	m.failFor["222"] = true
	n := New(m, testLogger())

	report := n.NotifyReminder(context.Background(), domain.Reminder{
		Player1ID: "111", Player2ID: "222", Player1Name: "alice", Player2Name: "bob", MatchTime: matchTime,
	})

	assert.False(t, report.AllDelivered())
	assert.Equal(t, []string{"111"}, report.Delivered)
	assert.Equal(t, []string{"222"}, report.Failed)
	assert.Len(t, m.messages["111"], 1)
}

func TestOpponentNameFallbacks(t *testing.T) {
	m := newFakeMessenger()
	m.names["222"] = "Bobby"
	n := New(m, testLogger())

	n.NotifyReminder(context.Background(), domain.Reminder{
		Player1ID: "111", Player2ID: "222", MatchTime: matchTime,
	})

	assert.Equal(t, "**Bobby**", fieldValue(t, m.messages["111"][0], "🥊 Your Opponent"))
	assert.Equal(t, "<@111>", fieldValue(t, m.messages["222"][0], "🥊 Your Opponent"))
}

func TestNotifyScheduledNamesOwnOpponent(t *testing.T) {
	m := newFakeMessenger()
	n := New(m, testLogger())

	report := n.NotifyScheduled(context.Background(), domain.Reminder{
		Player1ID: "111", Player2ID: "222", Player1Name: "alice", Player2Name: "bob", MatchTime: matchTime,
	})

	assert.True(t, report.AllDelivered())
	assert.Equal(t, "🔥 You Have a Scheduled Match!", m.messages["111"][0].Title)
	assert.Contains(t, m.messages["111"][0].Description, "**bob**")
	assert.Contains(t, m.messages["222"][0].Description, "**alice**")
}
