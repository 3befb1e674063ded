// Package notifier builds and delivers the direct messages players receive
// about their matches.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/duel-lords/internal/domain"
)

// Messenger is the part of the chat platform the notifier needs
type Messenger interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	SendDirect(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

// DeliveryReport lists which recipients got their message
type DeliveryReport struct {
	Delivered []string
	Failed    []string
}

// AllDelivered reports whether no recipient failed
func (r DeliveryReport) AllDelivered() bool {
	return len(r.Failed) == 0
}

// Notifier sends match notifications to both players
type Notifier struct {
	messenger Messenger
	logger    *slog.Logger
}

// New creates a notifier
func New(m Messenger, logger *slog.Logger) *Notifier {
	return &Notifier{messenger: m, logger: logger}
}

type recipient struct {
	userID       string
	opponentID   string
	opponentName string
}

func pair(r domain.Reminder) [2]recipient {
	return [2]recipient{
		{userID: r.Player1ID, opponentID: r.Player2ID, opponentName: r.Player2Name},
		{userID: r.Player2ID, opponentID: r.Player1ID, opponentName: r.Player1Name},
	}
}

// NotifyReminder sends the five-minute reminder to each player. A failure
// for one recipient does not stop delivery to the other.
func (n *Notifier) NotifyReminder(ctx context.Context, r domain.Reminder) DeliveryReport {
	return n.deliver(ctx, "reminder", r, func(opponent string) *discordgo.MessageEmbed {
		return ReminderEmbed(opponent, r.MatchTime)
	})
}

// NotifyScheduled tells each player that a match against their opponent was
// arranged.
func (n *Notifier) NotifyScheduled(ctx context.Context, r domain.Reminder) DeliveryReport {
	return n.deliver(ctx, "scheduled", r, func(opponent string) *discordgo.MessageEmbed {
		return ScheduledEmbed(opponent, r.MatchTime)
	})
}

func (n *Notifier) deliver(ctx context.Context, kind string, r domain.Reminder, build func(opponent string) *discordgo.MessageEmbed) DeliveryReport {
	var report DeliveryReport
	for _, rc := range pair(r) {
		embed := build(n.opponentName(ctx, rc))
		if err := n.messenger.SendDirect(ctx, rc.userID, embed); err != nil {
			n.logger.Error("failed to send direct message",
				"kind", kind,
				"user_id", rc.userID,
				"match_id", r.MatchID,
				"error", err,
			)
			report.Failed = append(report.Failed, rc.userID)
			continue
		}
		report.Delivered = append(report.Delivered, rc.userID)
	}
	return report
}

// opponentName prefers the stored name, then the platform display name, then
// a mention
func (n *Notifier) opponentName(ctx context.Context, rc recipient) string {
	if rc.opponentName != "" {
		return "**" + rc.opponentName + "**"
	}
	name, err := n.messenger.DisplayName(ctx, rc.opponentID)
	if err != nil || name == "" {
		n.logger.Warn("could not resolve opponent name", "user_id", rc.opponentID, "error", err)
		return Mention(rc.opponentID)
	}
	return "**" + name + "**"
}

// ReminderEmbed is the message sent five minutes before a match
func ReminderEmbed(opponent string, matchTime time.Time) *discordgo.MessageEmbed {
	e := NewEmbed("⏰ Match Reminder", "**Your duel starts in 5 minutes!**", ColorRed)
	AddField(e, "🥊 Your Opponent", opponent, true)
	AddField(e, "📅 Match Time", Timestamp(matchTime, "F"), true)
	AddField(e, "🎯 Server", "IP: `"+domain.ServerAddress()+"`", false)
	AddField(e, "⚡ Get Ready!", "Join the server and prepare for battle!", false)
	e.Footer = &discordgo.MessageEmbedFooter{Text: "Good luck, warrior!"}
	return e
}

// ScheduledEmbed is the message sent when a match is arranged
func ScheduledEmbed(opponent string, matchTime time.Time) *discordgo.MessageEmbed {
	e := NewEmbed("🔥 You Have a Scheduled Match!",
		"Your duel against "+opponent+" has been scheduled!", ColorBlue)
	AddField(e, "📅 Date & Time", Timestamp(matchTime, "F"), false)
	AddField(e, "🎯 Server", "IP: `"+domain.ServerAddress()+"`", false)
	return e
}
