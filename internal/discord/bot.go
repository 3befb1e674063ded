// Package discord connects the tournament to Discord: slash commands in,
// direct messages out.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/duel-lords/internal/config"
)

const interactionTimeout = 10 * time.Second

// Intents requested on the gateway connection
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

// Bot owns the Discord session and routes interactions to the commands
type Bot struct {
	session  *discordgo.Session
	commands *Commands
	guildID  string
	logger   *slog.Logger

	mu         sync.Mutex
	registered bool
}

// NewSession creates an unopened Discord session for the configured token
func NewSession(cfg *config.DiscordConfig) (*discordgo.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = Intents
	return session, nil
}

// NewBot wires the interaction and ready handlers onto the session
func NewBot(session *discordgo.Session, commands *Commands, guildID string, logger *slog.Logger) *Bot {
	b := &Bot{
		session:  session,
		commands: commands,
		guildID:  guildID,
		logger:   logger,
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	return b
}

// Open connects to the gateway
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	return nil
}

// Close disconnects from the gateway
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("discord session ready",
		"user", r.User.Username,
		"guilds", len(r.Guilds),
	)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registered {
		return
	}

	synced, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.guildID, Definitions())
	if err != nil {
		b.logger.Error("failed to sync commands", "error", err)
		return
	}
	b.registered = true
	b.logger.Info("synced commands", "count", len(synced), "guild_id", b.guildID)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	inv := ParseInvocation(i.Interaction)
	b.logger.Debug("command invoked", "command", inv.Name, "user", inv.Invoker.ID)

	resp := b.commands.Handle(ctx, inv)

	data := &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{resp.Embed},
	}
	if resp.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Error("failed to respond to interaction", "command", inv.Name, "error", err)
	}
}

// ParseInvocation extracts the command name, invoker and options of an
// application command interaction
func ParseInvocation(i *discordgo.Interaction) Invocation {
	data := i.ApplicationCommandData()
	inv := Invocation{
		Name:    data.Name,
		Members: make(map[string]Member),
		Ints:    make(map[string]int64),
	}

	switch {
	case i.Member != nil:
		inv.Invoker = memberFromGuild(i.Member, i.Member.User)
		inv.IsAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	case i.User != nil:
		inv.Invoker = memberFromGuild(nil, i.User)
	}

	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionUser:
			userID, _ := opt.Value.(string)
			inv.Members[opt.Name] = resolvedMember(data.Resolved, userID)
		case discordgo.ApplicationCommandOptionInteger:
			inv.Ints[opt.Name] = opt.IntValue()
		}
	}
	return inv
}

func resolvedMember(resolved *discordgo.ApplicationCommandInteractionDataResolved, userID string) Member {
	if resolved == nil {
		return Member{ID: userID, DisplayName: userID}
	}
	m := memberFromGuild(resolved.Members[userID], resolved.Users[userID])
	m.ID = userID
	if m.DisplayName == "" {
		m.DisplayName = userID
	}
	return m
}

func memberFromGuild(gm *discordgo.Member, u *discordgo.User) Member {
	var m Member
	if u != nil {
		m.ID = u.ID
		m.DisplayName = userDisplayName(u)
		m.AvatarURL = u.AvatarURL("")
	}
	if gm != nil && gm.Nick != "" {
		m.DisplayName = gm.Nick
	}
	return m
}

func userDisplayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Messenger delivers direct messages through a Discord session
type Messenger struct {
	session *discordgo.Session
	guildID string
}

// NewMessenger creates a messenger; guildID, when set, lets display names
// resolve to guild nicknames
func NewMessenger(session *discordgo.Session, guildID string) *Messenger {
	return &Messenger{session: session, guildID: guildID}
}

// DisplayName looks up the name Discord shows for userID
func (m *Messenger) DisplayName(ctx context.Context, userID string) (string, error) {
	if m.guildID != "" {
		member, err := m.session.GuildMember(m.guildID, userID, discordgo.WithContext(ctx))
		if err == nil {
			return memberFromGuild(member, member.User).DisplayName, nil
		}
	}
	u, err := m.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching user %s: %w", userID, err)
	}
	return userDisplayName(u), nil
}

// SendDirect opens a DM channel with userID and posts the embed
func (m *Messenger) SendDirect(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	ch, err := m.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening dm channel with %s: %w", userID, err)
	}
	if _, err := m.session.ChannelMessageSendEmbed(ch.ID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending dm to %s: %w", userID, err)
	}
	return nil
}
