package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/duel-lords/internal/domain"
	"github.com/duel-lords/internal/notifier"
)

// Command names
const (
	CommandServerInfo     = "server_info"
	CommandRegisterPlayer = "register_player"
	CommandRemovePlayer   = "remove_player"
	CommandScheduleMatch  = "schedule_match"
	CommandPlayerStats    = "player_stats"
	CommandLeaderboard    = "leaderboard"
	CommandUpdateStats    = "update_stats"
	CommandAllPlayers     = "all_players"
	CommandHelp           = "help"
)

const (
	leaderboardSize = 10
	maxFieldLength  = 1024
)

// Service is the tournament service as seen by the slash commands
type Service interface {
	RegisterPlayer(ctx context.Context, discordID, username string) (*domain.Player, error)
	RemovePlayer(ctx context.Context, discordID string) error
	GetPlayer(ctx context.Context, discordID string) (*domain.Player, error)
	ListPlayers(ctx context.Context) ([]domain.Player, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	UpdateStats(ctx context.Context, discordID string, delta domain.StatsDelta) error
	ScheduleMatch(ctx context.Context, player1ID, player2ID string, matchTime time.Time) (*domain.Match, bool, error)
	ResolveMatchTime(loc *time.Location, day, hour, minute int) (time.Time, error)
}

// MatchAnnouncer sends the "match scheduled" direct messages
type MatchAnnouncer interface {
	NotifyScheduled(ctx context.Context, r domain.Reminder) notifier.DeliveryReport
}

// Member is a guild member referenced by an interaction
type Member struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// Mention returns the member's mention markup
func (m Member) Mention() string {
	return notifier.Mention(m.ID)
}

// Invocation is a parsed slash command interaction
type Invocation struct {
	Name    string
	Invoker Member
	IsAdmin bool
	Members map[string]Member
	Ints    map[string]int64
}

// Response is the embed reply to an invocation
type Response struct {
	Embed     *discordgo.MessageEmbed
	Ephemeral bool
}

// Commands implements the slash command handlers
type Commands struct {
	service  Service
	announce MatchAnnouncer
	location *time.Location
	logger   *slog.Logger
}

// NewCommands creates the command handlers; loc interprets schedule_match
// day/hour/minute values
func NewCommands(service Service, announce MatchAnnouncer, loc *time.Location, logger *slog.Logger) *Commands {
	if loc == nil {
		loc = time.UTC
	}
	return &Commands{
		service:  service,
		announce: announce,
		location: loc,
		logger:   logger,
	}
}

// Handle dispatches an invocation to its command
func (c *Commands) Handle(ctx context.Context, inv Invocation) Response {
	switch inv.Name {
	case CommandServerInfo:
		return c.ServerInfo()
	case CommandRegisterPlayer:
		return c.RegisterPlayer(ctx, inv)
	case CommandRemovePlayer:
		return c.RemovePlayer(ctx, inv)
	case CommandScheduleMatch:
		return c.ScheduleMatch(ctx, inv)
	case CommandPlayerStats:
		return c.PlayerStats(ctx, inv)
	case CommandLeaderboard:
		return c.Leaderboard(ctx)
	case CommandUpdateStats:
		return c.UpdateStats(ctx, inv)
	case CommandAllPlayers:
		return c.AllPlayers(ctx)
	case CommandHelp:
		return c.Help()
	default:
		c.logger.Warn("unknown command", "command", inv.Name)
		return errorResponse("❌ Unknown Command", "This command is not supported.", true)
	}
}

func errorResponse(title, description string, ephemeral bool) Response {
	return Response{
		Embed:     notifier.NewEmbed(title, description, notifier.ColorRed),
		Ephemeral: ephemeral,
	}
}

func accessDenied(action string) Response {
	return errorResponse("❌ Access Denied", "Only administrators can "+action+".", true)
}

// describe turns a service error into the text shown to the invoker
func (c *Commands) describe(command string, err error) string {
	switch {
	case domain.IsValidationError(err):
		msg := err.Error()
		return strings.ToUpper(msg[:1]) + msg[1:] + "."
	default:
		c.logger.Error("command failed", "command", command, "error", err)
		return "Something went wrong, please try again later."
	}
}

// ServerInfo shows the game server connection details
func (c *Commands) ServerInfo() Response {
	embed := notifier.NewEmbed("🏟️ BombSquad Server Information", "Connect to our official tournament server!", notifier.ColorBlue)
	notifier.AddField(embed, "🌐 Server IP", "`"+domain.ServerIP+"`", true)
	notifier.AddField(embed, "🔌 Port", "`"+domain.ServerPort+"`", true)
	notifier.AddField(embed, "🎮 Game", domain.GameName, true)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Copy the IP and port to connect!"}
	return Response{Embed: embed}
}

// RegisterPlayer registers the target member for the tournament
func (c *Commands) RegisterPlayer(ctx context.Context, inv Invocation) Response {
	if !inv.IsAdmin {
		return accessDenied("register players")
	}
	target, ok := inv.Members["player"]
	if !ok {
		return errorResponse("❌ Registration Failed", "A player is required.", true)
	}

	p, err := c.service.RegisterPlayer(ctx, target.ID, target.DisplayName)
	if err != nil {
		return errorResponse("❌ Registration Failed", c.describe(inv.Name, err), false)
	}

	embed := notifier.NewEmbed("✅ Player Registered",
		target.Mention()+" has been successfully registered for the tournament!", notifier.ColorGreen)
	notifier.AddField(embed, "Player", p.Username, true)
	notifier.AddField(embed, "Discord ID", p.DiscordID, true)
	if target.AvatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: target.AvatarURL}
	}
	return Response{Embed: embed}
}

// RemovePlayer soft-deletes the target member
func (c *Commands) RemovePlayer(ctx context.Context, inv Invocation) Response {
	if !inv.IsAdmin {
		return accessDenied("remove players")
	}
	target, ok := inv.Members["player"]
	if !ok {
		return errorResponse("❌ Removal Failed", "A player is required.", true)
	}

	if err := c.service.RemovePlayer(ctx, target.ID); err != nil {
		return errorResponse("❌ Removal Failed", c.describe(inv.Name, err), false)
	}

	embed := notifier.NewEmbed("✅ Player Removed",
		target.Mention()+" has been removed from the tournament.", notifier.ColorOrange)
	return Response{Embed: embed}
}

// ScheduleMatch records a duel, registers its reminder and DMs both players
func (c *Commands) ScheduleMatch(ctx context.Context, inv Invocation) Response {
	p1, ok1 := inv.Members["player1"]
	p2, ok2 := inv.Members["player2"]
	if !ok1 || !ok2 {
		return errorResponse("❌ Scheduling Failed", "Both players are required.", true)
	}

	matchTime, err := c.service.ResolveMatchTime(c.location,
		int(inv.Ints["day"]), int(inv.Ints["hour"]), int(inv.Ints["minute"]))
	if err != nil {
		return errorResponse("❌ Invalid Date/Time", "Please provide valid day, hour, and minute values.", true)
	}

	match, reminderScheduled, err := c.service.ScheduleMatch(ctx, p1.ID, p2.ID, matchTime)
	if err != nil {
		return errorResponse("❌ Scheduling Failed", c.describe(inv.Name, err), false)
	}

	embed := notifier.NewEmbed("⚔️ Match Scheduled", "A new duel has been arranged!", notifier.ColorGold)
	notifier.AddField(embed, "🥊 Fighters", p1.Mention()+" **VS** "+p2.Mention(), false)
	notifier.AddField(embed, "📅 Match Time", notifier.Timestamp(match.ScheduledTime, "F"), false)
	notifier.AddField(embed, "⏰ Countdown", notifier.Timestamp(match.ScheduledTime, "R"), true)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Players will receive a reminder 5 minutes before the match"}

	if !reminderScheduled {
		c.logger.Info("no reminder registered for match", "match_id", match.ID)
	}

	if c.announce != nil {
		report := c.announce.NotifyScheduled(ctx, match.Reminder())
		if !report.AllDelivered() {
			notifier.AddField(embed, "⚠️ Note", "Could not send DM to one or both players", false)
		}
	}
	return Response{Embed: embed}
}

// PlayerStats shows the statistics of the target member, or the invoker
func (c *Commands) PlayerStats(ctx context.Context, inv Invocation) Response {
	target, ok := inv.Members["player"]
	if !ok {
		target = inv.Invoker
	}

	p, err := c.service.GetPlayer(ctx, target.ID)
	if err != nil {
		if domain.IsNotFoundError(err) || domain.IsValidationError(err) {
			return errorResponse("❌ Player Not Found",
				target.Mention()+" is not registered for the tournament.", false)
		}
		return errorResponse("❌ Player Not Found", c.describe(inv.Name, err), false)
	}

	name := target.DisplayName
	if name == "" {
		name = p.Username
	}
	embed := notifier.NewEmbed("📊 Tournament Statistics", "**"+name+"**", notifier.ColorPurple)
	if target.AvatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: target.AvatarURL}
	}
	notifier.AddField(embed, "🏆 Match Record",
		fmt.Sprintf("**%d**W - **%d**L - **%d**D", p.Wins, p.Losses, p.Draws), true)
	notifier.AddField(embed, "📈 Win Rate", fmt.Sprintf("**%.1f%%**", p.WinRate()), true)
	notifier.AddField(embed, "⚔️ K/D Ratio", fmt.Sprintf("**%.2f**", p.KDRatio()), true)
	notifier.AddField(embed, "🎯 Total Kills", fmt.Sprintf("**%d**", p.Kills), true)
	notifier.AddField(embed, "💀 Total Deaths", fmt.Sprintf("**%d**", p.Deaths), true)
	notifier.AddField(embed, "🎮 Total Matches", fmt.Sprintf("**%d**", p.TotalMatches()), true)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "Registered: " + p.RegisteredAt.UTC().Format("2006-01-02 15:04:05"),
	}
	return Response{Embed: embed}
}

// Leaderboard shows the top ten players
func (c *Commands) Leaderboard(ctx context.Context) Response {
	entries, err := c.service.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		return errorResponse("❌ Leaderboard Unavailable", c.describe(CommandLeaderboard, err), false)
	}
	if len(entries) == 0 {
		return Response{Embed: notifier.NewEmbed("📊 Tournament Leaderboard", "No players registered yet!", notifier.ColorBlue)}
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s **%s**\n", e.RankLabel(), e.Username)
		fmt.Fprintf(&b, "   🏆 %dW-%dL-%dD (%.1f%%)\n", e.Wins, e.Losses, e.Draws, e.WinRate)
		fmt.Fprintf(&b, "   ⚔️ %d kills | 💀 %d deaths\n\n", e.Kills, e.Deaths)
	}

	embed := notifier.NewEmbed("🏆 Tournament Leaderboard", b.String(), notifier.ColorGold)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Fight your way to the top!"}
	return Response{Embed: embed}
}

// UpdateStats adds the given counters to the target member's statistics
func (c *Commands) UpdateStats(ctx context.Context, inv Invocation) Response {
	if !inv.IsAdmin {
		return accessDenied("update player statistics")
	}
	target, ok := inv.Members["player"]
	if !ok {
		return errorResponse("❌ Update Failed", "A player is required.", true)
	}

	delta := domain.StatsDelta{
		Wins:   inv.Ints["wins"],
		Losses: inv.Ints["losses"],
		Draws:  inv.Ints["draws"],
		Kills:  inv.Ints["kills"],
		Deaths: inv.Ints["deaths"],
	}
	if err := c.service.UpdateStats(ctx, target.ID, delta); err != nil {
		return errorResponse("❌ Update Failed", c.describe(inv.Name, err), false)
	}

	embed := notifier.NewEmbed("✅ Statistics Updated", "Updated statistics for "+target.Mention(), notifier.ColorGreen)
	for _, f := range []struct {
		name  string
		value int64
	}{
		{"🏆 Wins", delta.Wins},
		{"💔 Losses", delta.Losses},
		{"🤝 Draws", delta.Draws},
		{"⚔️ Kills", delta.Kills},
		{"💀 Deaths", delta.Deaths},
	} {
		if f.value > 0 {
			notifier.AddField(embed, f.name, fmt.Sprintf("+%d", f.value), true)
		}
	}
	return Response{Embed: embed}
}

// AllPlayers lists every active player with their record
func (c *Commands) AllPlayers(ctx context.Context) Response {
	players, err := c.service.ListPlayers(ctx)
	if err != nil {
		return errorResponse("❌ Players Unavailable", c.describe(CommandAllPlayers, err), false)
	}
	if len(players) == 0 {
		return Response{Embed: notifier.NewEmbed("👥 Tournament Players", "No players registered yet!", notifier.ColorBlue)}
	}

	lines := make([]string, len(players))
	for i := range players {
		p := &players[i]
		lines[i] = fmt.Sprintf("**%d.** %s (%s)", i+1, p.Username, p.Record())
	}

	embed := notifier.NewEmbed("👥 All Tournament Players",
		fmt.Sprintf("**%d fighters** registered for combat!", len(players)), notifier.ColorBlue)

	text := strings.Join(lines, "\n")
	if len(text) > maxFieldLength {
		mid := len(lines) / 2
		notifier.AddField(embed, "🥊 Fighters (1st Half)", strings.Join(lines[:mid], "\n"), true)
		notifier.AddField(embed, "🥊 Fighters (2nd Half)", strings.Join(lines[mid:], "\n"), true)
	} else {
		notifier.AddField(embed, "🥊 All Fighters", text, false)
	}
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Ready for battle!"}
	return Response{Embed: embed}
}

// Help lists the available commands
func (c *Commands) Help() Response {
	embed := notifier.NewEmbed("🤖 Duel Lords Bot Commands",
		"Complete list of available commands for tournament management", notifier.ColorBlue)
	notifier.AddField(embed, "🎮 General Commands",
		"`/server_info` - Show BombSquad server details\n"+
			"`/help` - Show this help message\n"+
			"`/player_stats` - View player statistics\n"+
			"`/leaderboard` - Tournament rankings\n"+
			"`/all_players` - List all registered players", false)
	notifier.AddField(embed, "👑 Admin Commands",
		"`/register_player` - Register new player\n"+
			"`/remove_player` - Remove player from tournament\n"+
			"`/schedule_match` - Schedule player vs player match\n"+
			"`/update_stats` - Update player win/loss/kill stats", false)
	notifier.AddField(embed, "⚔️ Match Features",
		"• Automatic reminders 5 minutes before matches\n"+
			"• Private DM notifications to players\n"+
			"• Discord timestamp integration\n"+
			"• Beautiful embed styling", false)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Duel Lords - BombSquad Tournament Management"}
	return Response{Embed: embed}
}
