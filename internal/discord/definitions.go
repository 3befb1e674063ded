package discord

import "github.com/bwmarrin/discordgo"

var (
	adminOnly    = int64(discordgo.PermissionAdministrator)
	zero         = 0.0
	dayMin       = 1.0
	statsOptions = []*discordgo.ApplicationCommandOption{
		userOption("player", "Player to update", true),
		countOption("wins", "Number of wins to add"),
		countOption("losses", "Number of losses to add"),
		countOption("draws", "Number of draws to add"),
		countOption("kills", "Number of kills to add"),
		countOption("deaths", "Number of deaths to add"),
	}
)

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func intOption(name, description string, minValue *float64, maxValue float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    true,
		MinValue:    minValue,
		MaxValue:    maxValue,
	}
}

func countOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		MinValue:    &zero,
	}
}

// Definitions returns the slash commands the bot registers
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandServerInfo,
			Description: "Show BombSquad server information",
		},
		{
			Name:                     CommandRegisterPlayer,
			Description:              "Register a new player (Admin only)",
			DefaultMemberPermissions: &adminOnly,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("player", "The player to register", true)},
		},
		{
			Name:                     CommandRemovePlayer,
			Description:              "Remove a player from tournament (Admin only)",
			DefaultMemberPermissions: &adminOnly,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("player", "The player to remove", true)},
		},
		{
			Name:        CommandScheduleMatch,
			Description: "Schedule a match between two players",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("player1", "First player", true),
				userOption("player2", "Second player", true),
				intOption("day", "Day (DD)", &dayMin, 31),
				intOption("hour", "Hour (HH)", &zero, 23),
				intOption("minute", "Minute (MM)", &zero, 59),
			},
		},
		{
			Name:        CommandPlayerStats,
			Description: "Show detailed player statistics",
			Options:     []*discordgo.ApplicationCommandOption{userOption("player", "The player to show stats for (optional)", false)},
		},
		{
			Name:        CommandLeaderboard,
			Description: "Show tournament leaderboard",
		},
		{
			Name:                     CommandUpdateStats,
			Description:              "Update player match statistics (Admin only)",
			DefaultMemberPermissions: &adminOnly,
			Options:                  statsOptions,
		},
		{
			Name:        CommandAllPlayers,
			Description: "Show all registered tournament players",
		},
		{
			Name:        CommandHelp,
			Description: "Show all available commands",
		},
	}
}
