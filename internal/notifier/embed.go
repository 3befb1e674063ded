package notifier

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Embed colours
const (
	ColorBlue   = 0x3498db
	ColorGreen  = 0x2ecc71
	ColorRed    = 0xe74c3c
	ColorGold   = 0xf1c40f
	ColorOrange = 0xe67e22
	ColorPurple = 0x9b59b6
)

const (
	authorName    = "Duel Lords Tournament"
	authorIconURL = "https://cdn.discordapp.com/attachments/placeholder/duel_lords_icon.png"
)

// NewEmbed returns an embed carrying the tournament branding
func NewEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    authorName,
			IconURL: authorIconURL,
		},
	}
}

// AddField appends a field to the embed
func AddField(e *discordgo.MessageEmbed, name, value string, inline bool) {
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name:   name,
		Value:  value,
		Inline: inline,
	})
}

// Timestamp renders t as a Discord timestamp tag, e.g. <t:1700000000:F>
func Timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// Mention renders a user mention
func Mention(userID string) string {
	return "<@" + userID + ">"
}
