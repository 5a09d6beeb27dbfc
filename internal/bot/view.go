package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"giveaway-bot/internal/locale"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
)

const joinButtonID = "join_giveaway"

var errMissingArgs = errors.New("missing arguments")

// giveawayVars exposes a giveaway record to the locale templates.
func giveawayVars(g storage.Giveaway, emoji string) locale.Vars {
	return locale.Vars{
		"prize":            g.Prize,
		"emoji":            emoji,
		"winners":          g.WinnerCount,
		"winner_mentions":  formatMentions(g.WonBy),
		"host":             mention(g.AuthorID),
		"ends_at":          timestamp(g.EndsAt, "f"),
		"ends_at_relative": timestamp(g.EndsAt, "R"),
		"ends_at_iso":      g.EndsAt.UTC().Format(time.RFC3339),
		"participants":     len(g.Entered),
		"channel":          "<#" + g.ChannelID + ">",
		"link":             messageLink(g.GuildID, g.ChannelID, g.MessageID),
		"message_id":       g.MessageID,
	}
}

func mention(userID string) string {
	if userID == "" {
		return ""
	}
	return "<@" + userID + ">"
}

func formatMentions(ids []string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, mention(id))
	}
	return strings.Join(out, ", ")
}

func timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

func messageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func joinComponents(label, emoji string, disabled bool) []discordgo.MessageComponent {
	button := discordgo.Button{
		Label:    label,
		Style:    discordgo.PrimaryButton,
		CustomID: joinButtonID,
		Disabled: disabled,
	}
	if emoji != "" {
		button.Emoji = &discordgo.ComponentEmoji{Name: emoji}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{button}},
	}
}

func linkComponents(label, url string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: label, Style: discordgo.LinkButton, URL: url},
		}},
	}
}

// parseStartArgs reads "<duration> [winners] <prize...>". A second token that
// is not an integer belongs to the prize; integers below one become one.
func parseStartArgs(args []string) (duration string, winners int, prize string, err error) {
	if len(args) < 2 {
		return "", 0, "", errMissingArgs
	}
	duration = args[0]
	rest := args[1:]
	winners = 1
	if n, convErr := strconv.Atoi(rest[0]); convErr == nil {
		winners = max(n, 1)
		rest = rest[1:]
	}
	prize = strings.TrimSpace(strings.Join(rest, " "))
	if prize == "" {
		return "", 0, "", errMissingArgs
	}
	return duration, winners, prize, nil
}

// parseMessageID accepts a raw snowflake or a message link.
func parseMessageID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	id, err := snowflake.Parse(raw)
	if err != nil {
		return "", err
	}
	if id == 0 {
		return "", errors.New("zero snowflake")
	}
	return id.String(), nil
}

// splitCommand strips prefix from content and splits the rest into fields.
func splitCommand(content, prefix string) ([]string, bool) {
	if prefix == "" {
		return nil, false
	}
	rest, ok := strings.CutPrefix(content, prefix)
	if !ok {
		return nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, false
	}
	fields[0] = strings.ToLower(fields[0])
	return fields, true
}
