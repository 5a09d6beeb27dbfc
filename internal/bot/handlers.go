package bot

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"giveaway-bot/internal/events"
	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/locale"
	"giveaway-bot/internal/modules/audit"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	maxListed        = 20
	defaultStatsDays = 30
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx := context.Background()
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		data := interaction.ApplicationCommandData()
		switch data.Name {
		case "giveaway":
			b.handleGiveawayCommand(ctx, interaction, data.Options)
		case "language":
			b.handleLanguageCommand(ctx, interaction, data.Options)
		}
	case discordgo.InteractionMessageComponent:
		if interaction.MessageComponentData().CustomID == joinButtonID {
			b.handleJoin(ctx, interaction)
		}
	}
}

func (b *Bot) handleGiveawayCommand(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if interaction.GuildID == "" {
		b.respond(interaction, b.locale.Resolve("errors.guild_only", locale.Context{Locale: string(interaction.Locale)}, nil))
		return
	}
	if len(options) == 0 {
		return
	}

	settings := b.guildSettings(ctx, interaction.GuildID)
	lc := locale.Context{Locale: settings.Language}
	user := interactionUser(interaction)
	sub := options[0]
	args := optionMap(sub.Options)

	if sub.Name != "list" && !b.isOwner(user.ID) && !canManage(interaction.Member) {
		b.respond(interaction, b.locale.Resolve("errors.permission", lc, nil))
		return
	}

	switch sub.Name {
	case "start":
		winners := 1
		if opt, ok := args["winners"]; ok {
			winners = int(opt.IntValue())
		}
		req := giveaway.StartRequest{
			GuildID:     interaction.GuildID,
			ChannelID:   interaction.ChannelID,
			AuthorID:    user.ID,
			Duration:    stringOption(args, "duration"),
			WinnerCount: winners,
			Prize:       stringOption(args, "prize"),
		}
		if err := b.deferResponse(interaction); err != nil {
			b.logger.Debug("defer response failed", zap.Error(err))
			return
		}
		b.editResponse(interaction, b.startGiveaway(ctx, req, settings))
	case "end":
		if err := b.deferResponse(interaction); err != nil {
			b.logger.Debug("defer response failed", zap.Error(err))
			return
		}
		b.editResponse(interaction, b.endGiveaway(ctx, interaction.GuildID, user.ID, stringOption(args, "message_id"), lc))
	case "list":
		b.respond(interaction, b.listGiveaways(interaction.GuildID, lc))
	case "stats":
		days := defaultStatsDays
		if opt, ok := args["days"]; ok && opt.IntValue() > 0 {
			days = int(opt.IntValue())
		}
		b.respond(interaction, b.stats(ctx, interaction.GuildID, days, lc))
	}
}

func (b *Bot) handleLanguageCommand(ctx context.Context, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if interaction.GuildID == "" {
		b.respond(interaction, b.locale.Resolve("errors.guild_only", locale.Context{Locale: string(interaction.Locale)}, nil))
		return
	}
	settings := b.guildSettings(ctx, interaction.GuildID)
	lc := locale.Context{Locale: settings.Language}
	user := interactionUser(interaction)
	if !b.isOwner(user.ID) && !canManage(interaction.Member) {
		b.respond(interaction, b.locale.Resolve("errors.permission", lc, nil))
		return
	}

	value := strings.ToLower(strings.TrimSpace(stringOption(optionMap(options), "value")))
	if !b.locale.Supports(value) {
		b.respond(interaction, b.locale.Resolve("language.unsupported", lc, locale.Vars{
			"language":  value,
			"available": strings.Join(b.locale.Languages(), ", "),
		}))
		return
	}

	settings.Language = value
	if err := b.store.UpsertGuildSettings(ctx, settings); err != nil {
		b.logger.Error("language update failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respond(interaction, b.locale.Resolve("errors.generic", lc, nil))
		return
	}
	if b.audit != nil {
		_ = b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, user.ID, "language_updated", "language="+value)
	}
	b.respond(interaction, b.locale.Resolve("language.updated", locale.Context{Locale: value}, locale.Vars{"language": value}))
}

func (b *Bot) handleJoin(ctx context.Context, interaction *discordgo.InteractionCreate) {
	user := interactionUser(interaction)
	if user == nil || user.Bot || b.isSelf(user.ID) || interaction.Message == nil {
		return
	}
	lc := locale.Context{Locale: b.language(ctx, interaction.GuildID)}

	if !b.antispam.HandleEntry(ctx, interaction.GuildID, user.ID, time.Now()) {
		b.respond(interaction, b.locale.Resolve("giveaway.enter.slow_down", lc, nil))
		return
	}

	res, err := b.giveaways.Enter(ctx, interaction.Message.ID, user.ID)
	key := entryKey(err)
	if key == "giveaway.enter.failed" {
		b.logger.Warn("giveaway entry failed", zap.String("message_id", interaction.Message.ID), zap.String("user_id", user.ID), zap.Error(err))
	}
	b.respond(interaction, b.locale.Resolve(key, lc, giveawayVars(res.Giveaway, b.cfg.Giveaway.Emoji)))
	if err == nil {
		b.refresh(ctx, interaction.Message.ID)
	}
}

// entryKey maps an Enter outcome to its response template.
func entryKey(err error) string {
	switch {
	case err == nil:
		return "giveaway.enter.success"
	case errors.Is(err, giveaway.ErrAlreadyEntered):
		return "giveaway.enter.already"
	case errors.Is(err, giveaway.ErrNotFound):
		return "giveaway.enter.not_found"
	case errors.Is(err, giveaway.ErrIneligible):
		return "giveaway.enter.ineligible"
	default:
		return "giveaway.enter.failed"
	}
}

func (b *Bot) onReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.MessageReaction == nil || !b.isGiveawayEmoji(&event.Emoji) || b.isSelf(event.UserID) {
		return
	}
	if event.Member != nil && event.Member.User != nil && event.Member.User.Bot {
		return
	}
	g, ok := b.giveaways.Get(event.MessageID)
	if !ok {
		return
	}
	ctx := context.Background()
	if !b.antispam.HandleEntry(ctx, event.GuildID, event.UserID, time.Now()) {
		// A reaction stays only while it stands for an entry.
		if !slices.Contains(g.Entered, event.UserID) {
			b.withdrawReaction(event.MessageReaction)
		}
		return
	}
	_, err := b.giveaways.Enter(ctx, event.MessageID, event.UserID)
	if err != nil {
		if entryKey(err) == "giveaway.enter.failed" {
			b.logger.Warn("reaction entry failed", zap.String("message_id", event.MessageID), zap.String("user_id", event.UserID), zap.Error(err))
		}
		if !errors.Is(err, giveaway.ErrAlreadyEntered) {
			b.withdrawReaction(event.MessageReaction)
		}
		return
	}
	b.refresh(ctx, event.MessageID)
}

func (b *Bot) withdrawReaction(reaction *discordgo.MessageReaction) {
	if err := b.api.RemoveReaction(reaction.ChannelID, reaction.MessageID, reaction.Emoji.APIName(), reaction.UserID); err != nil {
		b.logger.Debug("remove refused reaction failed", zap.String("message_id", reaction.MessageID), zap.String("user_id", reaction.UserID), zap.Error(err))
	}
}

func (b *Bot) onReactionRemove(session *discordgo.Session, event *discordgo.MessageReactionRemove) {
	if event.MessageReaction == nil || !b.isGiveawayEmoji(&event.Emoji) {
		return
	}
	if _, ok := b.giveaways.Get(event.MessageID); !ok {
		return
	}

	ctx := context.Background()
	_, err := b.giveaways.Leave(ctx, event.MessageID, event.UserID)
	if err != nil {
		if !errors.Is(err, giveaway.ErrNotEntered) && !errors.Is(err, giveaway.ErrNotFound) {
			b.logger.Warn("reaction leave failed", zap.String("message_id", event.MessageID), zap.String("user_id", event.UserID), zap.Error(err))
		}
		return
	}
	b.refresh(ctx, event.MessageID)
}

func (b *Bot) isGiveawayEmoji(emoji *discordgo.Emoji) bool {
	return b.cfg.Giveaway.Emoji != "" && emoji.APIName() == b.cfg.Giveaway.Emoji
}

func (b *Bot) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if event.Message == nil {
		return
	}
	if _, ok := b.giveaways.Get(event.ID); ok {
		b.discard(context.Background(), event.ID)
	}
}

func (b *Bot) onMessageDeleteBulk(session *discordgo.Session, event *discordgo.MessageDeleteBulk) {
	ctx := context.Background()
	for _, id := range event.Messages {
		if _, ok := b.giveaways.Get(id); ok {
			b.discard(ctx, id)
		}
	}
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}

	ctx := context.Background()
	settings := b.guildSettings(ctx, msg.GuildID)
	fields, ok := splitCommand(msg.Content, settings.Prefix)
	if !ok || fields[0] != "giveaway" {
		return
	}
	lc := locale.Context{Locale: settings.Language}

	sub := ""
	if len(fields) > 1 {
		sub = strings.ToLower(fields[1])
	}
	if sub != "list" && !b.isOwner(msg.Author.ID) && !b.memberCanManage(msg.Author.ID, msg.ChannelID) {
		b.reply(msg, b.locale.Resolve("errors.permission", lc, nil))
		return
	}

	switch sub {
	case "start":
		duration, winners, prize, err := parseStartArgs(fields[2:])
		if err != nil {
			b.reply(msg, b.usage(err.Error(), settings))
			return
		}
		b.reply(msg, b.startGiveaway(ctx, giveaway.StartRequest{
			GuildID:     msg.GuildID,
			ChannelID:   msg.ChannelID,
			AuthorID:    msg.Author.ID,
			Duration:    duration,
			WinnerCount: winners,
			Prize:       prize,
		}, settings))
	case "end":
		if len(fields) < 3 {
			b.reply(msg, b.locale.Resolve("giveaway.end.invalid_id", lc, locale.Vars{"message_id": ""}))
			return
		}
		b.reply(msg, b.endGiveaway(ctx, msg.GuildID, msg.Author.ID, fields[2], lc))
	case "list":
		b.reply(msg, b.listGiveaways(msg.GuildID, lc))
	default:
		b.reply(msg, b.usage("", settings))
	}
}

func (b *Bot) memberCanManage(userID, channelID string) bool {
	perms, err := b.api.ChannelPermissions(userID, channelID)
	if err != nil {
		b.logger.Debug("permission lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return perms&(discordgo.PermissionManageGuild|discordgo.PermissionAdministrator) != 0
}

func (b *Bot) startGiveaway(ctx context.Context, req giveaway.StartRequest, settings storage.GuildSettings) locale.Payload {
	lc := locale.Context{Locale: settings.Language}
	g, err := b.giveaways.Start(ctx, req)
	switch {
	case err == nil:
		return b.locale.Resolve("giveaway.start.success", lc, giveawayVars(g, b.cfg.Giveaway.Emoji))
	case errors.Is(err, giveaway.ErrInvalidArgument):
		return b.usage(strings.TrimPrefix(err.Error(), giveaway.ErrInvalidArgument.Error()+": "), settings)
	default:
		b.logger.Warn("giveaway start failed", zap.String("guild_id", req.GuildID), zap.String("channel_id", req.ChannelID), zap.Error(err))
		return b.locale.Resolve("giveaway.start.failed", lc, nil)
	}
}

func (b *Bot) usage(reason string, settings storage.GuildSettings) locale.Payload {
	return b.locale.Resolve("giveaway.start.usage", locale.Context{Locale: settings.Language}, locale.Vars{
		"reason":      reason,
		"prefix":      settings.Prefix,
		"max_winners": b.cfg.Giveaway.MaxWinners,
	})
}

// endGiveaway ends a giveaway on request. Outside its own guild a giveaway is
// only visible to bot owners.
func (b *Bot) endGiveaway(ctx context.Context, guildID, userID, rawID string, lc locale.Context) locale.Payload {
	messageID, err := parseMessageID(rawID)
	if err != nil {
		return b.locale.Resolve("giveaway.end.invalid_id", lc, locale.Vars{"message_id": rawID})
	}
	owner := b.isOwner(userID)
	notFound := b.locale.Resolve("giveaway.end.not_found", lc, locale.Vars{"message_id": messageID})

	if g, ok := b.giveaways.Get(messageID); ok && g.GuildID != guildID && !owner {
		return notFound
	}

	res, err := b.giveaways.Resolve(ctx, messageID, b.endTrigger(userID))
	switch {
	case err == nil && res.DeliveryErr != nil:
		return b.locale.Resolve("giveaway.end.delivery_failed", lc, nil)
	case err == nil:
		return b.locale.Resolve("giveaway.end.done", lc, giveawayVars(res.Giveaway, b.cfg.Giveaway.Emoji))
	case errors.Is(err, giveaway.ErrNotFound):
		if res.Giveaway.Ended && (owner || res.Giveaway.GuildID == guildID) {
			return b.locale.Resolve("giveaway.end.already", lc, giveawayVars(res.Giveaway, b.cfg.Giveaway.Emoji))
		}
		return notFound
	case errors.Is(err, giveaway.ErrClaimed), errors.Is(err, giveaway.ErrPersistence):
		b.logger.Error("manual giveaway end failed", zap.String("message_id", messageID), zap.Error(err))
		return b.locale.Resolve("giveaway.end.failed", lc, nil)
	default:
		b.logger.Error("manual giveaway end failed", zap.String("message_id", messageID), zap.Error(err))
		return b.locale.Resolve("errors.generic", lc, nil)
	}
}

func (b *Bot) listGiveaways(guildID string, lc locale.Context) locale.Payload {
	active := b.giveaways.Active(guildID)
	if len(active) == 0 {
		return b.locale.Resolve("giveaway.list.empty", lc, nil)
	}
	lines := make([]string, 0, min(len(active), maxListed))
	for _, g := range active[:min(len(active), maxListed)] {
		lines = append(lines, b.locale.Text("giveaway.list.item", lc, giveawayVars(g, b.cfg.Giveaway.Emoji)))
	}
	return b.locale.Resolve("giveaway.list.embed", lc, locale.Vars{"list": strings.Join(lines, "\n")})
}

func (b *Bot) stats(ctx context.Context, guildID string, days int, lc locale.Context) locale.Payload {
	since := time.Now().AddDate(0, 0, -days)
	report, err := b.analytics.Report(ctx, guildID, since)
	if err != nil {
		b.logger.Error("giveaway stats failed", zap.String("guild_id", guildID), zap.Error(err))
		return b.locale.Resolve("errors.generic", lc, nil)
	}
	return b.locale.Resolve("giveaway.stats.embed", lc, locale.Vars{
		"since":   timestamp(since, "D"),
		"started": report.Count(string(events.GiveawayStarted)),
		"entered": report.Count(string(events.GiveawayEntered)),
		"left":    report.Count(string(events.GiveawayLeft)),
		"ended":   report.Count(string(events.GiveawayEnded)),
		"audit":   b.audit != nil,
	})
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func stringOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := options[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return opt.StringValue()
	}
	return ""
}
