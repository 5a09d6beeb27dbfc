package bot

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"giveaway-bot/internal/analytics"
	"giveaway-bot/internal/config"
	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/locale"
	"giveaway-bot/internal/modules/antispam"
	"giveaway-bot/internal/modules/audit"
	"giveaway-bot/internal/status"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// SettingsStore holds per-guild language and prefix.
type SettingsStore interface {
	GetGuildSettings(ctx context.Context, guildID string, defaults storage.GuildSettings) (storage.GuildSettings, error)
	UpsertGuildSettings(ctx context.Context, settings storage.GuildSettings) error
}

// Giveaways is the lifecycle surface the Discord handlers drive.
type Giveaways interface {
	Start(ctx context.Context, req giveaway.StartRequest) (storage.Giveaway, error)
	Hydrate(ctx context.Context) error
	Enter(ctx context.Context, messageID, userID string) (giveaway.EntryResult, error)
	Leave(ctx context.Context, messageID, userID string) (giveaway.EntryResult, error)
	Resolve(ctx context.Context, messageID string, trigger giveaway.Trigger) (giveaway.ResolveResult, error)
	Discard(ctx context.Context, messageID string) (giveaway.ResolveResult, error)
	Get(messageID string) (storage.Giveaway, bool)
	Active(guildID string) []storage.Giveaway
	SetSelfID(id string)
}

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     SettingsStore
	locale    *locale.Localizer
	audit     *audit.Logger
	analytics *analytics.Service
	session   *discordgo.Session
	api       discordAPI
	messenger *Messenger
	giveaways Giveaways
	antispam  *antispam.Module
	selfID    atomic.Value

	hydrateOnce sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *zap.Logger, store SettingsStore, loc *locale.Localizer, auditLogger *audit.Logger, analyticsEngine *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		locale:    loc,
		audit:     auditLogger,
		analytics: analyticsEngine,
		session:   session,
		api:       sessionAPI{session: session},
		ctx:       ctx,
		cancel:    cancel,
	}
	var auditor antispam.Auditor
	if auditLogger != nil {
		auditor = auditLogger
	}
	b.antispam = antispam.New(cfg.Giveaway.EntryBurstLimit, time.Duration(cfg.Giveaway.EntryBurstSeconds)*time.Second, auditor)
	b.messenger = newMessenger(b.api, loc, b.language, cfg.Giveaway.Emoji, cfg.Giveaway.AnnouncePerSecond, logger)
	return b, nil
}

// Messenger is the Discord side of the giveaway manager.
func (b *Bot) Messenger() *Messenger {
	return b.messenger
}

// SetGiveaways must be called before Start.
func (b *Bot) SetGiveaways(giveaways Giveaways) {
	b.giveaways = giveaways
	b.messenger.live = giveaways
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onMessageDeleteBulk)
	b.session.AddHandler(b.onReactionAdd)
	b.session.AddHandler(b.onReactionRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.startLoops()
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("background loops did not stop in time")
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
	b.selfID.Store(event.User.ID)
	b.giveaways.SetSelfID(event.User.ID)

	b.hydrateOnce.Do(func() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.giveaways.Hydrate(b.ctx); err != nil {
				b.logger.Error("giveaway hydration failed", zap.Error(err))
				return
			}
			b.reconcileReactions(b.ctx)
		}()
	})
}

func (b *Bot) isSelf(userID string) bool {
	self, _ := b.selfID.Load().(string)
	return self != "" && self == userID
}

func (b *Bot) startLoops() {
	if b.cfg.Status.Enabled {
		interval := time.Duration(b.cfg.Status.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		rotator := status.NewRotator(b.session, b.guildCount, statusCommands, b.renderStatus, interval, b.logger)
		b.goLoop(rotator.Run)
	}
	if b.audit != nil && b.cfg.RetentionDays > 0 {
		b.goLoop(func(ctx context.Context) {
			b.audit.RunRetention(ctx, b.cfg.RetentionDays, 24*time.Hour)
		})
	}
	b.goLoop(b.sweepBursts)
}

func (b *Bot) goLoop(run func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		run(b.ctx)
	}()
}

func (b *Bot) sweepBursts(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.antispam.Sweep(now)
		}
	}
}

func (b *Bot) guildCount() int {
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	return len(b.session.State.Guilds)
}

func (b *Bot) renderStatus(guilds int, command string) string {
	return b.locale.Text("status.rotation", locale.Context{Locale: b.cfg.DefaultLanguage}, locale.Vars{
		"guilds":  guilds,
		"prefix":  b.cfg.Prefix,
		"command": command,
	})
}

func (b *Bot) guildSettings(ctx context.Context, guildID string) storage.GuildSettings {
	defaults := storage.GuildSettings{
		GuildID:  guildID,
		Language: b.cfg.DefaultLanguage,
		Prefix:   b.cfg.Prefix,
	}
	if guildID == "" {
		return defaults
	}

	settings, err := b.store.GetGuildSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("guild settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	if settings.Language == "" {
		settings.Language = defaults.Language
	}
	if settings.Prefix == "" {
		settings.Prefix = defaults.Prefix
	}
	return settings
}

func (b *Bot) language(ctx context.Context, guildID string) string {
	return b.guildSettings(ctx, guildID).Language
}

func (b *Bot) isOwner(userID string) bool {
	return slices.Contains(b.cfg.OwnerIDs, userID)
}

// endTrigger picks the trigger recorded for a manual end.
func (b *Bot) endTrigger(userID string) giveaway.Trigger {
	if b.isOwner(userID) {
		return giveaway.AdminForceTrigger{RequesterID: userID}
	}
	return giveaway.CommandTrigger{RequesterID: userID}
}

// refresh re-renders the counter from the live state after an entry change.
// Giveaways that already ended are skipped, and a message that is gone ends
// the giveaway without winners.
func (b *Bot) refresh(ctx context.Context, messageID string) {
	g, ok := b.giveaways.Get(messageID)
	if !ok {
		return
	}
	err := b.messenger.RefreshEntries(ctx, g)
	if err == nil {
		return
	}
	b.logger.Debug("refresh giveaway counter failed", zap.String("message_id", messageID), zap.Error(err))
	if isUnknownMessage(err) {
		b.discard(ctx, messageID)
	}
}

func (b *Bot) discard(ctx context.Context, messageID string) {
	b.messenger.closeMessage(messageID)
	if _, err := b.giveaways.Discard(ctx, messageID); err != nil {
		b.logger.Debug("discard giveaway skipped", zap.String("message_id", messageID), zap.Error(err))
	}
}

// reconcileReactions enters members who reacted while the bot was offline.
func (b *Bot) reconcileReactions(ctx context.Context) {
	if b.cfg.Giveaway.Emoji == "" {
		return
	}
	for _, g := range b.giveaways.Active("") {
		if ctx.Err() != nil {
			return
		}
		added, err := b.collectReactions(ctx, g)
		if err != nil {
			b.logger.Debug("reaction reconcile failed", zap.String("message_id", g.MessageID), zap.Error(err))
			if isUnknownMessage(err) {
				b.discard(ctx, g.MessageID)
			}
			continue
		}
		if added > 0 {
			b.logger.Info("reaction entries reconciled", zap.String("message_id", g.MessageID), zap.Int("added", added))
			b.refresh(ctx, g.MessageID)
		}
	}
}

func (b *Bot) collectReactions(ctx context.Context, g storage.Giveaway) (int, error) {
	added := 0
	after := ""
	for {
		users, err := b.api.ReactionUsers(g.ChannelID, g.MessageID, b.cfg.Giveaway.Emoji, after)
		if err != nil {
			return added, err
		}
		for _, user := range users {
			if user == nil || user.Bot || b.isSelf(user.ID) {
				continue
			}
			_, err := b.giveaways.Enter(ctx, g.MessageID, user.ID)
			switch {
			case err == nil:
				added++
			case errors.Is(err, giveaway.ErrNotFound):
				return added, nil
			case errors.Is(err, giveaway.ErrAlreadyEntered), errors.Is(err, giveaway.ErrIneligible):
			default:
				return added, err
			}
		}
		if len(users) < reactionPage {
			return added, nil
		}
		after = users[len(users)-1].ID
	}
}

func (b *Bot) respond(interaction *discordgo.InteractionCreate, payload locale.Payload) {
	err := b.api.Respond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: payload.InteractionData(),
	})
	if err != nil {
		b.logger.Debug("interaction response failed", zap.String("interaction_id", interaction.ID), zap.Error(err))
	}
}

// deferResponse acknowledges an interaction whose work may outlast the
// three second response window.
func (b *Bot) deferResponse(interaction *discordgo.InteractionCreate) error {
	return b.api.Respond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (b *Bot) editResponse(interaction *discordgo.InteractionCreate, payload locale.Payload) {
	content := payload.Content
	embeds := payload.Embeds
	err := b.api.EditResponse(interaction.Interaction, &discordgo.WebhookEdit{
		Content:         &content,
		Embeds:          &embeds,
		AllowedMentions: payload.AllowedMentions,
	})
	if err != nil {
		b.logger.Debug("interaction edit failed", zap.String("interaction_id", interaction.ID), zap.Error(err))
	}
}

func (b *Bot) reply(msg *discordgo.MessageCreate, payload locale.Payload) {
	payload.Reply = true
	ref := &discordgo.MessageReference{MessageID: msg.ID, ChannelID: msg.ChannelID, GuildID: msg.GuildID}
	if _, err := b.api.SendMessage(msg.ChannelID, payload.MessageSend(ref)); err != nil {
		b.logger.Debug("command reply failed", zap.String("channel_id", msg.ChannelID), zap.Error(err))
	}
}

func interactionUser(interaction *discordgo.InteractionCreate) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

func canManage(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	return member.Permissions&(discordgo.PermissionManageGuild|discordgo.PermissionAdministrator) != 0
}
