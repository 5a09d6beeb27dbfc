package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"giveaway-bot/internal/config"
	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/locale"
	"giveaway-bot/internal/modules/antispam"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	liveID  = "1180000000000000001"
	otherID = "1180000000000000002"
)

type fakeGiveaways struct {
	mu         sync.Mutex
	live       map[string]storage.Giveaway
	enterErr   error
	resolveRes giveaway.ResolveResult
	resolveErr error
	entered    []string
	resolved   []string
	discarded  []string
}

func newFakeGiveaways(gs ...storage.Giveaway) *fakeGiveaways {
	f := &fakeGiveaways{live: make(map[string]storage.Giveaway)}
	for _, g := range gs {
		f.live[g.MessageID] = g
	}
	return f
}

func (f *fakeGiveaways) Start(_ context.Context, req giveaway.StartRequest) (storage.Giveaway, error) {
	return storage.Giveaway{GuildID: req.GuildID, ChannelID: req.ChannelID, MessageID: liveID, Prize: req.Prize}, nil
}

func (f *fakeGiveaways) Hydrate(context.Context) error { return nil }

func (f *fakeGiveaways) Enter(_ context.Context, messageID, userID string) (giveaway.EntryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enterErr != nil {
		return giveaway.EntryResult{}, f.enterErr
	}
	g, ok := f.live[messageID]
	if !ok {
		return giveaway.EntryResult{}, giveaway.ErrNotFound
	}
	f.entered = append(f.entered, userID)
	g.Entered = append(g.Entered, userID)
	f.live[messageID] = g
	return giveaway.EntryResult{Giveaway: g, Participants: len(g.Entered)}, nil
}

func (f *fakeGiveaways) Leave(_ context.Context, messageID, _ string) (giveaway.EntryResult, error) {
	return giveaway.EntryResult{}, giveaway.ErrNotEntered
}

func (f *fakeGiveaways) Resolve(_ context.Context, messageID string, _ giveaway.Trigger) (giveaway.ResolveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, messageID)
	return f.resolveRes, f.resolveErr
}

func (f *fakeGiveaways) Discard(_ context.Context, messageID string) (giveaway.ResolveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, messageID)
	delete(f.live, messageID)
	return giveaway.ResolveResult{}, nil
}

func (f *fakeGiveaways) Get(messageID string) (storage.Giveaway, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.live[messageID]
	return g, ok
}

func (f *fakeGiveaways) Active(string) []storage.Giveaway {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Giveaway, 0, len(f.live))
	for _, g := range f.live {
		out = append(out, g)
	}
	return out
}

func (f *fakeGiveaways) SetSelfID(string) {}

type fakeSettings struct{}

func (fakeSettings) GetGuildSettings(_ context.Context, _ string, defaults storage.GuildSettings) (storage.GuildSettings, error) {
	return defaults, nil
}

func (fakeSettings) UpsertGuildSettings(context.Context, storage.GuildSettings) error { return nil }

func newTestBot(t *testing.T, api *fakeAPI, giveaways *fakeGiveaways, burstLimit int) *Bot {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OwnerIDs = []string{"owner"}
	b := &Bot{
		cfg:      cfg,
		logger:   zap.NewNop(),
		store:    fakeSettings{},
		locale:   testLocalizer(t),
		api:      api,
		antispam: antispam.New(burstLimit, time.Minute, nil),
	}
	b.messenger = newMessenger(api, b.locale, b.language, cfg.Giveaway.Emoji, 0, zap.NewNop())
	b.SetGiveaways(giveaways)
	b.selfID.Store("bot")
	return b
}

func liveGiveaway(guildID string) storage.Giveaway {
	return storage.Giveaway{
		GuildID: guildID, ChannelID: "c1", MessageID: liveID, AuthorID: "host",
		Prize: "Nitro", WinnerCount: 1, EndsAt: time.Now().Add(time.Hour),
	}
}

func joinClick(userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "i-" + userID,
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g1",
		Message: &discordgo.Message{ID: liveID, ChannelID: "c1"},
		Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: joinButtonID},
	}}
}

func reactionAdd(userID, emoji string, isBot bool) *discordgo.MessageReactionAdd {
	return &discordgo.MessageReactionAdd{
		MessageReaction: &discordgo.MessageReaction{
			UserID: userID, MessageID: liveID, ChannelID: "c1", GuildID: "g1",
			Emoji: discordgo.Emoji{Name: emoji},
		},
		Member: &discordgo.Member{User: &discordgo.User{ID: userID, Bot: isBot}},
	}
}

func enText(b *Bot, key string, vars locale.Vars) string {
	return b.locale.Resolve(key, locale.Context{Locale: "en"}, vars).Content
}

func TestJoinButtonEntersAndRefreshes(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 5)

	b.onInteractionCreate(nil, joinClick("u1"))

	assert.Equal(t, []string{"u1"}, gws.entered)
	require.Len(t, api.responses, 1)
	assert.Contains(t, api.responses[0].Data.Content, "Nitro")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, api.responses[0].Data.Flags)
	require.Len(t, api.edits, 1)
	assert.Equal(t, "1 participants", (*api.edits[0].Embeds)[0].Footer.Text)
}

func TestJoinButtonThrottled(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 1)

	b.onInteractionCreate(nil, joinClick("u1"))
	b.onInteractionCreate(nil, joinClick("u1"))

	assert.Equal(t, []string{"u1"}, gws.entered)
	require.Len(t, api.responses, 2)
	assert.Equal(t, enText(b, "giveaway.enter.slow_down", nil), api.responses[1].Data.Content)
}

func TestJoinButtonIgnoresSelf(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 5)

	b.onInteractionCreate(nil, joinClick("bot"))
	assert.Empty(t, gws.entered)
	assert.Empty(t, api.responses)
}

func TestReactionEntryFilters(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 5)

	b.onReactionAdd(nil, reactionAdd("helper", "🎉", true))
	b.onReactionAdd(nil, reactionAdd("bot", "🎉", false))
	b.onReactionAdd(nil, reactionAdd("u1", "👍", false))
	assert.Empty(t, gws.entered)

	b.onReactionAdd(nil, reactionAdd("u1", "🎉", false))
	assert.Equal(t, []string{"u1"}, gws.entered)
	assert.Len(t, api.edits, 1)
	assert.Empty(t, api.removed)
}

func TestRefusedReactionIsRemoved(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 1)

	// Burst spent on the button, then a reaction from someone not entered.
	b.onInteractionCreate(nil, joinClick("u2"))
	b.antispam.HandleEntry(context.Background(), "g1", "u1", time.Now())
	b.onReactionAdd(nil, reactionAdd("u1", "🎉", false))
	assert.Equal(t, []string{"u1"}, api.removed)

	// An entered member keeps the reaction even when throttled.
	b.onReactionAdd(nil, reactionAdd("u2", "🎉", false))
	assert.Equal(t, []string{"u1"}, api.removed)
	assert.Equal(t, []string{"u2"}, gws.entered)
}

func TestRefreshSkipsEndedGiveaway(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(t, api, newFakeGiveaways(), 5)

	b.refresh(context.Background(), liveID)
	assert.Empty(t, api.edits)
}

func TestRefreshDiscardsUnknownMessage(t *testing.T) {
	api := &fakeAPI{editErr: &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage}}}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 5)

	b.refresh(context.Background(), liveID)
	assert.Equal(t, []string{liveID}, gws.discarded)
}

func TestMessageDeleteDiscardsGiveaway(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 5)

	b.onMessageDelete(nil, &discordgo.MessageDelete{Message: &discordgo.Message{ID: otherID}})
	assert.Empty(t, gws.discarded)

	b.onMessageDelete(nil, &discordgo.MessageDelete{Message: &discordgo.Message{ID: liveID}})
	assert.Equal(t, []string{liveID}, gws.discarded)
}

func TestEndGiveawayHiddenAcrossGuilds(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g2"))
	b := newTestBot(t, api, gws, 5)
	lc := locale.Context{Locale: "en"}

	payload := b.endGiveaway(context.Background(), "g1", "mod", liveID, lc)
	assert.Equal(t, enText(b, "giveaway.end.not_found", locale.Vars{"message_id": liveID}), payload.Content)
	assert.Empty(t, gws.resolved)

	b.endGiveaway(context.Background(), "g1", "owner", liveID, lc)
	assert.Equal(t, []string{liveID}, gws.resolved)
}

func TestEndGiveawayAlreadyEnded(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways()
	ended := liveGiveaway("g2")
	ended.Ended = true
	ended.WonBy = []string{"u1"}
	gws.resolveRes = giveaway.ResolveResult{Giveaway: ended, Winners: ended.WonBy}
	gws.resolveErr = giveaway.ErrNotFound
	b := newTestBot(t, api, gws, 5)
	lc := locale.Context{Locale: "en"}
	already := enText(b, "giveaway.end.already", giveawayVars(ended, b.cfg.Giveaway.Emoji))

	payload := b.endGiveaway(context.Background(), "g1", "mod", liveID, lc)
	assert.Equal(t, enText(b, "giveaway.end.not_found", locale.Vars{"message_id": liveID}), payload.Content)

	payload = b.endGiveaway(context.Background(), "g2", "mod", liveID, lc)
	assert.Equal(t, already, payload.Content)

	payload = b.endGiveaway(context.Background(), "g1", "owner", liveID, lc)
	assert.Equal(t, already, payload.Content)
}

func TestEndGiveawayClaimedElsewhere(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	gws.resolveErr = giveaway.ErrClaimed
	b := newTestBot(t, api, gws, 5)

	payload := b.endGiveaway(context.Background(), "g1", "mod", liveID, locale.Context{Locale: "en"})
	assert.Equal(t, enText(b, "giveaway.end.failed", nil), payload.Content)
}

func TestEndGiveawayInvalidID(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways()
	b := newTestBot(t, api, gws, 5)

	payload := b.endGiveaway(context.Background(), "g1", "mod", "nope", locale.Context{Locale: "en"})
	assert.Equal(t, enText(b, "giveaway.end.invalid_id", locale.Vars{"message_id": "nope"}), payload.Content)
	assert.Empty(t, gws.resolved)
}

func TestReconcileReactions(t *testing.T) {
	api := &fakeAPI{reactionsBy: []*discordgo.User{
		{ID: "u1"},
		{ID: "helper", Bot: true},
		{ID: "bot"},
		{ID: "u2"},
	}}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 5)

	b.reconcileReactions(context.Background())
	assert.Equal(t, []string{"u1", "u2"}, gws.entered)
	require.Len(t, api.edits, 1)
	assert.Equal(t, "2 participants", (*api.edits[0].Embeds)[0].Footer.Text)
}

func TestPrefixEndRequiresPermission(t *testing.T) {
	api := &fakeAPI{}
	gws := newFakeGiveaways(liveGiveaway("g1"))
	b := newTestBot(t, api, gws, 5)

	msg := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "cmd", ChannelID: "c1", GuildID: "g1",
		Author:  &discordgo.User{ID: "member"},
		Content: "?!giveaway end " + liveID,
	}}
	b.onMessageCreate(nil, msg)
	assert.Empty(t, gws.resolved)
	require.Len(t, api.sent, 1)
	assert.Equal(t, enText(b, "errors.permission", nil), api.sent[0].msg.Content)

	api.perms = discordgo.PermissionManageGuild
	b.onMessageCreate(nil, msg)
	assert.Equal(t, []string{liveID}, gws.resolved)
}

func TestStartReplyMentionsNobody(t *testing.T) {
	b := newTestBot(t, &fakeAPI{}, newFakeGiveaways(), 5)

	payload := b.startGiveaway(context.Background(), giveaway.StartRequest{
		GuildID: "g1", ChannelID: "c1", Duration: "1h", WinnerCount: 1, Prize: "@everyone nitro",
	}, storage.GuildSettings{GuildID: "g1", Language: "en", Prefix: "?!"})

	assert.Contains(t, payload.Content, "@everyone nitro")
	require.NotNil(t, payload.AllowedMentions)
	assert.Empty(t, payload.AllowedMentions.Parse)
}
