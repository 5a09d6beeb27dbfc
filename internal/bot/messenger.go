package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"giveaway-bot/internal/giveaway"
	"giveaway-bot/internal/locale"
	"giveaway-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	reactionPage    = 100
	flushTimeout    = 10 * time.Second
	closedRetention = 15 * time.Minute
)

// discordAPI is the slice of the REST client the bot uses.
type discordAPI interface {
	SendMessage(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	EditMessage(edit *discordgo.MessageEdit) error
	DeleteMessage(channelID, messageID string) error
	AddReaction(channelID, messageID, emoji string) error
	RemoveReaction(channelID, messageID, emoji, userID string) error
	ReactionUsers(channelID, messageID, emoji, afterID string) ([]*discordgo.User, error)
	Respond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	EditResponse(interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) error
	ChannelPermissions(userID, channelID string) (int64, error)
}

type sessionAPI struct {
	session *discordgo.Session
}

func (a sessionAPI) SendMessage(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	return a.session.ChannelMessageSendComplex(channelID, msg)
}

func (a sessionAPI) EditMessage(edit *discordgo.MessageEdit) error {
	_, err := a.session.ChannelMessageEditComplex(edit)
	return err
}

func (a sessionAPI) DeleteMessage(channelID, messageID string) error {
	return a.session.ChannelMessageDelete(channelID, messageID)
}

func (a sessionAPI) AddReaction(channelID, messageID, emoji string) error {
	return a.session.MessageReactionAdd(channelID, messageID, emoji)
}

func (a sessionAPI) RemoveReaction(channelID, messageID, emoji, userID string) error {
	return a.session.MessageReactionRemove(channelID, messageID, emoji, userID)
}

func (a sessionAPI) ReactionUsers(channelID, messageID, emoji, afterID string) ([]*discordgo.User, error) {
	return a.session.MessageReactions(channelID, messageID, emoji, reactionPage, "", afterID)
}

func (a sessionAPI) Respond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return a.session.InteractionRespond(interaction, resp)
}

func (a sessionAPI) EditResponse(interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := a.session.InteractionResponseEdit(interaction, edit)
	return err
}

func (a sessionAPI) ChannelPermissions(userID, channelID string) (int64, error) {
	return a.session.UserChannelPermissions(userID, channelID)
}

// liveGiveaways is what a trailing counter refresh reads from the manager.
type liveGiveaways interface {
	Get(messageID string) (storage.Giveaway, bool)
	Discard(ctx context.Context, messageID string) (giveaway.ResolveResult, error)
}

// messageState serialises edits of one giveaway message.
type messageState struct {
	mu      sync.Mutex
	closed  bool
	pending bool
	armed   bool
	latest  storage.Giveaway
}

// Messenger renders giveaway messages through the locale catalogs and sends
// them to Discord. Sends share one limiter so a burst of expiring giveaways
// does not trip the REST rate limits.
type Messenger struct {
	api      discordAPI
	locale   *locale.Localizer
	language func(ctx context.Context, guildID string) string
	emoji    string
	limiter  *rate.Limiter
	trailing time.Duration
	live     liveGiveaways
	logger   *zap.Logger

	mu       sync.Mutex
	messages map[string]*messageState
	closedAt map[string]time.Time
}

var _ giveaway.Messenger = (*Messenger)(nil)

func newMessenger(api discordAPI, loc *locale.Localizer, language func(context.Context, string) string, emoji string, perSecond int, logger *zap.Logger) *Messenger {
	limit := rate.Inf
	trailing := time.Second
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		trailing = time.Second / time.Duration(perSecond)
	}
	return &Messenger{
		api:      api,
		locale:   loc,
		language: language,
		emoji:    emoji,
		limiter:  rate.NewLimiter(limit, 1),
		trailing: trailing,
		logger:   logger,
		messages: make(map[string]*messageState),
		closedAt: make(map[string]time.Time),
	}
}

func (m *Messenger) PostGiveaway(ctx context.Context, g storage.Giveaway) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	lc := m.context(ctx, g.GuildID)
	payload := m.locale.Resolve("giveaway.embed.active", lc, giveawayVars(g, m.emoji))
	payload.Components = joinComponents(m.locale.Text("giveaway.button.join", lc, nil), m.emoji, false)

	msg, err := m.api.SendMessage(g.ChannelID, payload.MessageSend(nil))
	if err != nil {
		return "", fmt.Errorf("send giveaway: %w", err)
	}
	if m.emoji != "" {
		if err := m.api.AddReaction(g.ChannelID, msg.ID, m.emoji); err != nil {
			m.logger.Debug("add giveaway reaction failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return msg.ID, nil
}

// WithdrawGiveaway deletes a posted message whose giveaway was never saved.
func (m *Messenger) WithdrawGiveaway(ctx context.Context, g storage.Giveaway) error {
	m.closeMessage(g.MessageID)
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := m.api.DeleteMessage(g.ChannelID, g.MessageID); err != nil {
		return fmt.Errorf("delete giveaway: %w", err)
	}
	return nil
}

// AnnounceResult closes the announcement and replies to it with the winners.
// Only the reply decides success; the edit is cosmetic.
func (m *Messenger) AnnounceResult(ctx context.Context, g storage.Giveaway, trigger giveaway.Trigger) error {
	lc := m.context(ctx, g.GuildID)
	vars := giveawayVars(g, m.emoji)

	st := m.message(g.MessageID)
	st.mu.Lock()
	st.closed = true
	st.pending = false
	m.markClosed(g.MessageID)
	if err := m.limiter.Wait(ctx); err != nil {
		st.mu.Unlock()
		return err
	}
	ended := m.locale.Resolve("giveaway.embed.ended", lc, vars)
	ended.Components = joinComponents(m.locale.Text("giveaway.button.join", lc, nil), m.emoji, true)
	if err := m.api.EditMessage(ended.MessageEdit(g.ChannelID, g.MessageID)); err != nil {
		m.logger.Debug("close giveaway message failed",
			zap.String("message_id", g.MessageID),
			zap.String("trigger", trigger.Reason()),
			zap.Error(err),
		)
	}
	st.mu.Unlock()

	key := "giveaway.end.success"
	if len(g.WonBy) == 0 {
		key = "giveaway.end.no_winners"
	}
	reply := m.locale.Resolve(key, lc, vars)
	reply.Components = linkComponents(
		m.locale.Text("giveaway.button.original", lc, nil),
		messageLink(g.GuildID, g.ChannelID, g.MessageID),
	)
	ref := &discordgo.MessageReference{MessageID: g.MessageID, ChannelID: g.ChannelID, GuildID: g.GuildID}
	if _, err := m.api.SendMessage(g.ChannelID, reply.MessageSend(ref)); err != nil {
		return fmt.Errorf("send result: %w", err)
	}
	return nil
}

// RefreshEntries re-renders the participant counter. It never waits for the
// limiter: updates that find no free token collapse into one trailing edit
// per message. A closed message is left alone.
func (m *Messenger) RefreshEntries(ctx context.Context, g storage.Giveaway) error {
	st := m.message(g.MessageID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	if !m.limiter.Allow() {
		st.pending = true
		st.latest = g
		if !st.armed {
			st.armed = true
			time.AfterFunc(m.trailing, func() { m.flush(g.MessageID) })
		}
		return nil
	}
	st.pending = false
	return m.editActive(ctx, g)
}

// flush sends the trailing counter edit for messageID.
func (m *Messenger) flush(messageID string) {
	st := m.message(messageID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.armed = false
	if st.closed || !st.pending {
		return
	}
	st.pending = false
	g := st.latest
	if m.live != nil {
		current, ok := m.live.Get(messageID)
		if !ok {
			return
		}
		g = current
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := m.limiter.Wait(ctx); err != nil {
		m.logger.Debug("trailing refresh dropped", zap.String("message_id", messageID), zap.Error(err))
		return
	}
	err := m.editActive(ctx, g)
	if err == nil {
		return
	}
	m.logger.Debug("trailing refresh failed", zap.String("message_id", messageID), zap.Error(err))
	if isUnknownMessage(err) && m.live != nil {
		st.closed = true
		m.markClosed(messageID)
		if _, err := m.live.Discard(ctx, messageID); err != nil {
			m.logger.Debug("discard giveaway skipped", zap.String("message_id", messageID), zap.Error(err))
		}
	}
}

func (m *Messenger) editActive(ctx context.Context, g storage.Giveaway) error {
	lc := m.context(ctx, g.GuildID)
	payload := m.locale.Resolve("giveaway.embed.active", lc, giveawayVars(g, m.emoji))
	payload.Components = joinComponents(m.locale.Text("giveaway.button.join", lc, nil), m.emoji, false)
	return m.api.EditMessage(payload.MessageEdit(g.ChannelID, g.MessageID))
}

// closeMessage stops any further counter edits of messageID.
func (m *Messenger) closeMessage(messageID string) {
	st := m.message(messageID)
	st.mu.Lock()
	st.closed = true
	st.pending = false
	m.markClosed(messageID)
	st.mu.Unlock()
}

func (m *Messenger) message(messageID string) *messageState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.messages[messageID]
	if st == nil {
		st = &messageState{}
		m.messages[messageID] = st
	}
	return st
}

// markClosed records the close time and forgets messages closed long ago.
func (m *Messenger) markClosed(messageID string) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedAt[messageID] = now
	for id, at := range m.closedAt {
		if now.Sub(at) > closedRetention {
			delete(m.closedAt, id)
			delete(m.messages, id)
		}
	}
}

func (m *Messenger) context(ctx context.Context, guildID string) locale.Context {
	return locale.Context{Locale: m.language(ctx, guildID)}
}

// isUnknownMessage reports whether Discord rejected a call because the
// message or its channel no longer exists.
func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
		return true
	}
	return false
}
