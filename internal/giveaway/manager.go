package giveaway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"giveaway-bot/internal/events"
	"giveaway-bot/internal/storage"
	"giveaway-bot/internal/utils"

	"go.uber.org/zap"
)

type Options struct {
	MaxWinners     int
	MaxDuration    time.Duration
	ResolveTimeout time.Duration
	RetryDelay     time.Duration
}

type phase int

const (
	phaseActive phase = iota
	phaseResolving
)

// activeGiveaway is the in-memory half of a giveaway. record.Entered is not
// maintained here; participants/order are the live set.
type activeGiveaway struct {
	mu           sync.Mutex
	record       storage.Giveaway
	participants map[string]struct{}
	order        []string
	phase        phase
	timer        Timer
	token        uint64
}

func (a *activeGiveaway) snapshotLocked() storage.Giveaway {
	g := a.record
	g.Entered = slices.Clone(a.order)
	return g
}

type Manager struct {
	store     Store
	messenger Messenger
	logger    *zap.Logger
	clock     Clock
	claimer   Claimer
	publisher events.Publisher
	drawer    drawer
	opts      Options

	mu      sync.Mutex
	selfID  string
	active  map[string]*activeGiveaway
	stopped bool
}

func NewManager(store Store, messenger Messenger, logger *zap.Logger, opts Options) *Manager {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Minute
	}
	return &Manager{
		store:     store,
		messenger: messenger,
		logger:    logger,
		clock:     wallClock{},
		publisher: events.Nop{},
		opts:      opts,
		active:    make(map[string]*activeGiveaway),
	}
}

func (m *Manager) WithClock(clock Clock) {
	m.clock = clock
}

func (m *Manager) WithClaimer(claimer Claimer) {
	m.claimer = claimer
}

func (m *Manager) WithPublisher(publisher events.Publisher) {
	if publisher == nil {
		publisher = events.Nop{}
	}
	m.publisher = publisher
}

// WithRand makes winner selection reproducible.
func (m *Manager) WithRand(rng *rand.Rand) {
	m.drawer.rng = rng
}

// SetSelfID excludes the bot's own user from every active and future giveaway.
func (m *Manager) SetSelfID(id string) {
	m.mu.Lock()
	m.selfID = id
	entries := make([]*activeGiveaway, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		if _, ok := entry.participants[id]; ok {
			delete(entry.participants, id)
			entry.order = slices.DeleteFunc(entry.order, func(u string) bool { return u == id })
		}
		entry.mu.Unlock()
	}
}

func (m *Manager) Start(ctx context.Context, req StartRequest) (storage.Giveaway, error) {
	prize := utils.CleanLinks(req.Prize)
	if prize == "" {
		return storage.Giveaway{}, fmt.Errorf("%w: prize is empty", ErrInvalidArgument)
	}
	if req.WinnerCount < 1 {
		return storage.Giveaway{}, fmt.Errorf("%w: winner count must be at least 1", ErrInvalidArgument)
	}
	if m.opts.MaxWinners > 0 && req.WinnerCount > m.opts.MaxWinners {
		return storage.Giveaway{}, fmt.Errorf("%w: winner count above %d", ErrInvalidArgument, m.opts.MaxWinners)
	}
	duration, err := ParseDuration(req.Duration, m.opts.MaxDuration)
	if err != nil {
		return storage.Giveaway{}, err
	}

	now := m.clock.Now()
	g := storage.Giveaway{
		GuildID:     req.GuildID,
		ChannelID:   req.ChannelID,
		AuthorID:    req.AuthorID,
		Prize:       prize,
		WinnerCount: req.WinnerCount,
		EndsAt:      now.Add(duration),
		CreatedAt:   now,
	}

	messageID, err := m.messenger.PostGiveaway(ctx, g)
	if err != nil {
		return storage.Giveaway{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	g.MessageID = messageID

	if err := m.store.CreateGiveaway(ctx, g); err != nil {
		if wErr := m.messenger.WithdrawGiveaway(ctx, g); wErr != nil {
			m.logger.Warn("withdraw unsaved giveaway failed", zap.String("message_id", g.MessageID), zap.Error(wErr))
		}
		return storage.Giveaway{}, fmt.Errorf("%w: create giveaway: %w", ErrPersistence, err)
	}

	m.register(g, true)
	m.logger.Info("giveaway started",
		zap.String("guild_id", g.GuildID),
		zap.String("message_id", g.MessageID),
		zap.Int("winners", g.WinnerCount),
		zap.Time("ends_at", g.EndsAt),
	)
	m.publish(ctx, m.event(events.GiveawayStarted, g, g.AuthorID))
	return g, nil
}

// Hydrate rebuilds the registry from the store. Overdue giveaways are resolved
// before it returns; the rest get a timer for their remaining time.
func (m *Manager) Hydrate(ctx context.Context) error {
	records, err := m.store.ListActiveGiveaways(ctx)
	if err != nil {
		return fmt.Errorf("%w: list active giveaways: %w", ErrPersistence, err)
	}

	now := m.clock.Now()
	var overdue []string
	scheduled := 0
	for _, rec := range records {
		due := !rec.EndsAt.After(now)
		if !m.register(rec, !due) {
			continue
		}
		if due {
			overdue = append(overdue, rec.MessageID)
			continue
		}
		scheduled++
	}

	failed, deferred := 0, 0
	for _, id := range overdue {
		_, err := m.Resolve(ctx, id, TimerTrigger{})
		switch {
		case err == nil, errors.Is(err, ErrNotFound):
		case errors.Is(err, ErrClaimed):
			deferred++
		default:
			failed++
			m.logger.Error("resolve overdue giveaway failed", zap.String("message_id", id), zap.Error(err))
		}
	}

	m.logger.Info("giveaways hydrated",
		zap.Int("scheduled", scheduled),
		zap.Int("overdue", len(overdue)),
		zap.Int("deferred", deferred),
		zap.Int("failed", failed),
	)
	return nil
}

func (m *Manager) Enter(ctx context.Context, messageID, userID string) (EntryResult, error) {
	if m.isSelf(userID) {
		return EntryResult{}, ErrIneligible
	}
	entry := m.lookup(messageID)
	if entry == nil {
		return EntryResult{}, ErrNotFound
	}

	entry.mu.Lock()
	if entry.phase != phaseActive || !m.clock.Now().Before(entry.record.EndsAt) {
		entry.mu.Unlock()
		return EntryResult{}, ErrNotFound
	}
	if _, ok := entry.participants[userID]; ok {
		result := EntryResult{Giveaway: entry.snapshotLocked(), Participants: len(entry.order)}
		entry.mu.Unlock()
		return result, ErrAlreadyEntered
	}
	if err := m.store.AddEntrant(ctx, messageID, userID); err != nil {
		entry.mu.Unlock()
		return EntryResult{}, fmt.Errorf("%w: add entrant: %w", ErrPersistence, err)
	}
	entry.participants[userID] = struct{}{}
	entry.order = append(entry.order, userID)
	result := EntryResult{Giveaway: entry.snapshotLocked(), Participants: len(entry.order)}
	entry.mu.Unlock()

	m.publish(ctx, m.event(events.GiveawayEntered, result.Giveaway, userID))
	return result, nil
}

func (m *Manager) Leave(ctx context.Context, messageID, userID string) (EntryResult, error) {
	entry := m.lookup(messageID)
	if entry == nil {
		return EntryResult{}, ErrNotFound
	}

	entry.mu.Lock()
	if entry.phase != phaseActive || !m.clock.Now().Before(entry.record.EndsAt) {
		entry.mu.Unlock()
		return EntryResult{}, ErrNotFound
	}
	if _, ok := entry.participants[userID]; !ok {
		result := EntryResult{Giveaway: entry.snapshotLocked(), Participants: len(entry.order)}
		entry.mu.Unlock()
		return result, ErrNotEntered
	}
	if err := m.store.RemoveEntrant(ctx, messageID, userID); err != nil {
		entry.mu.Unlock()
		return EntryResult{}, fmt.Errorf("%w: remove entrant: %w", ErrPersistence, err)
	}
	delete(entry.participants, userID)
	entry.order = slices.DeleteFunc(entry.order, func(u string) bool { return u == userID })
	result := EntryResult{Giveaway: entry.snapshotLocked(), Participants: len(entry.order)}
	entry.mu.Unlock()

	m.publish(ctx, m.event(events.GiveawayLeft, result.Giveaway, userID))
	return result, nil
}

// Resolve is the only path from active to ended, shared by timers, commands
// and forced ends. Concurrent calls for one message commit exactly once; the
// others get ErrNotFound.
func (m *Manager) Resolve(ctx context.Context, messageID string, trigger Trigger) (ResolveResult, error) {
	return m.finish(ctx, messageID, trigger)
}

// Discard ends a giveaway whose announcement message was deleted. The row is
// kept and marked ended with no winners; nothing is announced.
func (m *Manager) Discard(ctx context.Context, messageID string) (ResolveResult, error) {
	return m.finish(ctx, messageID, messageGoneTrigger{})
}

func (m *Manager) finish(ctx context.Context, messageID string, trigger Trigger) (ResolveResult, error) {
	_, gone := trigger.(messageGoneTrigger)
	entry := m.lookup(messageID)
	if entry == nil {
		return m.settled(ctx, messageID)
	}

	entry.mu.Lock()
	if entry.phase != phaseActive {
		entry.mu.Unlock()
		return ResolveResult{}, ErrNotFound
	}
	entry.phase = phaseResolving
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	g := entry.snapshotLocked()
	entry.mu.Unlock()

	if m.claimer != nil {
		claimed, err := m.claimer.Claim(ctx, messageID)
		if err != nil {
			m.revert(entry)
			return ResolveResult{}, fmt.Errorf("%w: claim resolution: %w", ErrPersistence, err)
		}
		if !claimed {
			return m.claimedElsewhere(ctx, messageID, entry)
		}
	}

	winners := []string{}
	if !gone {
		winners = m.drawer.draw(g.Entered, g.WinnerCount)
	}
	if err := m.store.EndGiveaway(ctx, messageID, winners); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.remove(messageID, entry)
			return m.settled(ctx, messageID)
		}
		m.revert(entry)
		if m.claimer != nil {
			if relErr := m.claimer.Release(ctx, messageID); relErr != nil {
				m.logger.Warn("release resolution claim failed", zap.String("message_id", messageID), zap.Error(relErr))
			}
		}
		return ResolveResult{}, fmt.Errorf("%w: end giveaway: %w", ErrPersistence, err)
	}
	m.remove(messageID, entry)

	g.Ended = true
	g.WonBy = winners
	result := ResolveResult{Giveaway: g, Winners: winners, Performed: true}

	m.logger.Info("giveaway resolved",
		zap.String("guild_id", g.GuildID),
		zap.String("message_id", messageID),
		zap.String("trigger", trigger.Reason()),
		zap.String("requester", trigger.Requester()),
		zap.Int("participants", len(g.Entered)),
		zap.Strings("winners", winners),
	)

	ended := m.event(events.GiveawayEnded, g, trigger.Requester())
	ended.Winners = winners
	ended.Trigger = trigger.Reason()
	m.publish(ctx, ended)

	if gone {
		return result, nil
	}
	if err := m.messenger.AnnounceResult(ctx, g, trigger); err != nil {
		result.DeliveryErr = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		m.logger.Warn("giveaway announcement failed", zap.String("message_id", messageID), zap.Error(err))
	}
	return result, nil
}

// Active lists live giveaways for a guild, or every guild when guildID is
// empty, ordered by end time.
func (m *Manager) Active(guildID string) []storage.Giveaway {
	m.mu.Lock()
	entries := make([]*activeGiveaway, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	var out []storage.Giveaway
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.phase == phaseActive && (guildID == "" || entry.record.GuildID == guildID) {
			out = append(out, entry.snapshotLocked())
		}
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndsAt.Equal(out[j].EndsAt) {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].EndsAt.Before(out[j].EndsAt)
	})
	return out
}

// Get returns the live state of an active giveaway.
func (m *Manager) Get(messageID string) (storage.Giveaway, bool) {
	entry := m.lookup(messageID)
	if entry == nil {
		return storage.Giveaway{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.phase != phaseActive {
		return storage.Giveaway{}, false
	}
	return entry.snapshotLocked(), true
}

// Stop cancels every pending timer. Giveaways stay unresolved in the store and
// are picked up by the next Hydrate.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	entries := make([]*activeGiveaway, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}
		entry.mu.Unlock()
	}
}

// register adds g to the registry and optionally arms its timer. It reports
// false when the message is already tracked.
func (m *Manager) register(g storage.Giveaway, schedule bool) bool {
	entry := &activeGiveaway{
		record:       g,
		participants: make(map[string]struct{}, len(g.Entered)),
	}
	entry.record.Entered = nil

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[g.MessageID]; ok {
		return false
	}
	for _, userID := range g.Entered {
		if userID == m.selfID && m.selfID != "" {
			continue
		}
		if _, dup := entry.participants[userID]; dup {
			continue
		}
		entry.participants[userID] = struct{}{}
		entry.order = append(entry.order, userID)
	}
	if schedule && !m.stopped {
		m.scheduleAt(entry, g.EndsAt)
	}
	m.active[g.MessageID] = entry
	return true
}

// scheduleAt arms entry's resolution for when. Every arm carries a fresh
// token; a wakeup whose token is stale is ignored. Callers hold entry.mu or
// own entry exclusively.
func (m *Manager) scheduleAt(entry *activeGiveaway, when time.Time) {
	entry.token++
	token := entry.token
	messageID := entry.record.MessageID
	entry.timer = m.clock.At(when, func() { m.expire(messageID, token) })
}

func (m *Manager) expire(messageID string, token uint64) {
	entry := m.lookup(messageID)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	current := entry.token == token && entry.phase == phaseActive
	entry.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ResolveTimeout)
	defer cancel()

	_, err := m.Resolve(ctx, messageID, TimerTrigger{})
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrClaimed):
		m.logger.Info("scheduled resolution deferred", zap.String("message_id", messageID), zap.Error(err))
	default:
		m.logger.Error("scheduled resolution failed", zap.String("message_id", messageID), zap.Error(err))
	}
}

// claimedElsewhere handles a denied claim. The entry is dropped only once the
// stored row is ended; otherwise the claim may belong to a process that died
// mid-resolution and the giveaway is retried after the claim can expire.
func (m *Manager) claimedElsewhere(ctx context.Context, messageID string, entry *activeGiveaway) (ResolveResult, error) {
	stored, err := m.store.GetGiveaway(ctx, messageID)
	switch {
	case err == nil && stored.Ended:
		m.remove(messageID, entry)
		return ResolveResult{Giveaway: stored, Winners: stored.WonBy}, ErrNotFound
	case errors.Is(err, storage.ErrNotFound):
		m.remove(messageID, entry)
		return ResolveResult{}, ErrNotFound
	}
	m.revert(entry)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("%w: %w: %w", ErrClaimed, ErrPersistence, err)
	}
	return ResolveResult{}, ErrClaimed
}

// revert returns a giveaway to active after a failed commit and re-arms its
// timer, no sooner than the retry delay.
func (m *Manager) revert(entry *activeGiveaway) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.phase = phaseActive
	if stopped {
		return
	}
	when := entry.record.EndsAt
	if earliest := m.clock.Now().Add(m.opts.RetryDelay); when.Before(earliest) {
		when = earliest
	}
	m.scheduleAt(entry, when)
}

func (m *Manager) remove(messageID string, entry *activeGiveaway) {
	m.mu.Lock()
	if m.active[messageID] == entry {
		delete(m.active, messageID)
	}
	m.mu.Unlock()
}

func (m *Manager) lookup(messageID string) *activeGiveaway {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[messageID]
}

func (m *Manager) isSelf(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfID != "" && userID == m.selfID
}

// settled reports the stored outcome of a giveaway that is no longer active.
func (m *Manager) settled(ctx context.Context, messageID string) (ResolveResult, error) {
	g, err := m.store.GetGiveaway(ctx, messageID)
	if err != nil || !g.Ended {
		return ResolveResult{}, ErrNotFound
	}
	return ResolveResult{Giveaway: g, Winners: g.WonBy}, ErrNotFound
}

func (m *Manager) event(t events.Type, g storage.Giveaway, userID string) events.Event {
	ev := events.New(t)
	ev.GuildID = g.GuildID
	ev.ChannelID = g.ChannelID
	ev.MessageID = g.MessageID
	ev.UserID = userID
	ev.Prize = g.Prize
	return ev
}

func (m *Manager) publish(ctx context.Context, ev events.Event) {
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("publish giveaway event failed",
			zap.String("type", string(ev.Type)),
			zap.String("message_id", ev.MessageID),
			zap.Error(err),
		)
	}
}
