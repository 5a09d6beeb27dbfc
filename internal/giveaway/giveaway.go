package giveaway

import (
	"context"
	"errors"

	"giveaway-bot/internal/storage"
)

var (
	ErrInvalidArgument = errors.New("giveaway: invalid argument")
	ErrNotFound        = errors.New("giveaway: not found or already ended")
	ErrAlreadyEntered  = errors.New("giveaway: already entered")
	ErrNotEntered      = errors.New("giveaway: not entered")
	ErrIneligible      = errors.New("giveaway: user cannot enter")
	ErrDeliveryFailed  = errors.New("giveaway: message delivery failed")
	ErrPersistence     = errors.New("giveaway: persistence failure")
	// ErrClaimed means another process holds the resolution claim and the
	// stored row is not ended yet. The giveaway stays active and is retried.
	ErrClaimed = errors.New("giveaway: resolution claimed elsewhere")
)

// Trigger records why a resolution was requested.
type Trigger interface {
	Reason() string
	Requester() string
	trigger()
}

// TimerTrigger is a natural expiry, including overdue giveaways found during
// hydration.
type TimerTrigger struct{}

type CommandTrigger struct {
	RequesterID string
}

// AdminForceTrigger ends a giveaway on behalf of a bot owner regardless of
// guild permissions.
type AdminForceTrigger struct {
	RequesterID string
}

func (TimerTrigger) Reason() string    { return "timer" }
func (TimerTrigger) Requester() string { return "" }
func (TimerTrigger) trigger()          {}

func (t CommandTrigger) Reason() string    { return "command" }
func (t CommandTrigger) Requester() string { return t.RequesterID }
func (CommandTrigger) trigger()            {}

func (t AdminForceTrigger) Reason() string    { return "admin_force" }
func (t AdminForceTrigger) Requester() string { return t.RequesterID }
func (AdminForceTrigger) trigger()            {}

// messageGoneTrigger ends a giveaway whose message no longer exists.
type messageGoneTrigger struct{}

func (messageGoneTrigger) Reason() string    { return "message_deleted" }
func (messageGoneTrigger) Requester() string { return "" }
func (messageGoneTrigger) trigger()          {}

type StartRequest struct {
	GuildID     string
	ChannelID   string
	AuthorID    string
	Duration    string
	WinnerCount int
	Prize       string
}

type EntryResult struct {
	Giveaway     storage.Giveaway
	Participants int
}

// ResolveResult carries the final record. Performed is false when another
// caller already committed the resolution; DeliveryErr is set when the
// announcement could not be posted after a successful commit.
type ResolveResult struct {
	Giveaway    storage.Giveaway
	Winners     []string
	Performed   bool
	DeliveryErr error
}

// Store is the durable side of the manager.
type Store interface {
	CreateGiveaway(ctx context.Context, g storage.Giveaway) error
	GetGiveaway(ctx context.Context, messageID string) (storage.Giveaway, error)
	ListActiveGiveaways(ctx context.Context) ([]storage.Giveaway, error)
	AddEntrant(ctx context.Context, messageID, userID string) error
	RemoveEntrant(ctx context.Context, messageID, userID string) error
	EndGiveaway(ctx context.Context, messageID string, wonBy []string) error
}

// Messenger posts and announces giveaways. PostGiveaway returns the id of the
// announcement message, which becomes the giveaway key. WithdrawGiveaway
// removes a posted message whose giveaway could not be saved.
type Messenger interface {
	PostGiveaway(ctx context.Context, g storage.Giveaway) (string, error)
	WithdrawGiveaway(ctx context.Context, g storage.Giveaway) error
	AnnounceResult(ctx context.Context, g storage.Giveaway, trigger Trigger) error
}

type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
