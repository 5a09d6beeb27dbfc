package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	GiveawayStarted Type = "giveaway_started"
	GiveawayEntered Type = "giveaway_entered"
	GiveawayLeft    Type = "giveaway_left"
	GiveawayEnded   Type = "giveaway_ended"
)

// Event describes one giveaway lifecycle transition.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	GuildID    string    `json:"guild_id"`
	ChannelID  string    `json:"channel_id"`
	MessageID  string    `json:"message_id"`
	UserID     string    `json:"user_id,omitempty"`
	Prize      string    `json:"prize,omitempty"`
	Winners    []string  `json:"winners,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(t Type) Event {
	return Event{ID: uuid.New(), Type: t, OccurredAt: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
