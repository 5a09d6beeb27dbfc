package status

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Presence sets the bot's custom status line.
type Presence interface {
	UpdateCustomStatus(text string) error
}

// Rotator periodically advertises the server count and a random command.
type Rotator struct {
	presence Presence
	guilds   func() int
	commands []string
	render   func(guilds int, command string) string
	interval time.Duration
	logger   *zap.Logger
	pick     func(n int) int
}

func NewRotator(presence Presence, guilds func() int, commands []string, render func(int, string) string, interval time.Duration, logger *zap.Logger) *Rotator {
	return &Rotator{
		presence: presence,
		guilds:   guilds,
		commands: commands,
		render:   render,
		interval: interval,
		logger:   logger,
		pick:     rand.IntN,
	}
}

// Run updates the status now and then every interval until ctx is done.
func (r *Rotator) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.Tick(); err != nil {
			r.logger.Debug("status update failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Rotator) Tick() error {
	command := ""
	if len(r.commands) > 0 {
		command = r.commands[r.pick(len(r.commands))]
	}
	return r.presence.UpdateCustomStatus(r.render(r.guilds(), command))
}
