package status

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingPresence struct {
	lines []string
}

func (p *recordingPresence) UpdateCustomStatus(text string) error {
	p.lines = append(p.lines, text)
	return nil
}

func TestTickRendersGuildsAndCommand(t *testing.T) {
	presence := &recordingPresence{}
	render := func(guilds int, command string) string {
		return fmt.Sprintf("%d servers | ?!%s", guilds, command)
	}
	r := NewRotator(presence, func() int { return 12 }, []string{"giveaway start", "giveaway end"}, render, time.Minute, zap.NewNop())
	r.pick = func(n int) int { return 1 }

	assert.NoError(t, r.Tick())
	assert.Equal(t, []string{"12 servers | ?!giveaway end"}, presence.lines)
}

func TestRunStopsWithContext(t *testing.T) {
	presence := &recordingPresence{}
	r := NewRotator(presence, func() int { return 1 }, nil, func(g int, c string) string { return "x" }, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	assert.Len(t, presence.lines, 1)
}
