package antispam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"giveaway-bot/internal/modules/audit"
	"giveaway-bot/internal/utils"
)

type Auditor interface {
	Log(ctx context.Context, level, guildID, userID, event, details string) error
}

// Module throttles giveaway entry attempts per guild member.
type Module struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*utils.SlidingWindow
	audit   Auditor
}

// New returns a module allowing limit attempts per window. A non-positive
// limit disables throttling; auditor may be nil.
func New(limit int, window time.Duration, auditor Auditor) *Module {
	return &Module{
		limit:   limit,
		window:  window,
		windows: make(map[string]*utils.SlidingWindow),
		audit:   auditor,
	}
}

// HandleEntry records an attempt and reports whether it may go through. Only
// the first rejected attempt of a burst is audited.
func (m *Module) HandleEntry(ctx context.Context, guildID, userID string, now time.Time) bool {
	if m.limit <= 0 {
		return true
	}
	count := m.getWindow(guildID + ":" + userID).Add(now)
	if count <= m.limit {
		return true
	}
	if count == m.limit+1 && m.audit != nil {
		detail := fmt.Sprintf("attempts=%d window=%s", count, m.window)
		_ = m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "entry_burst", detail)
	}
	return false
}

// Sweep drops idle windows.
func (m *Module) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, window := range m.windows {
		if window.Count(now) == 0 {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

func (m *Module) getWindow(key string) *utils.SlidingWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := m.windows[key]
	if window == nil {
		window = utils.NewSlidingWindow(m.window)
		m.windows[key] = window
	}
	return window
}
