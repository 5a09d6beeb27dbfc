package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"giveaway-bot/internal/events"
	"giveaway-bot/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

type Store interface {
	AddAuditLog(ctx context.Context, entry storage.AuditLog) error
	CleanupAuditLogs(ctx context.Context, retentionDays int) error
}

// Logger keeps a per-guild trail of giveaway lifecycle events.
type Logger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(store Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) error {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: l.now(),
	}
	l.logger.Debug("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
	if l.store == nil {
		return nil
	}
	return l.store.AddAuditLog(ctx, entry)
}

// Publish records a lifecycle event so the logger can sit behind the
// manager's event publisher.
func (l *Logger) Publish(ctx context.Context, ev events.Event) error {
	level := LevelInfo
	if ev.Type == events.GiveawayEnded && ev.Trigger == "message_deleted" {
		level = LevelWarn
	}
	return l.Log(ctx, level, ev.GuildID, ev.UserID, string(ev.Type), details(ev))
}

// RunRetention deletes rows older than retentionDays once now and then every
// interval until ctx is done.
func (l *Logger) RunRetention(ctx context.Context, retentionDays int, interval time.Duration) {
	if l.store == nil || retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := l.store.CleanupAuditLogs(ctx, retentionDays); err != nil && ctx.Err() == nil {
			l.logger.Warn("audit retention cleanup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func details(ev events.Event) string {
	parts := []string{"message=" + ev.MessageID, "channel=" + ev.ChannelID}
	if ev.Trigger != "" {
		parts = append(parts, "trigger="+ev.Trigger)
	}
	if ev.Type == events.GiveawayEnded {
		parts = append(parts, fmt.Sprintf("winners=%s", strings.Join(ev.Winners, ",")))
	}
	return strings.Join(parts, " ")
}
