package analytics

import (
	"context"
	"time"

	"giveaway-bot/internal/storage"
)

type Store interface {
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
}

type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// Report summarizes a guild's giveaway activity.
type Report struct {
	Total   int
	ByEvent map[string]int
	ByLevel map[string]int
}

func (r Report) Count(event string) int {
	return r.ByEvent[event]
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByEvent: make(map[string]int), ByLevel: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByEvent[log.Event]++
		report.ByLevel[log.Level]++
	}
	return report, nil
}
