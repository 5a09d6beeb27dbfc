package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giveaway-bot/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL implementation of the giveaway, guild settings and
// audit log storage. Participants and winners live in array columns.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, url string) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const giveawayColumns = `message_id, guild_id, channel_id, author_id, prize, winners, ends_at, ended, entered, won_by, created_at`

func (s *Store) CreateGiveaway(ctx context.Context, g storage.Giveaway) error {
	created := g.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO giveaways (message_id, guild_id, channel_id, author_id, prize, winners, ends_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, g.MessageID, g.GuildID, g.ChannelID, g.AuthorID, g.Prize, g.WinnerCount, g.EndsAt, created)
	return err
}

func (s *Store) GetGiveaway(ctx context.Context, messageID string) (storage.Giveaway, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE message_id = $1`, messageID)
	g, err := scanGiveaway(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Giveaway{}, storage.ErrNotFound
	}
	return g, err
}

func (s *Store) ListActiveGiveaways(ctx context.Context) ([]storage.Giveaway, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+giveawayColumns+` FROM giveaways WHERE NOT ended ORDER BY ends_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var giveaways []storage.Giveaway
	for rows.Next() {
		g, err := scanGiveaway(rows)
		if err != nil {
			return nil, err
		}
		giveaways = append(giveaways, g)
	}
	return giveaways, rows.Err()
}

func (s *Store) AddEntrant(ctx context.Context, messageID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE giveaways SET entered = array_append(entered, $2)
		WHERE message_id = $1 AND NOT ended AND NOT ($2 = ANY(entered))
	`, messageID, userID)
	return err
}

func (s *Store) RemoveEntrant(ctx context.Context, messageID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE giveaways SET entered = array_remove(entered, $2)
		WHERE message_id = $1 AND NOT ended
	`, messageID, userID)
	return err
}

// EndGiveaway sets ended and won_by in one statement. It returns
// storage.ErrNotFound when the row is missing or already ended.
func (s *Store) EndGiveaway(ctx context.Context, messageID string, wonBy []string) error {
	if wonBy == nil {
		wonBy = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE giveaways SET ended = TRUE, won_by = $2
		WHERE message_id = $1 AND NOT ended
	`, messageID, wonBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string, defaults storage.GuildSettings) (storage.GuildSettings, error) {
	result := defaults
	result.GuildID = guildID

	var language, prefix string
	err := s.pool.QueryRow(ctx, `SELECT language, prefix FROM guild_settings WHERE guild_id = $1`, guildID).Scan(&language, &prefix)
	if errors.Is(err, pgx.ErrNoRows) {
		return result, nil
	}
	if err != nil {
		return storage.GuildSettings{}, err
	}
	if language != "" {
		result.Language = language
	}
	if prefix != "" {
		result.Prefix = prefix
	}
	return result, nil
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings storage.GuildSettings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guild_settings (guild_id, language, prefix)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET language = EXCLUDED.language, prefix = EXCLUDED.prefix
	`, settings.GuildID, settings.Language, settings.Prefix)
	return err
}

func (s *Store) AddAuditLog(ctx context.Context, log storage.AuditLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, guildID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []storage.AuditLog
	for rows.Next() {
		var log storage.AuditLog
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &log.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	return err
}

func scanGiveaway(row pgx.Row) (storage.Giveaway, error) {
	var g storage.Giveaway
	if err := row.Scan(&g.MessageID, &g.GuildID, &g.ChannelID, &g.AuthorID, &g.Prize, &g.WinnerCount,
		&g.EndsAt, &g.Ended, &g.Entered, &g.WonBy, &g.CreatedAt); err != nil {
		return storage.Giveaway{}, err
	}
	if len(g.Entered) == 0 {
		g.Entered = nil
	}
	if g.Ended && g.WonBy == nil {
		g.WonBy = []string{}
	}
	if !g.Ended {
		g.WonBy = nil
	}
	return g, nil
}
