package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Giveaway is the persisted giveaway row. MessageID is the primary key.
// WonBy stays nil until the giveaway has ended.
type Giveaway struct {
	GuildID     string
	ChannelID   string
	MessageID   string
	AuthorID    string
	Prize       string
	WinnerCount int
	EndsAt      time.Time
	Ended       bool
	Entered     []string
	WonBy       []string
	CreatedAt   time.Time
}

func (s *Store) CreateGiveaway(ctx context.Context, g Giveaway) error {
	created := g.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO giveaways (message_id, guild_id, channel_id, author_id, prize, winners, ends_at, ended, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, g.MessageID, g.GuildID, g.ChannelID, g.AuthorID, g.Prize, g.WinnerCount, g.EndsAt.Unix(), created.Unix())
	return err
}

func (s *Store) GetGiveaway(ctx context.Context, messageID string) (Giveaway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, guild_id, channel_id, author_id, prize, winners, ends_at, ended, created_at
		FROM giveaways WHERE message_id = ?
	`, messageID)

	g, err := scanGiveaway(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Giveaway{}, ErrNotFound
		}
		return Giveaway{}, err
	}
	if err := s.loadParticipants(ctx, &g); err != nil {
		return Giveaway{}, err
	}
	return g, nil
}

func (s *Store) ListActiveGiveaways(ctx context.Context) ([]Giveaway, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, guild_id, channel_id, author_id, prize, winners, ends_at, ended, created_at
		FROM giveaways
		WHERE ended = 0
		ORDER BY ends_at
	`)
	if err != nil {
		return nil, err
	}

	var giveaways []Giveaway
	for rows.Next() {
		g, err := scanGiveaway(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		giveaways = append(giveaways, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range giveaways {
		if err := s.loadParticipants(ctx, &giveaways[i]); err != nil {
			return nil, err
		}
	}
	return giveaways, nil
}

func (s *Store) AddEntrant(ctx context.Context, messageID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO giveaway_entries (message_id, user_id, entered_at)
		VALUES (?, ?, ?)
	`, messageID, userID, time.Now().UnixNano())
	return err
}

func (s *Store) RemoveEntrant(ctx context.Context, messageID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM giveaway_entries WHERE message_id = ? AND user_id = ?`, messageID, userID)
	return err
}

// EndGiveaway flips ended and records the ordered winners in one transaction.
// It returns ErrNotFound when the row is missing or already ended.
func (s *Store) EndGiveaway(ctx context.Context, messageID string, wonBy []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE giveaways SET ended = 1 WHERE message_id = ? AND ended = 0`, messageID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrNotFound
		return err
	}

	for idx, userID := range wonBy {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO giveaway_winners (message_id, position, user_id) VALUES (?, ?, ?)
		`, messageID, idx, userID); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGiveaway(row rowScanner) (Giveaway, error) {
	var g Giveaway
	var endsAt, created int64
	var ended int
	if err := row.Scan(&g.MessageID, &g.GuildID, &g.ChannelID, &g.AuthorID, &g.Prize, &g.WinnerCount, &endsAt, &ended, &created); err != nil {
		return Giveaway{}, err
	}
	g.EndsAt = time.Unix(endsAt, 0)
	g.CreatedAt = time.Unix(created, 0)
	g.Ended = ended == 1
	return g, nil
}

func (s *Store) loadParticipants(ctx context.Context, g *Giveaway) error {
	entered, err := s.listUserIDs(ctx, `
		SELECT user_id FROM giveaway_entries WHERE message_id = ? ORDER BY entered_at, user_id
	`, g.MessageID)
	if err != nil {
		return err
	}
	g.Entered = entered

	if !g.Ended {
		return nil
	}
	wonBy, err := s.listUserIDs(ctx, `
		SELECT user_id FROM giveaway_winners WHERE message_id = ? ORDER BY position
	`, g.MessageID)
	if err != nil {
		return err
	}
	if wonBy == nil {
		wonBy = []string{}
	}
	g.WonBy = wonBy
	return nil
}

func (s *Store) listUserIDs(ctx context.Context, query, messageID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
