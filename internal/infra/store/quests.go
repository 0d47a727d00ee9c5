package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── Quests ─────────────────────────────────────────────────────────────────

const questColumns = `id, account_id, quest_type, category, title, description, difficulty,
	target, progress, status, xp_reward, coin_reward, item_reward, batch_key, slot,
	created_at, expires_at, completed_at`

// Quest loads a quest owned by accountID.
func (c *conn) Quest(ctx context.Context, accountID, questID string) (domain.Quest, error) {
	row := c.queryRow(ctx,
		`SELECT `+questColumns+` FROM quests WHERE id = ? AND account_id = ?`, questID, accountID)
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quest{}, fmt.Errorf("%w: %s", domain.ErrQuestNotFound, questID)
	}
	if err != nil {
		return domain.Quest{}, fmt.Errorf("load quest: %w", c.d.classify(err))
	}
	return q, nil
}

// QuestsByBatch returns the quests of one rotation batch ordered by slot.
func (c *conn) QuestsByBatch(ctx context.Context, accountID, batchKey string) ([]domain.Quest, error) {
	return c.listQuests(ctx,
		`SELECT `+questColumns+` FROM quests WHERE account_id = ? AND batch_key = ? ORDER BY slot`,
		accountID, batchKey)
}

// ListQuests returns an account's quests, newest batch first.
func (c *conn) ListQuests(ctx context.Context, accountID string, f domain.QuestFilter) ([]domain.Quest, error) {
	q := `SELECT ` + questColumns + ` FROM quests WHERE account_id = ?`
	args := []any{accountID}
	if f.Type != "" {
		q += ` AND quest_type = ?`
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, slot ASC`
	return c.listQuests(ctx, q, args...)
}

func (c *conn) listQuests(ctx context.Context, q string, args ...any) ([]domain.Quest, error) {
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	var quests []domain.Quest
	for rows.Next() {
		quest, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, quest)
	}
	return quests, rows.Err()
}

// InsertQuest creates a quest.
func (c *conn) InsertQuest(ctx context.Context, q domain.Quest) error {
	_, err := c.exec(ctx,
		`INSERT INTO quests (`+questColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.AccountID, string(q.Type), q.Category, q.Title, q.Description, q.Difficulty,
		q.Target, q.Progress, string(q.Status), q.XPReward, q.CoinReward, q.ItemReward,
		q.BatchKey, q.Slot, millis(q.CreatedAt), millis(q.ExpiresAt), nullableMillis(q.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert quest: %w", err)
	}
	return nil
}

// SaveQuest updates a quest that is still active in storage.
func (c *conn) SaveQuest(ctx context.Context, q domain.Quest) error {
	res, err := c.exec(ctx,
		`UPDATE quests SET progress = ?, status = ?, completed_at = ?
		 WHERE id = ? AND account_id = ? AND status = ?`,
		q.Progress, string(q.Status), nullableMillis(q.CompletedAt),
		q.ID, q.AccountID, string(domain.QuestActive),
	)
	if err != nil {
		return fmt.Errorf("save quest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save quest: %w", c.d.classify(err))
	}
	if n == 0 {
		return fmt.Errorf("save quest %s: %w", q.ID, domain.ErrInvalidState)
	}
	return nil
}

// ExpireAccountQuests expires one account's overdue active quests.
func (c *conn) ExpireAccountQuests(ctx context.Context, accountID string, now time.Time) (int64, error) {
	res, err := c.exec(ctx,
		`UPDATE quests SET status = ? WHERE account_id = ? AND status = ? AND expires_at < ?`,
		string(domain.QuestExpired), accountID, string(domain.QuestActive), millis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("expire quests: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ExpireQuests expires every overdue active quest in one statement.
func (s *DB) ExpireQuests(ctx context.Context, now time.Time) (int64, error) {
	c := s.plain()
	res, err := c.exec(ctx,
		`UPDATE quests SET status = ? WHERE status = ? AND expires_at < ?`,
		string(domain.QuestExpired), string(domain.QuestActive), millis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep quests: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanQuest(s scanner) (domain.Quest, error) {
	var (
		q                    domain.Quest
		typ, status          string
		createdAt, expiresAt int64
		completedAt          sql.NullInt64
	)
	err := s.Scan(&q.ID, &q.AccountID, &typ, &q.Category, &q.Title, &q.Description,
		&q.Difficulty, &q.Target, &q.Progress, &status, &q.XPReward, &q.CoinReward,
		&q.ItemReward, &q.BatchKey, &q.Slot, &createdAt, &expiresAt, &completedAt)
	if err != nil {
		return q, err
	}
	q.Type = domain.QuestType(typ)
	q.Status = domain.QuestStatus(status)
	q.CreatedAt = fromMillis(createdAt)
	q.ExpiresAt = fromMillis(expiresAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		q.CompletedAt = &t
	}
	return q, nil
}
