package store

import (
	"context"
	"fmt"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// AppendXPEvent writes one immutable ledger row.
func (c *conn) AppendXPEvent(ctx context.Context, e domain.XPEvent) error {
	_, err := c.exec(ctx,
		`INSERT INTO xp_events (id, account_id, amount, reason, category, quest_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.Amount, e.Reason, string(e.Category), e.QuestID, millis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append xp event: %w", err)
	}
	return nil
}

// XPEvents returns the newest events first. limit <= 0 returns all of them.
func (c *conn) XPEvents(ctx context.Context, accountID string, limit int) ([]domain.XPEvent, error) {
	q := `SELECT id, account_id, amount, reason, category, quest_id, created_at
		  FROM xp_events WHERE account_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list xp events: %w", err)
	}
	defer rows.Close()

	var events []domain.XPEvent
	for rows.Next() {
		var (
			e        domain.XPEvent
			category string
			at       int64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Reason, &category, &e.QuestID, &at); err != nil {
			return nil, fmt.Errorf("scan xp event: %w", err)
		}
		e.Category = domain.XPCategory(category)
		e.CreatedAt = fromMillis(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SumXP recomputes the ledger total of an account.
func (c *conn) SumXP(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := c.queryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_events WHERE account_id = ?`, accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum xp: %w", c.d.classify(err))
	}
	return sum, nil
}
