package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

// Streak loads one streak counter.
func (c *conn) Streak(ctx context.Context, accountID string, typ domain.StreakType) (domain.Streak, error) {
	row := c.queryRow(ctx,
		`SELECT account_id, streak_type, streak_count, best_streak, last_updated, is_active
		 FROM streaks WHERE account_id = ? AND streak_type = ?`,
		accountID, string(typ),
	)
	s, err := scanStreak(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Streak{}, fmt.Errorf("%w: %s/%s", domain.ErrStreakNotFound, accountID, typ)
	}
	if err != nil {
		return domain.Streak{}, fmt.Errorf("load streak: %w", c.d.classify(err))
	}
	return s, nil
}

// Streaks lists every streak of an account ordered by type.
func (c *conn) Streaks(ctx context.Context, accountID string) ([]domain.Streak, error) {
	rows, err := c.query(ctx,
		`SELECT account_id, streak_type, streak_count, best_streak, last_updated, is_active
		 FROM streaks WHERE account_id = ? ORDER BY streak_type`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}
	defer rows.Close()

	var out []domain.Streak
	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveStreak upserts a streak counter.
func (c *conn) SaveStreak(ctx context.Context, s domain.Streak) error {
	_, err := c.exec(ctx,
		`INSERT INTO streaks (account_id, streak_type, streak_count, best_streak, last_updated, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, streak_type) DO UPDATE SET
			streak_count = excluded.streak_count,
			best_streak = excluded.best_streak,
			last_updated = excluded.last_updated,
			is_active = excluded.is_active`,
		s.AccountID, string(s.Type), s.Count, s.BestStreak, millis(s.LastUpdated), s.IsActive,
	)
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

func scanStreak(s scanner) (domain.Streak, error) {
	var (
		st  domain.Streak
		typ string
		at  int64
	)
	if err := s.Scan(&st.AccountID, &typ, &st.Count, &st.BestStreak, &at, &st.IsActive); err != nil {
		return st, err
	}
	st.Type = domain.StreakType(typ)
	st.LastUpdated = fromMillis(at)
	return st, nil
}
