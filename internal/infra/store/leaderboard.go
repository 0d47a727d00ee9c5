package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── Leaderboard ────────────────────────────────────────────────────────────

// leaderboardBatch bounds rows per INSERT to stay under placeholder limits.
const leaderboardBatch = 200

// RankSources reads the metrics of all non-guest accounts with plain reads.
func (s *DB) RankSources(ctx context.Context) ([]domain.RankSource, error) {
	c := s.plain()
	rows, err := c.query(ctx,
		`SELECT account_id, total_xp, aesthetic_score, quests_completed, created_at
		 FROM profiles WHERE is_guest = ? ORDER BY created_at, account_id`,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("rank sources: %w", err)
	}

	var (
		out   []domain.RankSource
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			src domain.RankSource
			at  int64
		)
		if err := rows.Scan(&src.AccountID, &src.TotalXP, &src.AestheticScore, &src.QuestsCompleted, &at); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rank source: %w", err)
		}
		src.CreatedAt = fromMillis(at)
		index[src.AccountID] = len(out)
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rank sources: %w", c.d.classify(err))
	}
	rows.Close()

	srows, err := c.query(ctx,
		`SELECT s.account_id, s.streak_type, s.streak_count, s.best_streak, s.last_updated, s.is_active
		 FROM streaks s JOIN profiles p ON p.account_id = s.account_id
		 WHERE p.is_guest = ?`,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("rank streaks: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		st, err := scanStreak(srows)
		if err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		// Accounts created between the two reads are skipped until the next run.
		if i, ok := index[st.AccountID]; ok {
			out[i].Streaks = append(out[i].Streaks, st)
		}
	}
	return out, srows.Err()
}

// SaveLeaderboard replaces a category snapshot atomically. Entries must be
// given in display order. On SQLite the write holds the single connection, so
// concurrent profile writes queue behind it until commit.
func (s *DB) SaveLeaderboard(ctx context.Context, cat domain.LeaderboardCategory, entries []domain.LeaderboardEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", s.dialect.classify(err))
	}
	defer tx.Rollback() //nolint:errcheck
	c := &conn{q: tx, d: s.dialect}

	if _, err := c.exec(ctx, `DELETE FROM leaderboard_entries WHERE category = ?`, string(cat)); err != nil {
		return fmt.Errorf("clear leaderboard: %w", err)
	}

	for start := 0; start < len(entries); start += leaderboardBatch {
		end := min(start+leaderboardBatch, len(entries))
		chunk := entries[start:end]

		var b strings.Builder
		b.WriteString(`INSERT INTO leaderboard_entries (category, account_id, score, rank_pos, row_pos, computed_at) VALUES `)
		args := make([]any, 0, len(chunk)*6)
		for i, e := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?, ?)")
			args = append(args, string(cat), e.AccountID, e.Score, e.Rank, start+i, millis(e.ComputedAt))
		}
		if _, err := c.exec(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("insert leaderboard: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", s.dialect.classify(err))
	}
	return nil
}

// LoadLeaderboard returns the persisted snapshot in display order.
func (s *DB) LoadLeaderboard(ctx context.Context, cat domain.LeaderboardCategory, limit int) ([]domain.LeaderboardEntry, error) {
	c := s.plain()
	q := `SELECT account_id, category, score, rank_pos, computed_at
		  FROM leaderboard_entries WHERE category = ? ORDER BY row_pos`
	args := []any{string(cat)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LeaderboardEntry looks up one account in a persisted snapshot.
func (s *DB) LeaderboardEntry(ctx context.Context, cat domain.LeaderboardCategory, accountID string) (domain.LeaderboardEntry, error) {
	c := s.plain()
	row := c.queryRow(ctx,
		`SELECT account_id, category, score, rank_pos, computed_at
		 FROM leaderboard_entries WHERE category = ? AND account_id = ?`,
		string(cat), accountID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeaderboardEntry{}, fmt.Errorf("leaderboard %s: %s: %w", cat, accountID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("leaderboard entry: %w", c.d.classify(err))
	}
	return e, nil
}

func scanEntry(s scanner) (domain.LeaderboardEntry, error) {
	var (
		e   domain.LeaderboardEntry
		cat string
		at  int64
	)
	if err := s.Scan(&e.AccountID, &cat, &e.Score, &e.Rank, &at); err != nil {
		return e, err
	}
	e.Category = domain.LeaderboardCategory(cat)
	e.ComputedAt = fromMillis(at)
	return e, nil
}
