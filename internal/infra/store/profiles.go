package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── Profiles ───────────────────────────────────────────────────────────────

const profileColumns = `account_id, total_xp, level, peak_level, xp_to_next, coins, evolution_stage,
	evolution_form, quests_completed, tasks_completed, aesthetic_score, plan_tier,
	is_guest, version, created_at, updated_at`

// Profile loads one profile.
func (c *conn) Profile(ctx context.Context, accountID string) (domain.ProgressionProfile, error) {
	row := c.queryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE account_id = ?`, accountID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProgressionProfile{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return domain.ProgressionProfile{}, fmt.Errorf("load profile: %w", c.d.classify(err))
	}
	return p, nil
}

// InsertProfile creates a profile at version 1.
func (c *conn) InsertProfile(ctx context.Context, p domain.ProgressionProfile) error {
	_, err := c.exec(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AccountID, p.TotalXP, p.Level, peakLevel(p), p.XPToNextLevel, p.Coins, p.EvolutionStage,
		string(p.EvolutionForm), p.QuestsCompleted, p.TasksCompleted, p.AestheticScore,
		string(p.PlanTier), p.IsGuest, int64(1), millis(p.CreatedAt), millis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// UpdateProfile is a compare-and-set on version.
func (c *conn) UpdateProfile(ctx context.Context, p *domain.ProgressionProfile) error {
	res, err := c.exec(ctx,
		`UPDATE profiles SET total_xp = ?, level = ?, peak_level = ?, xp_to_next = ?, coins = ?,
			evolution_stage = ?, evolution_form = ?, quests_completed = ?, tasks_completed = ?,
			aesthetic_score = ?, plan_tier = ?, is_guest = ?, version = version + 1, updated_at = ?
		 WHERE account_id = ? AND version = ?`,
		p.TotalXP, p.Level, peakLevel(*p), p.XPToNextLevel, p.Coins, p.EvolutionStage, string(p.EvolutionForm),
		p.QuestsCompleted, p.TasksCompleted, p.AestheticScore, string(p.PlanTier), p.IsGuest,
		millis(p.UpdatedAt), p.AccountID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", c.d.classify(err))
	}
	if n == 0 {
		return fmt.Errorf("update profile %s at version %d: %w", p.AccountID, p.Version, domain.ErrConcurrencyConflict)
	}
	p.Version++
	return nil
}

// peakLevel never stores less than the current level.
func peakLevel(p domain.ProgressionProfile) int {
	if p.PeakLevel < p.Level {
		return p.Level
	}
	return p.PeakLevel
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (domain.ProgressionProfile, error) {
	var (
		p                    domain.ProgressionProfile
		form, plan           string
		createdAt, updatedAt int64
	)
	err := s.Scan(&p.AccountID, &p.TotalXP, &p.Level, &p.PeakLevel, &p.XPToNextLevel, &p.Coins,
		&p.EvolutionStage, &form, &p.QuestsCompleted, &p.TasksCompleted, &p.AestheticScore,
		&plan, &p.IsGuest, &p.Version, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.EvolutionForm = domain.EvolutionForm(form)
	p.PlanTier = domain.PlanTier(plan)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
