package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── Inventory & Unlocks ────────────────────────────────────────────────────

// GrantItem adds an item. Returns false if the account already owns it.
func (c *conn) GrantItem(ctx context.Context, accountID, item string, at time.Time) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO inventory_items (account_id, item, granted_at) VALUES (?, ?, ?)
		 ON CONFLICT (account_id, item) DO NOTHING`,
		accountID, item, millis(at),
	)
	if err != nil {
		return false, fmt.Errorf("grant item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil // true = newly granted
}

// HasItem checks inventory ownership.
func (c *conn) HasItem(ctx context.Context, accountID, item string) (bool, error) {
	var count int
	err := c.queryRow(ctx,
		`SELECT COUNT(*) FROM inventory_items WHERE account_id = ? AND item = ?`, accountID, item,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has item: %w", c.d.classify(err))
	}
	return count > 0, nil
}

// Unlock records a one-shot marker. Returns false if already present.
func (c *conn) Unlock(ctx context.Context, u domain.Unlock) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO unlocks (account_id, kind, unlock_key, unlocked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (account_id, kind, unlock_key) DO NOTHING`,
		u.AccountID, string(u.Kind), u.Key, millis(u.UnlockedAt),
	)
	if err != nil {
		return false, fmt.Errorf("unlock %s: %w", u.Kind, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Unlocks lists the markers of one kind, oldest first.
func (c *conn) Unlocks(ctx context.Context, accountID string, kind domain.UnlockKind) ([]domain.Unlock, error) {
	rows, err := c.query(ctx,
		`SELECT account_id, kind, unlock_key, unlocked_at FROM unlocks
		 WHERE account_id = ? AND kind = ? ORDER BY unlocked_at, unlock_key`,
		accountID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	var out []domain.Unlock
	for rows.Next() {
		var (
			u  domain.Unlock
			k  string
			at int64
		)
		if err := rows.Scan(&u.AccountID, &k, &u.Key, &at); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		u.Kind = domain.UnlockKind(k)
		u.UnlockedAt = fromMillis(at)
		out = append(out, u)
	}
	return out, rows.Err()
}

// ─── Evolutions ─────────────────────────────────────────────────────────────

// AppendEvolution writes an evolution audit row.
func (c *conn) AppendEvolution(ctx context.Context, rec domain.EvolutionRecord) error {
	_, err := c.exec(ctx,
		`INSERT INTO evolutions (id, account_id, from_stage, to_stage, from_form, to_form,
			trigger_reason, xp_at_evolution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.FromStage, rec.ToStage, string(rec.FromForm), string(rec.ToForm),
		rec.Trigger, rec.XPAtEvolution, millis(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append evolution: %w", err)
	}
	return nil
}

// Evolutions lists an account's evolution history by stage.
func (c *conn) Evolutions(ctx context.Context, accountID string) ([]domain.EvolutionRecord, error) {
	rows, err := c.query(ctx,
		`SELECT id, account_id, from_stage, to_stage, from_form, to_form, trigger_reason,
			xp_at_evolution, created_at
		 FROM evolutions WHERE account_id = ? ORDER BY to_stage`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list evolutions: %w", err)
	}
	defer rows.Close()

	var out []domain.EvolutionRecord
	for rows.Next() {
		var (
			r          domain.EvolutionRecord
			fromF, toF string
			at         int64
		)
		if err := rows.Scan(&r.ID, &r.AccountID, &r.FromStage, &r.ToStage, &fromF, &toF,
			&r.Trigger, &r.XPAtEvolution, &at); err != nil {
			return nil, fmt.Errorf("scan evolution: %w", err)
		}
		r.FromForm = domain.EvolutionForm(fromF)
		r.ToForm = domain.EvolutionForm(toF)
		r.CreatedAt = fromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
