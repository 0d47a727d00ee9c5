package store

import (
	"context"
	"fmt"
)

// migrate runs idempotent schema migrations. The DDL is shared by SQLite and
// PostgreSQL: TEXT ids, BIGINT unix-millisecond timestamps, BOOLEAN flags.
func (s *DB) migrate(ctx context.Context) error {
	migrations := []string{
		// Profiles: the per-account aggregate guarded by version.
		`CREATE TABLE IF NOT EXISTS profiles (
			account_id       TEXT PRIMARY KEY,
			total_xp         BIGINT NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
			level            INTEGER NOT NULL DEFAULT 1,
			peak_level       INTEGER NOT NULL DEFAULT 1,
			xp_to_next       BIGINT NOT NULL DEFAULT 100,
			coins            BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
			evolution_stage  INTEGER NOT NULL DEFAULT 1,
			evolution_form   TEXT NOT NULL DEFAULT 'baby',
			quests_completed BIGINT NOT NULL DEFAULT 0,
			tasks_completed  BIGINT NOT NULL DEFAULT 0,
			aesthetic_score  BIGINT NOT NULL DEFAULT 0,
			plan_tier        TEXT NOT NULL DEFAULT 'free',
			is_guest         BOOLEAN NOT NULL DEFAULT FALSE,
			version          BIGINT NOT NULL DEFAULT 1,
			created_at       BIGINT NOT NULL,
			updated_at       BIGINT NOT NULL
		)`,

		// XP ledger (append-only)
		`CREATE TABLE IF NOT EXISTS xp_events (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES profiles(account_id),
			amount     BIGINT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			category   TEXT NOT NULL,
			quest_id   TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_account ON xp_events(account_id, created_at)`,

		// Streaks: one row per (account, type), never deleted
		`CREATE TABLE IF NOT EXISTS streaks (
			account_id   TEXT NOT NULL REFERENCES profiles(account_id),
			streak_type  TEXT NOT NULL,
			streak_count INTEGER NOT NULL DEFAULT 0,
			best_streak  INTEGER NOT NULL DEFAULT 0,
			last_updated BIGINT NOT NULL,
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (account_id, streak_type)
		)`,

		// Quests
		`CREATE TABLE IF NOT EXISTS quests (
			id           TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL REFERENCES profiles(account_id),
			quest_type   TEXT NOT NULL,
			category     TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			difficulty   TEXT NOT NULL DEFAULT '',
			target       INTEGER NOT NULL,
			progress     INTEGER NOT NULL DEFAULT 0,
			status       TEXT NOT NULL,
			xp_reward    BIGINT NOT NULL DEFAULT 0,
			coin_reward  BIGINT NOT NULL DEFAULT 0,
			item_reward  TEXT NOT NULL DEFAULT '',
			batch_key    TEXT NOT NULL DEFAULT '',
			slot         INTEGER NOT NULL DEFAULT 0,
			created_at   BIGINT NOT NULL,
			expires_at   BIGINT NOT NULL,
			completed_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quests_account ON quests(account_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_quests_expiry ON quests(status, expires_at)`,
		// One daily/weekly batch per account and period, even under concurrent creation.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_quests_batch ON quests(account_id, batch_key, slot) WHERE batch_key <> ''`,

		// Inventory grants from quest and shop rewards
		`CREATE TABLE IF NOT EXISTS inventory_items (
			account_id TEXT NOT NULL REFERENCES profiles(account_id),
			item       TEXT NOT NULL,
			granted_at BIGINT NOT NULL,
			PRIMARY KEY (account_id, item)
		)`,

		// Exactly-once markers: badges, tutorial steps, onboarding, features, tasks
		`CREATE TABLE IF NOT EXISTS unlocks (
			account_id  TEXT NOT NULL REFERENCES profiles(account_id),
			kind        TEXT NOT NULL,
			unlock_key  TEXT NOT NULL,
			unlocked_at BIGINT NOT NULL,
			PRIMARY KEY (account_id, kind, unlock_key)
		)`,

		// Evolution audit trail
		`CREATE TABLE IF NOT EXISTS evolutions (
			id              TEXT PRIMARY KEY,
			account_id      TEXT NOT NULL REFERENCES profiles(account_id),
			from_stage      INTEGER NOT NULL,
			to_stage        INTEGER NOT NULL,
			from_form       TEXT NOT NULL,
			to_form         TEXT NOT NULL,
			trigger_reason  TEXT NOT NULL,
			xp_at_evolution BIGINT NOT NULL,
			created_at      BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evolutions_account ON evolutions(account_id, to_stage)`,

		// Leaderboard snapshots (derived, replaced per run)
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			category    TEXT NOT NULL,
			account_id  TEXT NOT NULL,
			score       BIGINT NOT NULL,
			rank_pos    INTEGER NOT NULL,
			row_pos     INTEGER NOT NULL,
			computed_at BIGINT NOT NULL,
			PRIMARY KEY (category, account_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_rank ON leaderboard_entries(category, row_pos)`,

		// Notification inbox
		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL DEFAULT '{}',
			created_at BIGINT NOT NULL,
			shown      BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_account ON notifications(account_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", s.dialect.classify(err), m)
		}
	}
	return nil
}
