package domain

import (
	"context"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// Store is the persistence layer behind the progression engine.
// Per-account mutations go through WithinTx; the population-wide reads used by
// the leaderboard never open a write transaction.
type Store interface {
	// WithinTx runs fn inside one atomic transaction. A non-nil error from fn
	// rolls back. Lost races surface as ErrConcurrencyConflict.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// RankSources reads the ranking metrics of every non-guest account.
	RankSources(ctx context.Context) ([]RankSource, error)
	// SaveLeaderboard replaces the persisted snapshot of one category.
	SaveLeaderboard(ctx context.Context, cat LeaderboardCategory, entries []LeaderboardEntry) error
	LoadLeaderboard(ctx context.Context, cat LeaderboardCategory, limit int) ([]LeaderboardEntry, error)
	LeaderboardEntry(ctx context.Context, cat LeaderboardCategory, accountID string) (LeaderboardEntry, error)

	// ExpireQuests moves every overdue active quest to expired.
	ExpireQuests(ctx context.Context, now time.Time) (int64, error)

	InsertNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, accountID string, limit int) ([]Notification, error)
	MarkNotificationShown(ctx context.Context, accountID, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside one Store transaction.
type Tx interface {
	// Profile returns ErrAccountNotFound when no profile exists.
	Profile(ctx context.Context, accountID string) (ProgressionProfile, error)
	// InsertProfile returns ErrDuplicate when the account already exists.
	InsertProfile(ctx context.Context, p ProgressionProfile) error
	// UpdateProfile writes p if its Version still matches the stored one and
	// bumps p.Version. A stale version returns ErrConcurrencyConflict.
	UpdateProfile(ctx context.Context, p *ProgressionProfile) error

	AppendXPEvent(ctx context.Context, e XPEvent) error
	XPEvents(ctx context.Context, accountID string, limit int) ([]XPEvent, error)
	SumXP(ctx context.Context, accountID string) (int64, error)

	// Streak returns ErrStreakNotFound before the first tick of a type.
	Streak(ctx context.Context, accountID string, typ StreakType) (Streak, error)
	Streaks(ctx context.Context, accountID string) ([]Streak, error)
	SaveStreak(ctx context.Context, s Streak) error

	Quest(ctx context.Context, accountID, questID string) (Quest, error)
	QuestsByBatch(ctx context.Context, accountID, batchKey string) ([]Quest, error)
	ListQuests(ctx context.Context, accountID string, f QuestFilter) ([]Quest, error)
	// InsertQuest returns ErrDuplicate when (account, batch key, slot) is taken.
	InsertQuest(ctx context.Context, q Quest) error
	// SaveQuest persists progress, status and completion time of a quest that
	// is still active. A quest already terminal returns ErrInvalidState.
	SaveQuest(ctx context.Context, q Quest) error
	ExpireAccountQuests(ctx context.Context, accountID string, now time.Time) (int64, error)

	// GrantItem adds an item to the inventory and reports whether it was new.
	GrantItem(ctx context.Context, accountID, item string, at time.Time) (bool, error)
	HasItem(ctx context.Context, accountID, item string) (bool, error)

	// Unlock records a one-shot marker and reports whether it was new.
	Unlock(ctx context.Context, u Unlock) (bool, error)
	Unlocks(ctx context.Context, accountID string, kind UnlockKind) ([]Unlock, error)

	AppendEvolution(ctx context.Context, rec EvolutionRecord) error
	Evolutions(ctx context.Context, accountID string) ([]EvolutionRecord, error)
}

// Notifier delivers user-facing notifications. Notify must not block the
// caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
