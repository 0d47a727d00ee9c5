package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline/ghostxp/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(t.TempDir())
	require.NoError(t, err, "OpenSQLite()")
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func seedProfile(t *testing.T, db *DB, id string, guest bool) {
	t.Helper()
	err := db.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.InsertProfile(context.Background(), domain.ProgressionProfile{
			AccountID: id, Level: 1, XPToNextLevel: 100, EvolutionStage: 1,
			EvolutionForm: domain.FormBaby, PlanTier: domain.PlanFree, IsGuest: guest,
			CreatedAt: t0, UpdatedAt: t0,
		})
	})
	require.NoError(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Lifecycle
// ═══════════════════════════════════════════════════════════════════════════

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenSQLite(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(dir, "state.db"))
	assert.NoError(t, err, "state.db should exist")
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenSQLite(dir)
	require.NoError(t, err)
	seedProfile(t, db, "acc-1", false)
	require.NoError(t, db.Close())

	db, err = OpenSQLite(dir)
	require.NoError(t, err, "migrations must be idempotent")
	defer db.Close()
	err = db.WithinTx(context.Background(), func(tx domain.Tx) error {
		_, err := tx.Profile(context.Background(), "acc-1")
		return err
	})
	assert.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// ═══════════════════════════════════════════════════════════════════════════
// Profiles
// ═══════════════════════════════════════════════════════════════════════════

func TestProfile_NotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.WithinTx(context.Background(), func(tx domain.Tx) error {
		_, err := tx.Profile(context.Background(), "ghost")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertProfile_Duplicate(t *testing.T) {
	db := newTestDB(t)
	seedProfile(t, db, "acc-1", false)
	err := db.WithinTx(context.Background(), func(tx domain.Tx) error {
		return tx.InsertProfile(context.Background(), domain.ProgressionProfile{
			AccountID: "acc-1", Level: 1, CreatedAt: t0, UpdatedAt: t0,
		})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestUpdateProfile_CompareAndSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	var stale domain.ProgressionProfile
	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		p, err := tx.Profile(ctx, "acc-1")
		if err != nil {
			return err
		}
		stale = p
		assert.Equal(t, 1, p.PeakLevel, "peak defaults to the current level")
		p.TotalXP = 40
		p.Coins = 7
		p.PeakLevel = 4
		if err := tx.UpdateProfile(ctx, &p); err != nil {
			return err
		}
		assert.Equal(t, stale.Version+1, p.Version)
		return nil
	})
	require.NoError(t, err)

	err = db.WithinTx(ctx, func(tx domain.Tx) error {
		stale.TotalXP = 999
		return tx.UpdateProfile(ctx, &stale)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	err = db.WithinTx(ctx, func(tx domain.Tx) error {
		p, err := tx.Profile(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(40), p.TotalXP)
		assert.Equal(t, int64(7), p.Coins)
		assert.Equal(t, 4, p.PeakLevel)
		return nil
	})
	require.NoError(t, err)
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.AppendXPEvent(ctx, domain.XPEvent{
			ID: "e1", AccountID: "acc-1", Amount: 10, Category: domain.CatSystem, CreatedAt: t0,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = db.WithinTx(ctx, func(tx domain.Tx) error {
		sum, err := tx.SumXP(ctx, "acc-1")
		assert.Zero(t, sum)
		return err
	})
	require.NoError(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger, Streaks, Quests
// ═══════════════════════════════════════════════════════════════════════════

func TestXPEvents_OrderAndSum(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		for i, amt := range []int64{50, 60, -10} {
			e := domain.XPEvent{
				ID: fmt.Sprintf("e%d", i), AccountID: "acc-1", Amount: amt, Reason: "test",
				Category: domain.CatProductivity, CreatedAt: t0.Add(time.Duration(i) * time.Minute),
			}
			if err := tx.AppendXPEvent(ctx, e); err != nil {
				return err
			}
		}
		sum, err := tx.SumXP(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), sum)

		events, err := tx.XPEvents(ctx, "acc-1", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "e2", events[0].ID)
		assert.Equal(t, domain.CatProductivity, events[0].Category)
		return nil
	})
	require.NoError(t, err)
}

func TestStreak_Upsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		_, err := tx.Streak(ctx, "acc-1", domain.StreakStudy)
		assert.ErrorIs(t, err, domain.ErrStreakNotFound)

		s := domain.Streak{AccountID: "acc-1", Type: domain.StreakStudy, Count: 1, BestStreak: 1, LastUpdated: t0, IsActive: true}
		require.NoError(t, tx.SaveStreak(ctx, s))
		s.Count, s.BestStreak = 2, 2
		require.NoError(t, tx.SaveStreak(ctx, s))

		got, err := tx.Streak(ctx, "acc-1", domain.StreakStudy)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Count)
		assert.True(t, got.IsActive)
		assert.True(t, got.LastUpdated.Equal(t0))
		return nil
	})
	require.NoError(t, err)
}

func TestQuest_BatchUniqueness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	q := domain.Quest{
		ID: "q1", AccountID: "acc-1", Type: domain.QuestDaily, Title: "Hydrate", Target: 8,
		Status: domain.QuestActive, BatchKey: "daily:2026-03-10", Slot: 0,
		CreatedAt: t0, ExpiresAt: t0.Add(15 * time.Hour),
	}
	require.NoError(t, db.WithinTx(ctx, func(tx domain.Tx) error { return tx.InsertQuest(ctx, q) }))

	dup := q
	dup.ID = "q2"
	err := db.WithinTx(ctx, func(tx domain.Tx) error { return tx.InsertQuest(ctx, dup) })
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	// Special quests carry no batch key and are not constrained.
	for _, id := range []string{"s1", "s2"} {
		sq := q
		sq.ID, sq.Type, sq.BatchKey = id, domain.QuestSpecial, ""
		require.NoError(t, db.WithinTx(ctx, func(tx domain.Tx) error { return tx.InsertQuest(ctx, sq) }))
	}
}

func TestSaveQuest_TerminalGuard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	q := domain.Quest{
		ID: "q1", AccountID: "acc-1", Type: domain.QuestSpecial, Title: "Event", Target: 1,
		Status: domain.QuestActive, CreatedAt: t0, ExpiresAt: t0.Add(time.Hour),
	}
	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertQuest(ctx, q); err != nil {
			return err
		}
		done := t0.Add(time.Minute)
		q.Progress, q.Status, q.CompletedAt = 1, domain.QuestCompleted, &done
		if err := tx.SaveQuest(ctx, q); err != nil {
			return err
		}
		// A second write against a terminal quest is refused.
		assert.ErrorIs(t, tx.SaveQuest(ctx, q), domain.ErrInvalidState)

		got, err := tx.Quest(ctx, "acc-1", "q1")
		require.NoError(t, err)
		assert.Equal(t, domain.QuestCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		return nil
	})
	require.NoError(t, err)
}

func TestExpireQuests(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		for i, exp := range []time.Time{t0.Add(-time.Minute), t0.Add(time.Hour)} {
			q := domain.Quest{
				ID: fmt.Sprintf("q%d", i), AccountID: "acc-1", Type: domain.QuestSpecial,
				Title: "x", Target: 1, Status: domain.QuestActive, CreatedAt: t0.Add(-time.Hour), ExpiresAt: exp,
			}
			if err := tx.InsertQuest(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	n, err := db.ExpireQuests(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.ExpireQuests(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n, "sweep is idempotent")
}

// ═══════════════════════════════════════════════════════════════════════════
// Inventory, Unlocks, Evolutions
// ═══════════════════════════════════════════════════════════════════════════

func TestGrantItemAndUnlock_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		added, err := tx.GrantItem(ctx, "acc-1", "Neon Hat", t0)
		require.NoError(t, err)
		assert.True(t, added)
		added, err = tx.GrantItem(ctx, "acc-1", "Neon Hat", t0)
		require.NoError(t, err)
		assert.False(t, added)
		owned, err := tx.HasItem(ctx, "acc-1", "Neon Hat")
		require.NoError(t, err)
		assert.True(t, owned)

		u := domain.Unlock{AccountID: "acc-1", Kind: domain.UnlockBadge, Key: "first_steps", UnlockedAt: t0}
		fresh, err := tx.Unlock(ctx, u)
		require.NoError(t, err)
		assert.True(t, fresh)
		fresh, err = tx.Unlock(ctx, u)
		require.NoError(t, err)
		assert.False(t, fresh)

		list, err := tx.Unlocks(ctx, "acc-1", domain.UnlockBadge)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestEvolutions_Ordered(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		for _, to := range []int{3, 2} {
			rec := domain.EvolutionRecord{
				ID: fmt.Sprintf("ev%d", to), AccountID: "acc-1", FromStage: to - 1, ToStage: to,
				Trigger: "xp_threshold", CreatedAt: t0,
			}
			if err := tx.AppendEvolution(ctx, rec); err != nil {
				return err
			}
		}
		recs, err := tx.Evolutions(ctx, "acc-1")
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, 2, recs[0].ToStage)
		return nil
	})
	require.NoError(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard & Notifications
// ═══════════════════════════════════════════════════════════════════════════

func TestRankSources_SkipsGuests(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)
	seedProfile(t, db, "guest", true)
	require.NoError(t, db.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.SaveStreak(ctx, domain.Streak{AccountID: "acc-1", Type: domain.StreakDailyLogin, Count: 3, BestStreak: 3, LastUpdated: t0, IsActive: true})
	}))

	srcs, err := db.RankSources(ctx)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, "acc-1", srcs[0].AccountID)
	require.Len(t, srcs[0].Streaks, 1)
	assert.Equal(t, 3, srcs[0].Streaks[0].Count)
}

func TestLeaderboard_SaveReplacesSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := make([]domain.LeaderboardEntry, 450)
	for i := range first {
		first[i] = domain.LeaderboardEntry{AccountID: fmt.Sprintf("a%03d", i), Score: int64(1000 - i), Rank: i + 1, ComputedAt: t0}
	}
	require.NoError(t, db.SaveLeaderboard(ctx, domain.BoardXP, first))

	top, err := db.LoadLeaderboard(ctx, domain.BoardXP, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "a000", top[0].AccountID)

	second := []domain.LeaderboardEntry{{AccountID: "z", Score: 5, Rank: 1, ComputedAt: t0}}
	require.NoError(t, db.SaveLeaderboard(ctx, domain.BoardXP, second))
	all, err := db.LoadLeaderboard(ctx, domain.BoardXP, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	e, err := db.LeaderboardEntry(ctx, domain.BoardXP, "z")
	require.NoError(t, err)
	assert.Equal(t, 1, e.Rank)
	_, err = db.LeaderboardEntry(ctx, domain.BoardXP, "a000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLeaderboard_SaveWithConcurrentProfileWrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProfile(t, db, "acc-1", false)

	entries := make([]domain.LeaderboardEntry, 3000)
	for i := range entries {
		entries[i] = domain.LeaderboardEntry{AccountID: fmt.Sprintf("a%04d", i), Score: int64(5000 - i), Rank: i + 1, ComputedAt: t0}
	}

	saved := make(chan error, 1)
	go func() { saved <- db.SaveLeaderboard(ctx, domain.BoardXP, entries) }()

	err := db.WithinTx(ctx, func(tx domain.Tx) error {
		p, err := tx.Profile(ctx, "acc-1")
		if err != nil {
			return err
		}
		p.TotalXP = 25
		return tx.UpdateProfile(ctx, &p)
	})
	require.NoError(t, err)
	require.NoError(t, <-saved)

	all, err := db.LoadLeaderboard(ctx, domain.BoardXP, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3000)
}

func TestNotifications_Inbox(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n := domain.Notification{
		ID: "n1", AccountID: "acc-1", Type: domain.NotifyLevelUp, Title: "Level 2",
		Data: map[string]string{"level": "2"}, CreatedAt: t0,
	}
	require.NoError(t, db.InsertNotification(ctx, n))

	inbox, err := db.ListNotifications(ctx, "acc-1", 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "2", inbox[0].Data["level"])
	assert.False(t, inbox[0].Shown)

	require.NoError(t, db.MarkNotificationShown(ctx, "acc-1", "n1"))
	assert.ErrorIs(t, db.MarkNotificationShown(ctx, "other", "n1"), domain.ErrNotFound)
}

// ═══════════════════════════════════════════════════════════════════════════
// Dialect
// ═══════════════════════════════════════════════════════════════════════════

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y = ?`
	assert.Equal(t, q, dialectSQLite.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y = $2`, dialectPostgres.rebind(q))
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("GHOSTXP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GHOSTXP_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, Options{Driver: DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	defer db.Close()

	id := fmt.Sprintf("pg-%d", time.Now().UnixNano())
	require.NoError(t, db.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.InsertProfile(ctx, domain.ProgressionProfile{
			AccountID: id, Level: 1, XPToNextLevel: 100, EvolutionStage: 1,
			EvolutionForm: domain.FormBaby, PlanTier: domain.PlanFree, CreatedAt: t0, UpdatedAt: t0,
		})
	}))
	err = db.WithinTx(ctx, func(tx domain.Tx) error {
		p, err := tx.Profile(ctx, id)
		if err != nil {
			return err
		}
		p.TotalXP = 10
		return tx.UpdateProfile(ctx, &p)
	})
	require.NoError(t, err)
}
