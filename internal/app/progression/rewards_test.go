package progression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Accounts
// ═══════════════════════════════════════════════════════════════════════════

func TestEnsureAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.account(t, "acc-1")
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 1, p.EvolutionStage)
	assert.Equal(t, domain.FormBaby, p.EvolutionForm)
	assert.Equal(t, int64(100), p.XPToNextLevel)

	p, created, err := h.engine.EnsureAccount(ctx, domain.Identity{AccountID: "acc-1", PlanTier: domain.PlanPro})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.PlanPro, p.PlanTier)

	_, _, err = h.engine.EnsureAccount(ctx, domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUpgradeGuestAndAesthetic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.engine.EnsureAccount(ctx, domain.Identity{AccountID: "g-1", IsGuest: true})
	require.NoError(t, err)
	p, err := h.engine.UpgradeGuest(ctx, "g-1")
	require.NoError(t, err)
	assert.False(t, p.IsGuest)

	p, err = h.engine.SetAestheticScore(ctx, "g-1", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.AestheticScore)

	_, err = h.engine.SetAestheticScore(ctx, "g-1", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// ═══════════════════════════════════════════════════════════════════════════
// Badges
// ═══════════════════════════════════════════════════════════════════════════

func TestCheckBadges_GrantsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account(t, "acc-1")

	got, err := h.engine.CheckBadges(ctx, "acc-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = h.engine.AwardXP(ctx, "acc-1", 100, "seed", domain.CatSystem)
	require.NoError(t, err)

	got, err = h.engine.CheckBadges(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first_steps", got[0].Badge.ID)
	assert.Equal(t, int64(110), h.profile(t, "acc-1").TotalXP)

	got, err = h.engine.CheckBadges(ctx, "acc-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	owned, err := h.engine.Badges(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Len(t, h.notes.ofType(domain.NotifyBadgeUnlocked), 1)
	h.requireLedgerConsistent(t, "acc-1")
}

func TestCheckBadges_Cascade(t *testing.T) {
	h := newHarness(t, WithBadges([]domain.BadgeDef{
		{ID: "a", Name: "A", Requirement: domain.ReqXP, Value: 50, RewardXP: 50},
		{ID: "b", Name: "B", Requirement: domain.ReqXP, Value: 100, RewardXP: 0},
	}))
	ctx := context.Background()
	h.account(t, "acc-1")

	_, err := h.engine.AwardXP(ctx, "acc-1", 60, "seed", domain.CatSystem)
	require.NoError(t, err)
	got, err := h.engine.CheckBadges(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, got, 2, "badge XP satisfies the next badge")
}

func TestUnlockBadge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account(t, "acc-1")

	_, _, err := h.engine.UnlockBadge(ctx, "acc-1", "week_warrior")
	assert.ErrorIs(t, err, domain.ErrRequirementNotMet)
	_, _, err = h.engine.UnlockBadge(ctx, "acc-1", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for i := 0; i < 7; i++ {
		_, err := h.engine.Tick(ctx, "acc-1", domain.StreakDailyLogin, monday.AddDate(0, 0, i))
		require.NoError(t, err)
	}
	u, fresh, err := h.engine.UnlockBadge(ctx, "acc-1", "week_warrior")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, int64(50), u.Reward.NewTotal)

	_, fresh, err = h.engine.UnlockBadge(ctx, "acc-1", "week_warrior")
	require.NoError(t, err)
	assert.False(t, fresh)
}

// ═══════════════════════════════════════════════════════════════════════════
// One-shot rewards
// ═══════════════════════════════════════════════════════════════════════════

func TestOneShotRewards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account(t, "acc-1")

	res, err := h.engine.CompleteOnboarding(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, res.Granted)
	res, err = h.engine.CompleteOnboarding(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, res.Granted)

	for _, step := range []string{"intro", "quests", "intro"} {
		_, err := h.engine.CompleteTutorialStep(ctx, "acc-1", step)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(OnboardingXP+2*TutorialStepXP), h.profile(t, "acc-1").TotalXP)

	_, err = h.engine.CompleteTutorialStep(ctx, "acc-1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	h.requireLedgerConsistent(t, "acc-1")
}

func TestUnlockFeature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account(t, "acc-1")

	pro := domain.FeatureDef{Key: "ghost_voice", Name: "Ghost Voice", Pro: true}
	_, err := h.engine.UnlockFeature(ctx, "acc-1", pro)
	assert.ErrorIs(t, err, domain.ErrPremiumRequired)

	gated := domain.FeatureDef{Key: "themes", Name: "Themes", MinLevel: 2}
	_, err = h.engine.UnlockFeature(ctx, "acc-1", gated)
	assert.ErrorIs(t, err, domain.ErrRequirementNotMet)
	assert.Empty(t, h.notes.ofType(domain.NotifyFeatureUnlock))

	_, err = h.engine.AwardXP(ctx, "acc-1", 100, "seed", domain.CatSystem)
	require.NoError(t, err)
	res, err := h.engine.UnlockFeature(ctx, "acc-1", gated)
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, int64(100+FeatureUnlockXP), res.Reward.Profile.TotalXP)

	res, err = h.engine.UnlockFeature(ctx, "acc-1", gated)
	require.NoError(t, err)
	assert.False(t, res.Granted)
	assert.Len(t, h.notes.ofType(domain.NotifyFeatureUnlock), 1)
}

// ═══════════════════════════════════════════════════════════════════════════
// Tasks
// ═══════════════════════════════════════════════════════════════════════════

func TestCompleteTask(t *testing.T) {
	h := newHarness(t, WithQuestCatalog(testDaily, testWeekly), WithQuestCounts(3, 1))
	ctx := context.Background()
	h.account(t, "acc-1")
	_, err := h.engine.CreateDailyQuests(ctx, "acc-1")
	require.NoError(t, err)

	res, err := h.engine.CompleteTask(ctx, "acc-1", "task-1", 10, "")
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, 1, res.Streak.Count)
	require.Len(t, res.Quests, 1)
	assert.Equal(t, 1, res.Quests[0].Quest.Progress)

	dup, err := h.engine.CompleteTask(ctx, "acc-1", "task-1", 10, "")
	require.NoError(t, err)
	assert.False(t, dup.Granted)

	p := h.profile(t, "acc-1")
	assert.Equal(t, int64(10), p.TotalXP)
	assert.Equal(t, int64(1), p.TasksCompleted)

	_, err = h.engine.CompleteTask(ctx, "acc-1", "task-2", 10, domain.XPCategory("bogus"))
	assert.ErrorIs(t, err, domain.ErrUnknownCategory)
	h.requireLedgerConsistent(t, "acc-1")
}

// ═══════════════════════════════════════════════════════════════════════════
// Shop
// ═══════════════════════════════════════════════════════════════════════════

func TestPurchase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account(t, "acc-1")

	hat := domain.ShopItem{Name: "Top Hat", CoinPrice: 20}
	_, err := h.engine.Purchase(ctx, "acc-1", hat)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = h.engine.ApplyReward(ctx, "acc-1", domain.RewardBundle{Coins: 50}, "gift", domain.CatSystem)
	require.NoError(t, err)

	res, err := h.engine.Purchase(ctx, "acc-1", hat)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.Profile.Coins)
	assert.Equal(t, int64(PurchaseXP), res.Profile.TotalXP)

	_, err = h.engine.Purchase(ctx, "acc-1", hat)
	assert.ErrorIs(t, err, domain.ErrAlreadyOwned)

	crown := domain.ShopItem{Name: "Crown", CoinPrice: 1, Premium: true}
	_, err = h.engine.Purchase(ctx, "acc-1", crown)
	assert.ErrorIs(t, err, domain.ErrPremiumRequired)

	assert.Equal(t, int64(30), h.profile(t, "acc-1").Coins, "failed purchases change nothing")
	h.requireLedgerConsistent(t, "acc-1")
}

func TestPurchase_RejectsXPPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account(t, "acc-1")
	_, err := h.engine.ApplyReward(ctx, "acc-1", domain.RewardBundle{XP: 150, Coins: 50}, "seed", domain.CatSystem)
	require.NoError(t, err)

	_, err = h.engine.Purchase(ctx, "acc-1", domain.ShopItem{Name: "Glow", CoinPrice: 10, XPPrice: 60})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	p := h.profile(t, "acc-1")
	assert.Equal(t, int64(150), p.TotalXP)
	assert.Equal(t, int64(50), p.Coins)
	h.requireLedgerConsistent(t, "acc-1")
}

func TestLevelUp_NotAnnouncedTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.account(t, "acc-1")

	res, err := h.engine.AwardXP(ctx, "acc-1", 100, "seed", domain.CatSystem)
	require.NoError(t, err)
	require.True(t, res.LeveledUp)
	require.Len(t, h.notes.ofType(domain.NotifyLevelUp), 1)

	spent, err := h.engine.SpendXP(ctx, "acc-1", 3, "sticker")
	require.NoError(t, err)
	assert.Equal(t, 1, spent.Level)

	// Regaining level 2 is silent.
	res, err = h.engine.AwardXP(ctx, "acc-1", 5, "regain", domain.CatSystem)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewLevel)
	assert.False(t, res.LeveledUp)
	assert.Len(t, h.notes.ofType(domain.NotifyLevelUp), 1)

	p := h.profile(t, "acc-1")
	assert.Equal(t, 2, p.PeakLevel)

	// Passing the peak announces again.
	res, err = h.engine.AwardXP(ctx, "acc-1", 100, "more", domain.CatSystem)
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 3, res.NewLevel)
	assert.Len(t, h.notes.ofType(domain.NotifyLevelUp), 2)
	assert.Equal(t, 3, h.profile(t, "acc-1").PeakLevel)
}
