package progression

import (
	"context"
	"fmt"

	"github.com/ghostline/ghostxp/internal/domain"
)

// One-shot reward amounts.
const (
	TutorialStepXP  = 5
	OnboardingXP    = 50
	FeatureUnlockXP = 20
	PurchaseXP      = 5
)

// OneShotResult reports a reward that can be granted only once.
// Granted is false when it had already been paid.
type OneShotResult struct {
	Granted bool        `json:"granted"`
	Reward  AwardResult `json:"reward"`
}

// CompleteTutorialStep pays the tutorial XP once per step.
func (e *Engine) CompleteTutorialStep(ctx context.Context, accountID, step string) (OneShotResult, error) {
	if step == "" {
		return OneShotResult{}, fmt.Errorf("%w: tutorial step is empty", domain.ErrInvalidArgument)
	}
	return e.oneShot(ctx, "complete_tutorial_step", accountID, domain.UnlockTutorial, step,
		domain.RewardBundle{XP: TutorialStepXP}, "Tutorial: "+step, domain.CatTutorial, nil)
}

// CompleteOnboarding pays the onboarding XP once.
func (e *Engine) CompleteOnboarding(ctx context.Context, accountID string) (OneShotResult, error) {
	return e.oneShot(ctx, "complete_onboarding", accountID, domain.UnlockOnboarding, "onboarding",
		domain.RewardBundle{XP: OnboardingXP}, "Completed onboarding", domain.CatSystem, nil)
}

// UnlockFeature unlocks a gated feature once. Pro features need a paid
// plan and every feature needs its minimum level.
func (e *Engine) UnlockFeature(ctx context.Context, accountID string, f domain.FeatureDef) (OneShotResult, error) {
	if f.Key == "" {
		return OneShotResult{}, fmt.Errorf("%w: feature key is empty", domain.ErrInvalidArgument)
	}
	name := f.Name
	if name == "" {
		name = f.Key
	}
	check := func(p domain.ProgressionProfile) error {
		if f.Pro && !p.PlanTier.IsPaid() {
			return fmt.Errorf("%w: %s is only available on a paid plan", domain.ErrPremiumRequired, name)
		}
		if p.Level < f.MinLevel {
			return fmt.Errorf("%w: %s needs level %d, have %d", domain.ErrRequirementNotMet, name, f.MinLevel, p.Level)
		}
		return nil
	}
	return e.oneShot(ctx, "unlock_feature", accountID, domain.UnlockFeature, f.Key,
		domain.RewardBundle{XP: FeatureUnlockXP}, "Unlocked feature: "+name, domain.CatFeatureUnlock,
		func(fx *effects, p domain.ProgressionProfile) error {
			if err := check(p); err != nil {
				return err
			}
			fx.notify(e.note(p.AccountID, domain.NotifyFeatureUnlock,
				"Feature unlocked!", name+" is now available.",
				map[string]string{"feature": f.Key}))
			return nil
		})
}

// oneShot grants reward the first time (kind, key) is seen for an account.
// pre runs before the marker is written and may veto the grant.
func (e *Engine) oneShot(ctx context.Context, op, accountID string, kind domain.UnlockKind, key string,
	r domain.RewardBundle, reason string, cat domain.XPCategory,
	pre func(fx *effects, p domain.ProgressionProfile) error) (OneShotResult, error) {
	if err := validAccount(accountID); err != nil {
		return OneShotResult{}, err
	}
	var res OneShotResult
	err := e.update(ctx, op, func(tx domain.Tx, fx *effects) error {
		res = OneShotResult{}
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		// Notes raised by pre are kept only when the reward is granted.
		pending := &effects{}
		if pre != nil {
			if err := pre(pending, p); err != nil {
				return err
			}
		}
		fresh, err := tx.Unlock(ctx, domain.Unlock{AccountID: accountID, Kind: kind, Key: key, UnlockedAt: e.clock()})
		if err != nil || !fresh {
			return err
		}
		res.Reward, err = e.reward(ctx, tx, fx, &p, r, reason, cat, "")
		if err != nil {
			return err
		}
		if err := e.saveProfile(ctx, tx, &p); err != nil {
			return err
		}
		fx.notes = append(fx.notes, pending.notes...)
		res.Granted = true
		res.Reward.Profile = p
		return nil
	})
	if err != nil {
		return OneShotResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TaskResult reports a task completion.
type TaskResult struct {
	Granted bool          `json:"granted"`
	Reward  AwardResult   `json:"reward"`
	Streak  TickResult    `json:"streak"`
	Quests  []QuestUpdate `json:"quests,omitempty"`
}

// CompleteTask pays a task's XP once per task id, counts it, ticks the
// productivity streak and advances productivity quests, atomically.
func (e *Engine) CompleteTask(ctx context.Context, accountID, taskID string, xp int64, cat domain.XPCategory) (TaskResult, error) {
	if err := validAccount(accountID); err != nil {
		return TaskResult{}, err
	}
	if taskID == "" {
		return TaskResult{}, fmt.Errorf("%w: task id is empty", domain.ErrInvalidArgument)
	}
	if xp < 0 {
		return TaskResult{}, fmt.Errorf("%w: task xp must not be negative", domain.ErrInvalidArgument)
	}
	if cat == "" {
		cat = domain.CatProductivity
	}
	if !cat.Valid() {
		return TaskResult{}, fmt.Errorf("%w: xp category %q", domain.ErrUnknownCategory, cat)
	}

	var res TaskResult
	err := e.update(ctx, "complete_task", func(tx domain.Tx, fx *effects) error {
		res = TaskResult{}
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		now := e.clock()
		fresh, err := tx.Unlock(ctx, domain.Unlock{AccountID: accountID, Kind: domain.UnlockTask, Key: taskID, UnlockedAt: now})
		if err != nil || !fresh {
			return err
		}

		if xp > 0 {
			if res.Reward, err = e.reward(ctx, tx, fx, &p, domain.RewardBundle{XP: xp}, "completed_task_"+string(cat), cat, ""); err != nil {
				return err
			}
		}
		p.TasksCompleted++
		if res.Streak, err = e.tick(ctx, tx, fx, accountID, domain.StreakProductivity, now); err != nil {
			return err
		}
		if res.Quests, err = e.recordActivity(ctx, tx, fx, &p, string(domain.CatProductivity), 1); err != nil {
			return err
		}
		if err := e.saveProfile(ctx, tx, &p); err != nil {
			return err
		}
		res.Granted = true
		res.Reward.NewTotal = p.TotalXP
		res.Reward.NewLevel = p.Level
		res.Reward.Profile = p
		return nil
	})
	if err != nil {
		return TaskResult{}, fmt.Errorf("complete task: %w", err)
	}
	return res, nil
}
