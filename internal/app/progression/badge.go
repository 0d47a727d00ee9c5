package progression

import (
	"context"
	"fmt"

	"github.com/ghostline/ghostxp/internal/domain"
)

// BadgeCatalog returns the default badges.
func BadgeCatalog() []domain.BadgeDef {
	return []domain.BadgeDef{
		{ID: "first_steps", Name: "First Steps", Icon: "👣", Requirement: domain.ReqXP, Value: 100, RewardXP: 10},
		{ID: "rising_spirit", Name: "Rising Spirit", Icon: "✨", Requirement: domain.ReqLevel, Value: 5, RewardXP: 25},
		{ID: "week_warrior", Name: "Week Warrior", Icon: "🔥", Requirement: domain.ReqStreak, Value: 7, RewardXP: 50},
		{ID: "quest_hunter", Name: "Quest Hunter", Icon: "🗺️", Requirement: domain.ReqQuestsCompleted, Value: 10, RewardXP: 50},
		{ID: "task_slayer", Name: "Task Slayer", Icon: "⚔️", Requirement: domain.ReqTasksCompleted, Value: 50, RewardXP: 75},
		{ID: "xp_legend", Name: "XP Legend", Icon: "👑", Requirement: domain.ReqXP, Value: 10000, RewardXP: 200},
	}
}

// BadgeUnlock is a badge newly granted by a check.
type BadgeUnlock struct {
	Badge  domain.BadgeDef `json:"badge"`
	Reward AwardResult     `json:"reward"`
}

// CheckBadges unlocks every badge whose requirement is now met and pays its
// XP. Each badge is granted at most once per account.
func (e *Engine) CheckBadges(ctx context.Context, accountID string) ([]BadgeUnlock, error) {
	if err := validAccount(accountID); err != nil {
		return nil, err
	}
	var out []BadgeUnlock
	err := e.update(ctx, "check_badges", func(tx domain.Tx, fx *effects) error {
		out = nil
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		// Badge XP can satisfy further badges, so evaluate until stable.
		for {
			stats, err := e.badgeStats(ctx, tx, p)
			if err != nil {
				return err
			}
			granted := false
			for _, b := range e.badges {
				if !b.Met(stats) {
					continue
				}
				u, fresh, err := e.grantBadge(ctx, tx, fx, &p, b)
				if err != nil {
					return err
				}
				if fresh {
					out = append(out, u)
					granted = true
				}
			}
			if !granted {
				break
			}
		}
		if len(out) == 0 {
			return nil
		}
		return e.saveProfile(ctx, tx, &p)
	})
	if err != nil {
		return nil, fmt.Errorf("check badges: %w", err)
	}
	return out, nil
}

// UnlockBadge grants one badge, or fails with ErrRequirementNotMet.
// Unlocking an owned badge is a no-op that returns ok=false.
func (e *Engine) UnlockBadge(ctx context.Context, accountID, badgeID string) (BadgeUnlock, bool, error) {
	if err := validAccount(accountID); err != nil {
		return BadgeUnlock{}, false, err
	}
	var def *domain.BadgeDef
	for i := range e.badges {
		if e.badges[i].ID == badgeID {
			def = &e.badges[i]
			break
		}
	}
	if def == nil {
		return BadgeUnlock{}, false, fmt.Errorf("%w: %s", domain.ErrBadgeNotFound, badgeID)
	}

	var (
		out   BadgeUnlock
		fresh bool
	)
	err := e.update(ctx, "unlock_badge", func(tx domain.Tx, fx *effects) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		stats, err := e.badgeStats(ctx, tx, p)
		if err != nil {
			return err
		}
		if !def.Met(stats) {
			return fmt.Errorf("%w: badge %s needs %s >= %d", domain.ErrRequirementNotMet, def.ID, def.Requirement, def.Value)
		}
		out, fresh, err = e.grantBadge(ctx, tx, fx, &p, *def)
		if err != nil || !fresh {
			return err
		}
		return e.saveProfile(ctx, tx, &p)
	})
	if err != nil {
		return BadgeUnlock{}, false, fmt.Errorf("unlock badge: %w", err)
	}
	return out, fresh, nil
}

// Badges lists the badge ids an account has unlocked.
func (e *Engine) Badges(ctx context.Context, accountID string) ([]domain.Unlock, error) {
	var out []domain.Unlock
	err := e.read(ctx, accountID, func(tx domain.Tx) error {
		var err error
		out, err = tx.Unlocks(ctx, accountID, domain.UnlockBadge)
		return err
	})
	return out, err
}

func (e *Engine) grantBadge(ctx context.Context, tx domain.Tx, fx *effects, p *domain.ProgressionProfile, b domain.BadgeDef) (BadgeUnlock, bool, error) {
	fresh, err := tx.Unlock(ctx, domain.Unlock{
		AccountID: p.AccountID, Kind: domain.UnlockBadge, Key: b.ID, UnlockedAt: e.clock(),
	})
	if err != nil || !fresh {
		return BadgeUnlock{}, false, err
	}
	u := BadgeUnlock{Badge: b}
	if b.RewardXP > 0 {
		u.Reward, err = e.reward(ctx, tx, fx, p, domain.RewardBundle{XP: b.RewardXP},
			"Unlocked badge: "+b.Name, domain.CatBadge, "")
		if err != nil {
			return BadgeUnlock{}, false, err
		}
	}
	fx.notify(e.note(p.AccountID, domain.NotifyBadgeUnlocked,
		"Badge unlocked!", fmt.Sprintf("%s %s", b.Icon, b.Name),
		map[string]string{"badge": b.ID}))
	return u, true, nil
}

func (e *Engine) badgeStats(ctx context.Context, tx domain.Tx, p domain.ProgressionProfile) (domain.BadgeStats, error) {
	streaks, err := tx.Streaks(ctx, p.AccountID)
	if err != nil {
		return domain.BadgeStats{}, err
	}
	best := 0
	for _, s := range streaks {
		best = max(best, s.Count)
	}
	return domain.BadgeStats{
		TotalXP:         p.TotalXP,
		Level:           p.Level,
		StreakDays:      best,
		QuestsCompleted: p.QuestsCompleted,
		TasksCompleted:  p.TasksCompleted,
	}, nil
}
