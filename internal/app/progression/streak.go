package progression

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ghostline/ghostxp/internal/domain"
)

// TickResult reports what a streak tick did.
type TickResult struct {
	Count          int           `json:"count"`
	BestStreak     int           `json:"best_streak"`
	WasIncremented bool          `json:"was_incremented"`
	WasReset       bool          `json:"was_reset"`
	Streak         domain.Streak `json:"streak"`
}

// streakMilestones trigger a notification when a count is reached.
var streakMilestones = map[int]bool{3: true, 7: true, 14: true, 30: true, 50: true, 100: true, 365: true}

// Tick advances a streak at now using calendar days in the engine timezone:
// same day is a no-op, the next day increments, a longer gap resets to 1.
func (e *Engine) Tick(ctx context.Context, accountID string, typ domain.StreakType, now time.Time) (TickResult, error) {
	if err := validAccount(accountID); err != nil {
		return TickResult{}, err
	}
	if typ == "" {
		return TickResult{}, fmt.Errorf("%w: streak type is empty", domain.ErrInvalidArgument)
	}
	if now.IsZero() {
		now = e.clock()
	}

	var res TickResult
	err := e.update(ctx, "tick", func(tx domain.Tx, fx *effects) error {
		if _, err := tx.Profile(ctx, accountID); err != nil {
			return err
		}
		var err error
		res, err = e.tick(ctx, tx, fx, accountID, typ, now)
		return err
	})
	if err != nil {
		return TickResult{}, fmt.Errorf("tick %s: %w", typ, err)
	}
	return res, nil
}

func (e *Engine) tick(ctx context.Context, tx domain.Tx, fx *effects, accountID string, typ domain.StreakType, now time.Time) (TickResult, error) {
	s, err := tx.Streak(ctx, accountID, typ)
	outcome := ""
	switch {
	case errors.Is(err, domain.ErrStreakNotFound):
		s = domain.Streak{AccountID: accountID, Type: typ, Count: 1, BestStreak: 1, LastUpdated: now, IsActive: true}
		outcome = "created"
	case err != nil:
		return TickResult{}, err
	default:
		days := domain.CalendarDaysBetween(s.LastUpdated, now, e.loc)
		switch {
		case days <= 0:
			// Already ticked today, or a clock running behind the last tick.
			fx.streakTicks = append(fx.streakTicks, streakOutcome{typ, "noop"})
			return TickResult{Count: s.Count, BestStreak: s.BestStreak, Streak: s}, nil
		case days == 1:
			s.Count++
			outcome = "incremented"
		default:
			s.Count = 1
			outcome = "reset"
		}
		s.BestStreak = max(s.BestStreak, s.Count)
		s.LastUpdated = now
		s.IsActive = true
	}

	if err := tx.SaveStreak(ctx, s); err != nil {
		return TickResult{}, err
	}
	fx.streakTicks = append(fx.streakTicks, streakOutcome{typ, outcome})
	if outcome == "incremented" && streakMilestones[s.Count] {
		fx.notify(e.note(accountID, domain.NotifyStreakMilestone,
			fmt.Sprintf("%d-day streak!", s.Count),
			fmt.Sprintf("You kept your %s streak for %d days.", typ, s.Count),
			map[string]string{"type": string(typ), "count": strconv.Itoa(s.Count)}))
	}

	return TickResult{
		Count:          s.Count,
		BestStreak:     s.BestStreak,
		WasIncremented: outcome != "reset",
		WasReset:       outcome == "reset",
		Streak:         s,
	}, nil
}

// Streaks lists the streaks of an account as seen at now. A streak whose
// last tick is more than one calendar day old reads as inactive; its stored
// count is reset by the next tick.
func (e *Engine) Streaks(ctx context.Context, accountID string, now time.Time) ([]domain.Streak, error) {
	if now.IsZero() {
		now = e.clock()
	}
	var out []domain.Streak
	err := e.read(ctx, accountID, func(tx domain.Tx) error {
		list, err := tx.Streaks(ctx, accountID)
		if err != nil {
			return err
		}
		for i := range list {
			list[i].IsActive = list[i].LiveAt(now, e.loc)
		}
		out = list
		return nil
	})
	return out, err
}
