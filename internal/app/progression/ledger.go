package progression

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ghostline/ghostxp/internal/domain"
)

// AwardResult reports the profile after an XP award.
type AwardResult struct {
	NewTotal  int64                     `json:"new_total"`
	LeveledUp bool                      `json:"leveled_up"`
	NewLevel  int                       `json:"new_level"`
	Evolved   bool                      `json:"evolved"`
	Profile   domain.ProgressionProfile `json:"profile"`
}

// AwardXP grants amount XP. The ledger append, total, level and the evolution
// gate are applied in one transaction.
func (e *Engine) AwardXP(ctx context.Context, accountID string, amount int64, reason string, cat domain.XPCategory) (AwardResult, error) {
	if amount <= 0 {
		return AwardResult{}, fmt.Errorf("%w: xp amount must be positive, got %d", domain.ErrInvalidArgument, amount)
	}
	return e.ApplyReward(ctx, accountID, domain.RewardBundle{XP: amount}, reason, cat)
}

// ApplyReward grants a bundle of XP, coins and an optional item atomically.
func (e *Engine) ApplyReward(ctx context.Context, accountID string, r domain.RewardBundle, reason string, cat domain.XPCategory) (AwardResult, error) {
	if err := validAccount(accountID); err != nil {
		return AwardResult{}, err
	}
	if !cat.Valid() {
		return AwardResult{}, fmt.Errorf("%w: xp category %q", domain.ErrUnknownCategory, cat)
	}
	if r.XP < 0 || r.Coins < 0 {
		return AwardResult{}, fmt.Errorf("%w: reward amounts must not be negative", domain.ErrInvalidArgument)
	}
	if r.IsZero() {
		return AwardResult{}, fmt.Errorf("%w: empty reward", domain.ErrInvalidArgument)
	}

	var res AwardResult
	err := e.update(ctx, "apply_reward", func(tx domain.Tx, fx *effects) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		res, err = e.reward(ctx, tx, fx, &p, r, reason, cat, "")
		if err != nil {
			return err
		}
		if err := e.saveProfile(ctx, tx, &p); err != nil {
			return err
		}
		res.Profile = p
		return nil
	})
	if err != nil {
		return AwardResult{}, fmt.Errorf("apply reward: %w", err)
	}
	return res, nil
}

// reward applies a bundle to p inside tx. The caller persists p.
func (e *Engine) reward(ctx context.Context, tx domain.Tx, fx *effects, p *domain.ProgressionProfile,
	r domain.RewardBundle, reason string, cat domain.XPCategory, questID string) (AwardResult, error) {
	startLevel := p.Level
	startStage := p.EvolutionStage

	if r.XP > 0 {
		if err := e.appendXP(ctx, tx, fx, p, r.XP, reason, cat, questID); err != nil {
			return AwardResult{}, err
		}
	}
	p.Coins += r.Coins
	if r.Item != "" {
		if _, err := tx.GrantItem(ctx, p.AccountID, r.Item, e.clock()); err != nil {
			return AwardResult{}, err
		}
	}
	if err := e.evolve(ctx, tx, fx, p); err != nil {
		return AwardResult{}, err
	}
	leveledUp := e.settleLevel(fx, p, startLevel)

	return AwardResult{
		NewTotal:  p.TotalXP,
		LeveledUp: leveledUp,
		NewLevel:  p.Level,
		Evolved:   p.EvolutionStage > startStage,
	}, nil
}

// appendXP writes one ledger row and moves the running total with it.
func (e *Engine) appendXP(ctx context.Context, tx domain.Tx, fx *effects, p *domain.ProgressionProfile,
	amount int64, reason string, cat domain.XPCategory, questID string) error {
	ev := domain.XPEvent{
		ID:        newID(),
		AccountID: p.AccountID,
		Amount:    amount,
		Reason:    reason,
		Category:  cat,
		QuestID:   questID,
		CreatedAt: e.clock(),
	}
	if err := tx.AppendXPEvent(ctx, ev); err != nil {
		return err
	}
	p.TotalXP += amount
	if amount > 0 {
		fx.addXP(cat, amount)
	}
	return nil
}

// settleLevel derives level fields from TotalXP. A level-up is recorded only
// when the level passes the account's peak, so regaining a level lost to a
// spend is silent.
func (e *Engine) settleLevel(fx *effects, p *domain.ProgressionProfile, before int) bool {
	p.Level = Level(p.TotalXP)
	p.XPToNextLevel = XPToNextLevel(p.Level)
	peak := max(p.PeakLevel, before)
	if p.Level <= peak {
		p.PeakLevel = peak
		return false
	}
	fx.levelUps += p.Level - peak
	p.PeakLevel = p.Level
	fx.notify(e.note(p.AccountID, domain.NotifyLevelUp,
		fmt.Sprintf("Level %d!", p.Level),
		fmt.Sprintf("You reached level %d.", p.Level),
		map[string]string{"level": strconv.Itoa(p.Level)}))
	e.log.Info("level up", zap.String("account", p.AccountID), zap.Int("level", p.Level))
	return true
}

func (e *Engine) saveProfile(ctx context.Context, tx domain.Tx, p *domain.ProgressionProfile) error {
	p.UpdatedAt = e.clock()
	return tx.UpdateProfile(ctx, p)
}

// ─── Spending ───────────────────────────────────────────────────────────────

// SpendResult reports balances after a spend.
type SpendResult struct {
	NewTotal int64 `json:"new_total"`
	Coins    int64 `json:"coins"`
	Level    int   `json:"level"`
}

// SpendXP removes XP through a negative ledger entry. It never takes the
// total below the threshold of the current evolution stage.
func (e *Engine) SpendXP(ctx context.Context, accountID string, amount int64, reason string) (SpendResult, error) {
	if err := validAccount(accountID); err != nil {
		return SpendResult{}, err
	}
	if amount <= 0 {
		return SpendResult{}, fmt.Errorf("%w: xp amount must be positive, got %d", domain.ErrInvalidArgument, amount)
	}
	var res SpendResult
	err := e.update(ctx, "spend_xp", func(tx domain.Tx, fx *effects) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		if err := e.spendXP(ctx, tx, fx, &p, amount, reason); err != nil {
			return err
		}
		if err := e.saveProfile(ctx, tx, &p); err != nil {
			return err
		}
		res = SpendResult{NewTotal: p.TotalXP, Coins: p.Coins, Level: p.Level}
		return nil
	})
	if err != nil {
		return SpendResult{}, fmt.Errorf("spend xp: %w", err)
	}
	return res, nil
}

func (e *Engine) spendXP(ctx context.Context, tx domain.Tx, fx *effects, p *domain.ProgressionProfile, amount int64, reason string) error {
	if p.TotalXP < amount {
		return fmt.Errorf("%w: have %d xp, need %d", domain.ErrInsufficientFunds, p.TotalXP, amount)
	}
	floor := StageInfo(p.EvolutionStage).XPThreshold
	if p.TotalXP-amount < floor {
		return fmt.Errorf("%w: spending %d xp would drop below the %d xp stage floor",
			domain.ErrInsufficientFunds, amount, floor)
	}
	if reason == "" {
		reason = "spend"
	}
	if err := e.appendXP(ctx, tx, fx, p, -amount, reason, domain.CatShop, ""); err != nil {
		return err
	}
	e.settleLevel(fx, p, p.Level)
	return nil
}

// SpendCoins removes coins. Fails with ErrInsufficientFunds without mutating.
func (e *Engine) SpendCoins(ctx context.Context, accountID string, amount int64) (SpendResult, error) {
	if err := validAccount(accountID); err != nil {
		return SpendResult{}, err
	}
	if amount <= 0 {
		return SpendResult{}, fmt.Errorf("%w: coin amount must be positive, got %d", domain.ErrInvalidArgument, amount)
	}
	var res SpendResult
	err := e.update(ctx, "spend_coins", func(tx domain.Tx, fx *effects) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		if p.Coins < amount {
			return fmt.Errorf("%w: have %d coins, need %d", domain.ErrInsufficientFunds, p.Coins, amount)
		}
		p.Coins -= amount
		if err := e.saveProfile(ctx, tx, &p); err != nil {
			return err
		}
		res = SpendResult{NewTotal: p.TotalXP, Coins: p.Coins, Level: p.Level}
		return nil
	})
	if err != nil {
		return SpendResult{}, fmt.Errorf("spend coins: %w", err)
	}
	return res, nil
}
