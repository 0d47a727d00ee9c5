package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghostline/ghostxp/internal/domain"
)

// EnsureAccount creates the progression profile of an identity on first
// sight and keeps plan tier and guest flag in sync afterwards.
func (e *Engine) EnsureAccount(ctx context.Context, id domain.Identity) (domain.ProgressionProfile, bool, error) {
	if err := validAccount(id.AccountID); err != nil {
		return domain.ProgressionProfile{}, false, err
	}
	if id.PlanTier == "" {
		id.PlanTier = domain.PlanFree
	}

	var (
		out     domain.ProgressionProfile
		created bool
	)
	err := e.update(ctx, "ensure_account", func(tx domain.Tx, _ *effects) error {
		created = false
		p, err := tx.Profile(ctx, id.AccountID)
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			now := e.clock()
			p = domain.ProgressionProfile{
				AccountID:      id.AccountID,
				Level:          1,
				PeakLevel:      1,
				XPToNextLevel:  XPToNextLevel(1),
				EvolutionStage: 1,
				EvolutionForm:  domain.FormBaby,
				PlanTier:       id.PlanTier,
				IsGuest:        id.IsGuest,
				Version:        1,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.InsertProfile(ctx, p); err != nil {
				if errors.Is(err, domain.ErrDuplicate) {
					// Lost a first-sight race; the retry finds the winner's row.
					return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
				}
				return err
			}
			created = true
		case err != nil:
			return err
		case p.PlanTier != id.PlanTier || p.IsGuest != id.IsGuest:
			p.PlanTier = id.PlanTier
			p.IsGuest = id.IsGuest
			if err := e.saveProfile(ctx, tx, &p); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.ProgressionProfile{}, false, fmt.Errorf("ensure account: %w", err)
	}
	return out, created, nil
}

// UpgradeGuest turns a guest account into a regular one.
func (e *Engine) UpgradeGuest(ctx context.Context, accountID string) (domain.ProgressionProfile, error) {
	return e.mutateProfile(ctx, "upgrade_guest", accountID, func(p *domain.ProgressionProfile) error {
		p.IsGuest = false
		return nil
	})
}

// SetAestheticScore records the appearance score used for ranking.
func (e *Engine) SetAestheticScore(ctx context.Context, accountID string, score int64) (domain.ProgressionProfile, error) {
	if score < 0 {
		return domain.ProgressionProfile{}, fmt.Errorf("%w: aesthetic score must not be negative", domain.ErrInvalidArgument)
	}
	return e.mutateProfile(ctx, "set_aesthetic", accountID, func(p *domain.ProgressionProfile) error {
		p.AestheticScore = score
		return nil
	})
}

func (e *Engine) mutateProfile(ctx context.Context, op, accountID string, fn func(p *domain.ProgressionProfile) error) (domain.ProgressionProfile, error) {
	if err := validAccount(accountID); err != nil {
		return domain.ProgressionProfile{}, err
	}
	var out domain.ProgressionProfile
	err := e.update(ctx, op, func(tx domain.Tx, _ *effects) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		if err := e.saveProfile(ctx, tx, &p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.ProgressionProfile{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetProfile returns the current profile.
func (e *Engine) GetProfile(ctx context.Context, accountID string) (domain.ProgressionProfile, error) {
	var p domain.ProgressionProfile
	err := e.read(ctx, accountID, func(tx domain.Tx) error {
		var err error
		p, err = tx.Profile(ctx, accountID)
		return err
	})
	return p, err
}

// History lists the newest XP events of an account.
func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]domain.XPEvent, error) {
	var events []domain.XPEvent
	err := e.read(ctx, accountID, func(tx domain.Tx) error {
		var err error
		events, err = tx.XPEvents(ctx, accountID, limit)
		return err
	})
	return events, err
}

// LedgerReport compares the running total with the ledger.
type LedgerReport struct {
	AccountID  string `json:"account_id"`
	TotalXP    int64  `json:"total_xp"`
	LedgerSum  int64  `json:"ledger_sum"`
	Level      int    `json:"level"`
	Consistent bool   `json:"consistent"`
}

// VerifyLedger recomputes the XP ledger of an account and checks the
// derived level against it.
func (e *Engine) VerifyLedger(ctx context.Context, accountID string) (LedgerReport, error) {
	var rep LedgerReport
	err := e.read(ctx, accountID, func(tx domain.Tx) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := tx.SumXP(ctx, accountID)
		if err != nil {
			return err
		}
		rep = LedgerReport{
			AccountID:  accountID,
			TotalXP:    p.TotalXP,
			LedgerSum:  sum,
			Level:      p.Level,
			Consistent: sum == p.TotalXP && p.Level == Level(p.TotalXP),
		}
		return nil
	})
	return rep, err
}

// read runs fn in a transaction after checking the account exists.
func (e *Engine) read(ctx context.Context, accountID string, fn func(tx domain.Tx) error) error {
	if err := validAccount(accountID); err != nil {
		return err
	}
	return e.update(ctx, "read", func(tx domain.Tx, _ *effects) error {
		if _, err := tx.Profile(ctx, accountID); err != nil {
			return err
		}
		return fn(tx)
	})
}
