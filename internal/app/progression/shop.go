package progression

import (
	"context"
	"fmt"

	"github.com/ghostline/ghostxp/internal/domain"
)

// PurchaseResult reports balances after a purchase.
type PurchaseResult struct {
	Item    string                    `json:"item"`
	Profile domain.ProgressionProfile `json:"profile"`
}

// Purchase buys a shop item with coins, grants it and pays the purchase XP
// bonus in one transaction. Purchases only ever decrement coins; items priced
// in XP are rejected and XP can only be removed through SpendXP.
func (e *Engine) Purchase(ctx context.Context, accountID string, item domain.ShopItem) (PurchaseResult, error) {
	if err := validAccount(accountID); err != nil {
		return PurchaseResult{}, err
	}
	if item.Name == "" || item.CoinPrice < 0 {
		return PurchaseResult{}, fmt.Errorf("%w: invalid shop item", domain.ErrInvalidArgument)
	}
	if item.XPPrice != 0 {
		return PurchaseResult{}, fmt.Errorf("%w: %s is priced in xp; purchases spend coins only",
			domain.ErrInvalidArgument, item.Name)
	}

	var res PurchaseResult
	err := e.update(ctx, "purchase", func(tx domain.Tx, fx *effects) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		if item.Premium && !p.PlanTier.IsPaid() {
			return fmt.Errorf("%w: %s", domain.ErrPremiumRequired, item.Name)
		}
		owned, err := tx.HasItem(ctx, accountID, item.Name)
		if err != nil {
			return err
		}
		if owned {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyOwned, item.Name)
		}
		if p.Coins < item.CoinPrice {
			return fmt.Errorf("%w: have %d coins, need %d", domain.ErrInsufficientFunds, p.Coins, item.CoinPrice)
		}
		p.Coins -= item.CoinPrice
		if _, err := e.reward(ctx, tx, fx, &p, domain.RewardBundle{XP: PurchaseXP, Item: item.Name},
			"Purchased: "+item.Name, domain.CatShop, ""); err != nil {
			return err
		}
		if err := e.saveProfile(ctx, tx, &p); err != nil {
			return err
		}
		res = PurchaseResult{Item: item.Name, Profile: p}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("purchase: %w", err)
	}
	return res, nil
}
