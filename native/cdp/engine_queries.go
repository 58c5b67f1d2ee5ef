package cdp

import (
	"math/big"

	"cdpcore/config"
	"cdpcore/decimal"
)

// GetPosition implements spec.md §6's GetPosition query.
func (e *Engine) GetPosition(basketID, owner string, positionID PositionID) (*Position, error) {
	positions, err := e.state.GetPositions(basketID, owner)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.ID == positionID {
			return p, nil
		}
	}
	return nil, errNonExistentPosition
}

// GetUserPositions implements spec.md §6's GetUserPositions query.
func (e *Engine) GetUserPositions(basketID, owner string) ([]*Position, error) {
	positions, err := e.state.GetPositions(basketID, owner)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, errNoUserPositions
	}
	return positions, nil
}

// GetBasket implements spec.md §6's GetBasket query.
func (e *Engine) GetBasket(basketID string) (*Basket, error) {
	return e.ensureBasket(basketID)
}

// GetBasketPositions returns every position an owner holds in a basket; for
// a full basket-wide enumeration a host typically iterates known owners
// externally and calls this per-owner, since State has no owner index.
func (e *Engine) GetBasketPositions(basketID, owner string) ([]*Position, error) {
	return e.state.GetPositions(basketID, owner)
}

// GetBasketDebtCaps implements spec.md §6's GetBasketDebtCaps query,
// returning the apportioned per-asset debt cap (spec.md §4.11).
func (e *Engine) GetBasketDebtCaps(basketID string, nowTs int64) (map[string]*big.Int, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	return e.apportionDebtCaps(basket, nowTs)
}

// GetCollateralInterest implements spec.md §6's GetCollateralInterest
// query: the effective per-asset borrow rate computed by accrual Phase 2
// (read-only — does not mutate basket state).
func (e *Engine) GetCollateralInterest(basketID string, nowTs int64) (map[string]decimal.Decimal, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	preview := basket.Clone()
	deltaT := nowTs - preview.CreditLastAccrued
	if deltaT < 0 {
		deltaT = 0
	}
	tick, err := e.accrueRepaymentPrice(preview, nowTs, deltaT)
	if err != nil {
		return nil, err
	}
	return e.accrueBorrowInterest(preview, deltaT, tick)
}

// GetCreditRate implements spec.md §6's GetCreditRate query: the basket's
// current repayment target price.
func (e *Engine) GetCreditRate(basketID string) (decimal.Decimal, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return decimal.Zero(), err
	}
	return basket.CreditPrice, nil
}

// GetBasketRedeemability implements spec.md §6's GetBasketRedeemability
// query: the redemption opt-in record for a single owner at a premium.
func (e *Engine) GetBasketRedeemability(basketID string, premium uint8, owner string) (*RedemptionInfo, error) {
	return e.state.GetRedemptionEntry(basketID, premium, owner)
}

// GetPositionInsolvency implements spec.md §6's GetPositionInsolvency
// query: whether the position is currently below max_LTV (liquidatable).
func (e *Engine) GetPositionInsolvency(basketID, owner string, positionID PositionID, nowTs int64) (bool, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return false, err
	}
	pos, err := e.GetPosition(basketID, owner, positionID)
	if err != nil {
		return false, err
	}
	return e.isInsolvent(basket, pos, nowTs, true)
}

// GetBasketBadDebt implements spec.md §6's GetBasketBadDebt query, restored
// from original_source/ per SPEC_FULL.md §4.
func (e *Engine) GetBasketBadDebt(basketID string) (*big.Int, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if basket.BadDebt == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(basket.BadDebt), nil
}

// Config implements spec.md §6's Config query.
func (e *Engine) Config() (*config.Config, error) {
	return e.state.GetConfig()
}
