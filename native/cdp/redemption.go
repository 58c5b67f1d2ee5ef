package cdp

import (
	"math/big"

	"cdpcore/assets"
	"cdpcore/decimal"
)

// EditRedeemability implements spec.md §4.10's opt-in edit: validates the
// premium and repayment fraction, derives remaining_loan_repayment from the
// position's current credit_amount, and maintains the basket's premium-bucket
// traversal index. An owner carries at most one active opt-in at a time;
// editing moves it (and, if present, its prior bucket membership) to the new
// premium.
func (e *Engine) EditRedeemability(basketID, owner string, positionID PositionID, premium uint8, maxLoanRepaymentFraction decimal.Decimal, restrictedAssets []assets.AssetRef, nowTs int64) error {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return err
	}
	if err := e.guardFrozen(basket); err != nil {
		return err
	}
	if premium >= 100 {
		return errPremiumOutOfRange
	}
	if maxLoanRepaymentFraction.GreaterThan(decimal.One()) || maxLoanRepaymentFraction.Sign() < 0 {
		return errInvalidAmount
	}
	for _, ref := range restrictedAssets {
		if basket.FindCollateralType(ref) == nil {
			return errInvalidCollateral
		}
	}

	pos, positions, err := e.ensurePosition(basket, owner, &positionID, false)
	if err != nil {
		return err
	}
	if err := e.accrue(basket, pos, nowTs); err != nil {
		return err
	}

	if err := e.removeRedemptionOptIn(basket, owner); err != nil {
		return err
	}

	remaining := maxLoanRepaymentFraction.MulInt(pos.CreditAmount)
	if remaining.Sign() <= 0 {
		pos.Redemption = nil
	} else {
		info := &RedemptionInfo{
			Premium:                    premium,
			RemainingLoanRepayment:     remaining,
			RestrictedCollateralAssets: append([]assets.AssetRef(nil), restrictedAssets...),
		}
		pos.Redemption = info
		if basket.RedemptionIndex == nil {
			basket.RedemptionIndex = make(map[uint8][]string)
		}
		basket.RedemptionIndex[premium] = append(basket.RedemptionIndex[premium], owner)
		if err := e.state.PutRedemptionEntry(basketID, premium, owner, info); err != nil {
			return err
		}
	}

	if err := e.state.PutBasket(basket); err != nil {
		return err
	}
	return e.savePositions(basket, owner, positions)
}

// removeRedemptionOptIn drops owner from whichever bucket currently holds it
// (an owner appears in at most one, but the scan is defensive) and deletes
// the persisted entry.
func (e *Engine) removeRedemptionOptIn(basket *Basket, owner string) error {
	for premium, owners := range basket.RedemptionIndex {
		for i, o := range owners {
			if o != owner {
				continue
			}
			basket.RedemptionIndex[premium] = append(owners[:i:i], owners[i+1:]...)
			if err := e.state.DeleteRedemptionEntry(basket.BasketID, premium, owner); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// RedeemCollateral implements spec.md §4.10's RedeemCollateral entrypoint:
// ascending-premium, insertion-order traversal of opted-in positions,
// pro-rata collateral payout per redeemed unit of credit. maxCollateralPremium,
// when non-nil, bounds the buckets the redeemer will accept.
func (e *Engine) RedeemCollateral(basketID, redeemer string, creditAmount *big.Int, maxCollateralPremium *uint8, nowTs int64) (map[string]*big.Int, *big.Int, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.guardFrozen(basket); err != nil {
		return nil, nil, err
	}
	if creditAmount == nil || creditAmount.Sign() <= 0 {
		return nil, nil, errInvalidAmount
	}
	if _, _, err := e.accrueBasket(basket, nowTs); err != nil {
		return nil, nil, err
	}

	refunds := make(map[string]*big.Int)
	remaining := new(big.Int).Set(creditAmount)
	touchedOwners := make(map[string]bool)

	for premium := uint8(0); premium < 100 && remaining.Sign() > 0; premium++ {
		if maxCollateralPremium != nil && premium > *maxCollateralPremium {
			break
		}
		bucket := append([]string(nil), basket.RedemptionIndex[premium]...)
		for _, owner := range bucket {
			if remaining.Sign() <= 0 {
				break
			}
			repaid, err := e.redeemFromOwner(basket, owner, premium, remaining, refunds, nowTs)
			if err != nil {
				return nil, nil, err
			}
			if repaid.Sign() > 0 {
				remaining.Sub(remaining, repaid)
				touchedOwners[owner] = true
			}
		}
	}

	consumed := new(big.Int).Sub(creditAmount, remaining)
	if consumed.Sign() == 0 {
		return nil, nil, errNoRedemptionsAvailable
	}

	if err := e.state.PutBasket(basket); err != nil {
		return nil, nil, err
	}
	if e.proxy != nil {
		if err := e.proxy.Burn(basket.CreditAsset.Denom(), consumed, redeemer); err != nil {
			return nil, nil, err
		}
	}
	return refunds, remaining, nil
}

// redeemFromOwner processes a single opted-in position: it consumes
// min(creditRemaining, remaining_loan_repayment, credit_amount), pays out
// collateral at credit_price*(1-premium/100) pro-rated across non-restricted
// cAssets (by withdrawing the same fraction of every eligible asset, which is
// equivalent to a current-value pro-rata split since fraction = payout_value
// / eligible_total_value cancels each asset's own unit price), and removes
// the opt-in once its remaining_loan_repayment reaches zero.
func (e *Engine) redeemFromOwner(basket *Basket, owner string, premium uint8, creditRemaining *big.Int, refunds map[string]*big.Int, nowTs int64) (*big.Int, error) {
	positions, err := e.state.GetPositions(basket.BasketID, owner)
	if err != nil {
		return big.NewInt(0), err
	}
	var pos *Position
	for _, p := range positions {
		if p.Redemption != nil && p.Redemption.Premium == premium {
			pos = p
			break
		}
	}
	if pos == nil {
		// stale index entry: drop it defensively.
		if err := e.removeRedemptionOptIn(basket, owner); err != nil {
			return big.NewInt(0), err
		}
		return big.NewInt(0), nil
	}

	if err := e.accruePosition(basket, pos, nowTs); err != nil {
		return big.NewInt(0), err
	}

	consumed := new(big.Int).Set(creditRemaining)
	if pos.Redemption.RemainingLoanRepayment.Cmp(consumed) < 0 {
		consumed = new(big.Int).Set(pos.Redemption.RemainingLoanRepayment)
	}
	if pos.CreditAmount.Cmp(consumed) < 0 {
		consumed = new(big.Int).Set(pos.CreditAmount)
	}
	if consumed.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	premiumFraction := decimal.FromFraction(new(big.Int).SetUint64(uint64(premium)), big.NewInt(100))
	payoutValue := basket.CreditPrice.Mul(decimal.One().Sub(premiumFraction)).MulInt(consumed)

	eligibleTotal := big.NewInt(0)
	eligible := make([]*CAsset, 0, len(pos.CollateralAssets))
	for _, c := range pos.CollateralAssets {
		if c.Amount == nil || c.Amount.Sign() == 0 || pos.Redemption.IsRestricted(c.Asset) {
			continue
		}
		contributions, err := e.pricer.UnderlyingValues(basket.BasketID, c, c.Amount, basket.CollateralTWAPWindow, nowTs, e.cfg.OracleTimeLimitSeconds)
		if err != nil {
			return big.NewInt(0), err
		}
		value := big.NewInt(0)
		for _, v := range contributions {
			value.Add(value, v)
		}
		if value.Sign() == 0 {
			continue
		}
		eligible = append(eligible, c)
		eligibleTotal.Add(eligibleTotal, value)
	}
	if eligibleTotal.Sign() == 0 {
		return big.NewInt(0), nil
	}

	fraction := decimal.FromFraction(payoutValue, eligibleTotal)
	if fraction.GreaterThan(decimal.One()) {
		fraction = decimal.One()
	}
	for _, c := range eligible {
		seize := fraction.MulInt(c.Amount)
		if seize.Sign() == 0 {
			continue
		}
		if seize.Cmp(c.Amount) > 0 {
			seize = new(big.Int).Set(c.Amount)
		}
		c.Amount.Sub(c.Amount, seize)
		if err := e.applySupplyDelta(basket, basket.FindCollateralType(c.Asset), seize, -1, nowTs); err != nil {
			return big.NewInt(0), err
		}
		key := c.Asset.String()
		if existing, ok := refunds[key]; ok {
			refunds[key] = new(big.Int).Add(existing, seize)
		} else {
			refunds[key] = new(big.Int).Set(seize)
		}
	}

	pos.CreditAmount.Sub(pos.CreditAmount, consumed)
	if err := e.attributeDebtDelta(basket, pos, consumed, -1, nowTs); err != nil {
		return big.NewInt(0), err
	}
	pos.Redemption.RemainingLoanRepayment.Sub(pos.Redemption.RemainingLoanRepayment, consumed)

	if pos.Redemption.RemainingLoanRepayment.Sign() <= 0 {
		if err := e.removeRedemptionOptIn(basket, owner); err != nil {
			return big.NewInt(0), err
		}
		pos.Redemption = nil
	}

	if err := e.savePositions(basket, owner, positions); err != nil {
		return big.NewInt(0), err
	}
	return consumed, nil
}
