package cdp

import (
	"math/big"
	"strconv"

	"cdpcore/decimal"
)

// accrualTick bundles the values Phase 1 computes that Phase 2b needs
// in-flight, before the margin-of-error is subtracted from diff.
type accrualTick struct {
	diff     decimal.Decimal
	negative bool
}

// accrueBasket runs the dual accrual path against basket (spec.md §4.3) and
// mutates it in place: Phase 1's repayment-price drift, Phase 2's per-asset
// effective borrow rate (returned per asset, not persisted), and Phase 2c's
// rate-index compounding. It is idempotent when called twice at the same
// nowTs, since a zero Δt produces a zero update on every phase.
func (e *Engine) accrueBasket(basket *Basket, nowTs int64) (*accrualTick, map[string]decimal.Decimal, error) {
	deltaT := nowTs - basket.CreditLastAccrued
	if deltaT < 0 {
		deltaT = 0
	}

	tick, err := e.accrueRepaymentPrice(basket, nowTs, deltaT)
	if err != nil {
		return nil, nil, err
	}

	effectiveRates, err := e.accrueBorrowInterest(basket, deltaT, tick)
	if err != nil {
		return nil, nil, err
	}

	if price, err := strconv.ParseFloat(basket.CreditPrice.String(), 64); err == nil {
		e.metrics.SetCreditPrice(basket.BasketID, price)
	}

	return tick, effectiveRates, nil
}

// accrueRepaymentPrice is spec.md §4.3 Phase 1. It always computes diff/negative
// (Phase 2b needs them even when the liquidity gate blocks persisting a
// credit_price update), but only mutates CreditPrice/CreditLastAccrued when
// the gate passes and the dead-band is cleared.
func (e *Engine) accrueRepaymentPrice(basket *Basket, nowTs, deltaT int64) (*accrualTick, error) {
	zero := &accrualTick{diff: decimal.Zero(), negative: false}
	if !basket.OracleSet || e.oracle == nil {
		return zero, nil
	}

	liquidity := big.NewInt(0)
	if e.liquidity != nil {
		l, err := e.liquidity.Liquidity(basket.CreditAsset)
		if err == nil && l != nil {
			liquidity = l
		}
	}
	currentSupply := e.creditCurrentSupply(basket)

	gatePass := liquidity.Cmp(repaymentLiquidityFloor) >= 0
	if gatePass && currentSupply.Sign() > 0 {
		ratio := decimal.FromFraction(liquidity, currentSupply)
		gatePass = !ratio.LessThan(repaymentLiquidityRatio)
	} else if currentSupply.Sign() == 0 {
		gatePass = false
	}

	market, _, err := e.oracle.Price(basket.CreditAsset, basket.CreditTWAPWindow, basket.BasketID)
	if err != nil {
		return zero, nil // oracle failure degrades gracefully per spec.md §7
	}
	target := basket.CreditPrice

	hi, lo := market, target
	negative := market.GreaterThan(target)
	if lo.GreaterThan(hi) {
		hi, lo = lo, hi
	}
	if lo.IsZero() {
		return zero, nil
	}
	diff := hi.Div(lo).Sub(decimal.One())

	tick := &accrualTick{diff: diff, negative: negative}

	if !gatePass {
		return tick, nil
	}
	if !diff.GreaterThan(basket.CPCMarginOfError) {
		return tick, nil // within dead-band, no update
	}
	applied := diff.Sub(basket.CPCMarginOfError)
	applied = applied.Mul(decimal.FromInt64(deltaT)).Div(decimal.FromInt64(secondsPerYear))

	if negative {
		if basket.NegativeRates {
			newPrice := basket.CreditPrice.Mul(decimal.One().Sub(applied))
			basket.CreditPrice = newPrice.Max(decimal.FromRaw(e.cfg.CreditPriceFloorRaw))
		}
	} else {
		basket.CreditPrice = basket.CreditPrice.Mul(decimal.One().Add(applied))
	}
	basket.CreditLastAccrued = nowTs
	return tick, nil
}

// creditCurrentSupply approximates the credit asset's current_supply as the
// sum of every SupplyCap's debt_total, which spec.md §8 invariant 1 ties to
// Σ position.credit_amount.
func (e *Engine) creditCurrentSupply(basket *Basket) *big.Int {
	total := big.NewInt(0)
	for _, sc := range basket.SupplyCaps {
		if sc.DebtTotal != nil {
			total.Add(total, sc.DebtTotal)
		}
	}
	return total
}

// accrueBorrowInterest is spec.md §4.3 Phase 2 + 2b + 2c: per-asset
// utilization-aware two-slope rate, repayment-rate coupling, and rate-index
// compounding. It returns the effective (coupled) rate used for this tick's
// position catch-up, keyed by AssetRef string.
func (e *Engine) accrueBorrowInterest(basket *Basket, deltaT int64, tick *accrualTick) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, tmpl := range basket.CollateralTypes {
		if tmpl.IsLP() {
			continue
		}
		sc := basket.FindSupplyCap(tmpl.Asset)
		if sc == nil {
			continue
		}

		baseRate := basket.BaseInterestRate
		if !tmpl.MaxLTV.IsZero() {
			baseRate = baseRate.Div(tmpl.MaxLTV)
		}

		debtCap := e.debtCapFor(basket, tmpl.Asset)
		dUtil := decimal.One()
		if debtCap.Sign() > 0 {
			dUtil = decimal.FromFraction(sc.DebtTotal, debtCap)
		}
		sUtil := decimal.One()
		if !sc.SupplyCapRatio.IsZero() {
			supplyRatio, err := e.supplyRatio(basket, sc)
			if err != nil {
				return nil, err
			}
			sUtil = supplyRatio.Div(sc.SupplyCapRatio)
		}
		u := dUtil.Max(sUtil)

		var effective decimal.Decimal
		overDebt := dUtil.Sub(basket.DesiredDebtCapUtil)
		overSupply := sUtil.Sub(decimal.One())
		if overDebt.Sign() > 0 || overSupply.Sign() > 0 {
			over := overDebt.Max(overSupply)
			multiplier := decimal.One().Add(over.Mul(decimal.FromInt64(100))).Mul(bpsToDecimal(e.cfg.RateSlopeMultiplierBps))
			effective = baseRate.Mul(u).Mul(multiplier)
		} else {
			effective = baseRate.Mul(u)
		}

		// Phase 2b: repayment-rate coupling.
		if tick.diff.Sign() > 0 {
			if tick.negative {
				effective = effective.Mul(decimal.One().Sub(tick.diff))
			} else {
				effective = effective.Mul(decimal.One().Add(tick.diff))
			}
		}

		rates[tmpl.Asset.String()] = effective

		// Phase 2c: compound the persistent rate index.
		advance := effective.Mul(decimal.FromInt64(deltaT)).Div(decimal.FromInt64(secondsPerYear))
		tmpl.RateIndex = tmpl.RateIndex.Mul(decimal.One().Add(advance))
	}
	return rates, nil
}

func (e *Engine) debtCapFor(basket *Basket, ref interface{ String() string }) *big.Int {
	caps, err := e.apportionDebtCaps(basket, basket.CreditLastAccrued)
	if err != nil {
		return big.NewInt(0)
	}
	if v, ok := caps[ref.String()]; ok {
		return v
	}
	return big.NewInt(0)
}

func (e *Engine) supplyRatio(basket *Basket, sc *SupplyCap) (decimal.Decimal, error) {
	denom, err := e.totalNonLPSupplyValue(basket, basket.CreditLastAccrued)
	if err != nil {
		return decimal.Zero(), err
	}
	if denom.Sign() == 0 {
		return decimal.Zero(), nil
	}
	price, err := e.pricer.PriceAsset(basket.BasketID, sc.Asset, basket.CollateralTWAPWindow, basket.CreditLastAccrued, e.cfg.OracleTimeLimitSeconds)
	if err != nil {
		return decimal.Zero(), err
	}
	value := price.MulInt(sc.CurrentSupply)
	return decimal.FromFraction(value, denom), nil
}

// accruePosition applies Phase 2c's position-level catch-up: for every
// collateral asset the position holds, interest advances by the basket
// index's ratio since the position's last-touch snapshot, weighted by the
// position's credit attributed to that asset, and is added to both the
// position's credit_amount and the basket's pending_revenue.
func (e *Engine) accruePosition(basket *Basket, pos *Position, nowTs int64) error {
	if pos.CreditAmount == nil {
		pos.CreditAmount = big.NewInt(0)
	}
	if !pos.HasDebt() {
		e.syncPositionSnapshots(basket, pos)
		pos.LastAccrued = nowTs
		return nil
	}

	total, perAsset, err := e.positionValue(basket, pos, nowTs)
	if err != nil {
		return err
	}
	if total.Sign() == 0 {
		pos.LastAccrued = nowTs
		return nil
	}

	totalInterest := big.NewInt(0)
	for _, c := range pos.CollateralAssets {
		if c.IsLP() || c.Amount == nil || c.Amount.Sign() == 0 {
			continue
		}
		tmpl := basket.FindCollateralType(c.Asset)
		if tmpl == nil || c.RateIndex.IsZero() {
			continue
		}
		ratioAdvance := tmpl.RateIndex.Div(c.RateIndex).Sub(decimal.One())
		if ratioAdvance.Sign() <= 0 {
			continue
		}
		assetValue := perAsset[c.Asset.String()]
		if assetValue == nil {
			continue
		}
		shareOfCredit := decimal.FromFraction(assetValue, total).MulInt(pos.CreditAmount)
		interest := ratioAdvance.MulInt(shareOfCredit)
		if interest.Sign() == 0 {
			continue
		}
		totalInterest.Add(totalInterest, interest)
		if sc := basket.FindSupplyCap(c.Asset); sc != nil {
			sc.DebtTotal.Add(sc.DebtTotal, interest) // accrual may exceed the asset's debt cap
		}
	}

	if totalInterest.Sign() > 0 {
		pos.CreditAmount.Add(pos.CreditAmount, totalInterest)
		basket.PendingRevenue.Add(basket.PendingRevenue, totalInterest)
	}

	e.syncPositionSnapshots(basket, pos)
	pos.LastAccrued = nowTs
	return nil
}

// syncPositionSnapshots copies the basket's current per-asset rate indices
// onto the position's own CAsset entries, marking this as the position's
// new "last touch" for each asset it holds.
func (e *Engine) syncPositionSnapshots(basket *Basket, pos *Position) {
	for _, c := range pos.CollateralAssets {
		if c.IsLP() {
			continue
		}
		if tmpl := basket.FindCollateralType(c.Asset); tmpl != nil {
			c.RateIndex = tmpl.RateIndex
		}
	}
}

// accrue runs both basket- and position-level accrual, as required at the
// start of every position-touching entrypoint (spec.md §4.3).
func (e *Engine) accrue(basket *Basket, pos *Position, nowTs int64) error {
	if _, _, err := e.accrueBasket(basket, nowTs); err != nil {
		return err
	}
	return e.accruePosition(basket, pos, nowTs)
}
