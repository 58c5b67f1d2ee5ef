package cdp

import (
	"log/slog"
	"math/big"

	"cdpcore/assets"
	"cdpcore/decimal"
	"cdpcore/observability/logging"
)

// LiquidationResult summarizes the waterfall's outcome for callers and
// metrics.
type LiquidationResult struct {
	CallerFee       *big.Int
	StakerFee       *big.Int
	RepaidByQueue   *big.Int
	RepaidByPool    *big.Int
	RepaidByRouter  *big.Int
	RemainingUnpaid *big.Int
	BadDebt         bool
}

// Liquidate implements spec.md §4.8: the liquidation waterfall. Any caller
// may invoke it with (basketID, owner, positionID); the position must be
// insolvent under max_LTV.
func (e *Engine) Liquidate(basketID, owner string, positionID PositionID, caller string, nowTs int64) (*LiquidationResult, error) {
	e.logger.Info("liquidation started",
		slog.String("basket_id", basketID),
		logging.MaskField("owner", owner),
		logging.MaskField("caller", caller),
	)
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	pos, positions, err := e.ensurePosition(basket, owner, &positionID, false)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(basket, pos, nowTs); err != nil {
		return nil, err
	}

	insolvent, err := e.isInsolvent(basket, pos, nowTs, true)
	if err != nil {
		return nil, err
	}
	if !insolvent {
		return nil, errPositionNotInsolvent
	}

	debtValue, collateralValue, err := e.positionDebtAndCollateralValue(basket, pos, nowTs)
	if err != nil {
		return nil, err
	}
	if collateralValue.Sign() == 0 {
		return e.markBadDebt(basket, pos, positions, owner)
	}

	maxBorrowWeighted, err := e.collateralValueLTVWeighted(basket, pos, nowTs, false)
	if err != nil {
		return nil, err
	}
	currentLTV := decimal.FromFraction(debtValue, collateralValue)
	thresholdLTV := decimal.FromFraction(maxBorrowWeighted, collateralValue)
	ltvGap := currentLTV.Sub(thresholdLTV)
	if ltvGap.Sign() < 0 {
		ltvGap = decimal.Zero()
	}
	availableFeeValue := ltvGap.MulInt(collateralValue)

	split := e.cfg.LiquidationFeeSplit
	callerFeeValue := bpsToDecimal(split.CallerBps).MulInt(availableFeeValue)
	stakerFeeValue := new(big.Int).Sub(availableFeeValue, callerFeeValue)

	repayTargetValue := new(big.Int).Sub(debtValue, maxBorrowWeighted)
	if repayTargetValue.Sign() < 0 {
		repayTargetValue = big.NewInt(0)
	}
	repayTargetCredit := decimal.One().Div(basket.CreditPrice).MulInt(repayTargetValue)
	if repayTargetCredit.Cmp(pos.CreditAmount) > 0 {
		repayTargetCredit = new(big.Int).Set(pos.CreditAmount)
	}

	result := &LiquidationResult{
		CallerFee:      e.payFeeFromCollateral(basket, pos, nowTs, callerFeeValue),
		StakerFee:      e.payFeeFromCollateral(basket, pos, nowTs, stakerFeeValue),
		RepaidByQueue:  big.NewInt(0),
		RepaidByPool:   big.NewInt(0),
		RepaidByRouter: big.NewInt(0),
	}

	remaining := new(big.Int).Set(repayTargetCredit)

	// Stage 1: Liquidation Queue.
	if remaining.Sign() > 0 && e.liquidationQueue != nil {
		repaid := e.runLiquidationQueueStage(basket, pos, nowTs, remaining)
		result.RepaidByQueue = repaid
		remaining.Sub(remaining, repaid)
		e.metrics.RecordLiquidationStage(StageLiquidationQueue.String(), stageOutcome(repaid))
	}

	// Stage 2: Stability Pool.
	if remaining.Sign() > 0 && e.stabilityPool != nil {
		repaid := e.runStabilityPoolStage(basket, pos, nowTs, remaining)
		result.RepaidByPool = repaid
		remaining.Sub(remaining, repaid)
		e.metrics.RecordLiquidationStage(StageStabilityPool.String(), stageOutcome(repaid))
	}

	// Stage 3: Router fallback.
	if remaining.Sign() > 0 && e.router != nil {
		repaid := e.runRouterStage(basket, pos, nowTs, remaining)
		result.RepaidByRouter = repaid
		remaining.Sub(remaining, repaid)
		e.metrics.RecordLiquidationStage(StageRouter.String(), stageOutcome(repaid))
	}

	result.RemainingUnpaid = remaining

	if _, total, err := e.positionDebtAndCollateralValue(basket, pos, nowTs); err == nil {
		if pos.CreditAmount.Sign() > 0 && total.Sign() == 0 {
			basket.BadDebt.Add(basket.BadDebt, pos.CreditAmount)
			result.BadDebt = true
			e.metrics.SetBadDebt(basket.BasketID, basket.BadDebt)
		}
	}

	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.savePositions(basket, owner, positions); err != nil {
		return nil, err
	}
	e.logger.Info("liquidation settled",
		slog.String("basket_id", basketID),
		logging.MaskField("owner", owner),
		slog.Bool("bad_debt", result.BadDebt),
	)
	return result, nil
}

func stageOutcome(repaid *big.Int) string {
	if repaid != nil && repaid.Sign() > 0 {
		return "repaid"
	}
	return "skipped"
}

// payFeeFromCollateral seizes feeValue (credit-denominated) entirely from
// the position's largest-value collateral asset, converted at that asset's
// price and capped at its held amount; other collateral is left untouched.
func (e *Engine) payFeeFromCollateral(basket *Basket, pos *Position, nowTs int64, feeValue *big.Int) *big.Int {
	if feeValue == nil || feeValue.Sign() <= 0 {
		return big.NewInt(0)
	}
	_, perAsset, err := e.positionValue(basket, pos, nowTs)
	if err != nil || len(perAsset) == 0 {
		return big.NewInt(0)
	}
	var largestKey string
	var largestValue *big.Int
	for k, v := range perAsset {
		if largestValue == nil || v.Cmp(largestValue) > 0 {
			largestKey, largestValue = k, v
		}
	}
	for _, c := range pos.CollateralAssets {
		if c.Asset.String() != largestKey {
			continue
		}
		price, err := e.pricer.PriceAsset(basket.BasketID, c.Asset, basket.CollateralTWAPWindow, nowTs, e.cfg.OracleTimeLimitSeconds)
		if err != nil || price.IsZero() {
			return big.NewInt(0)
		}
		amount := decimal.One().Div(price).MulInt(feeValue)
		if amount.Cmp(c.Amount) > 0 {
			amount = new(big.Int).Set(c.Amount)
		}
		c.Amount.Sub(c.Amount, amount)
		_ = e.applySupplyDelta(basket, basket.FindCollateralType(c.Asset), amount, -1, nowTs)
		return amount
	}
	return big.NewInt(0)
}

func (e *Engine) runLiquidationQueueStage(basket *Basket, pos *Position, nowTs int64, remaining *big.Int) *big.Int {
	creditPrice := basket.CreditPrice
	for _, c := range pos.CollateralAssets {
		if c.Amount.Sign() == 0 {
			continue
		}
		price, err := e.pricer.PriceAsset(basket.BasketID, c.Asset, basket.CollateralTWAPWindow, nowTs, e.cfg.OracleTimeLimitSeconds)
		if err != nil {
			continue
		}
		check, err := e.liquidationQueue.CheckLiquidatible(c.Asset, price, c.Amount, basket.CreditAsset, creditPrice)
		if err != nil {
			continue
		}
		repaid := new(big.Int).Sub(check.TotalDebtRepaid, big.NewInt(0))
		if repaid.Cmp(remaining) > 0 {
			repaid = new(big.Int).Set(remaining)
		}
		if repaid.Sign() <= 0 {
			continue
		}
		if err := e.liquidationQueue.Liquidate(creditPrice, price, c.Amount, c.Asset, pos.ID, pos.Owner); err != nil {
			continue
		}
		seize := decimal.One().Div(price).MulInt(repaid)
		if seize.Cmp(c.Amount) > 0 {
			seize = new(big.Int).Set(c.Amount)
		}
		c.Amount.Sub(c.Amount, seize)
		_ = e.applySupplyDelta(basket, basket.FindCollateralType(c.Asset), seize, -1, nowTs)
		pos.CreditAmount.Sub(pos.CreditAmount, repaid)
		_ = e.attributeDebtDelta(basket, pos, repaid, -1, nowTs)
		return repaid
	}
	return big.NewInt(0)
}

func (e *Engine) runStabilityPoolStage(basket *Basket, pos *Position, nowTs int64, remaining *big.Int) *big.Int {
	info, err := e.stabilityPool.AssetPool()
	if err != nil {
		return big.NewInt(0)
	}
	if info.LiqPremium.GreaterThan(bpsToDecimal(e.cfg.StabilityPoolPremiumCeilingBps)) {
		return big.NewInt(0) // premium exceeds the configured ceiling
	}
	leftover, err := e.stabilityPool.CheckLiquidatible(remaining)
	if err != nil {
		return big.NewInt(0)
	}
	repaid := new(big.Int).Sub(remaining, leftover)
	if repaid.Sign() <= 0 {
		return big.NewInt(0)
	}
	if err := e.stabilityPool.Liquidate(repaid); err != nil {
		return big.NewInt(0)
	}

	premiumAdjusted := decimal.One().Add(info.LiqPremium)
	var stagedAsset assets.AssetRef
	stagedAmount := big.NewInt(0)
	for _, c := range pos.CollateralAssets {
		if c.Amount.Sign() == 0 {
			continue
		}
		price, err := e.pricer.PriceAsset(basket.BasketID, c.Asset, basket.CollateralTWAPWindow, nowTs, e.cfg.OracleTimeLimitSeconds)
		if err != nil || price.IsZero() {
			continue
		}
		value := premiumAdjusted.MulInt(repaid)
		seize := decimal.One().Div(price).MulInt(value)
		if seize.Cmp(c.Amount) > 0 {
			seize = new(big.Int).Set(c.Amount)
		}
		stagedAsset, stagedAmount = c.Asset, seize
		break
	}

	// Stage the reply record the Stability Pool's callback settles through
	// LiqRepay (spec.md §5, §6). This host's Stability Pool has no async
	// transport, so the reply is applied inline immediately after staging
	// rather than waiting on an external callback, and the slot is then
	// cleared so a later LiqRepay cannot apply the same record twice; a host
	// with a true asynchronous Stability Pool instead leaves the record
	// staged here and lets LiqRepay apply it when the reply actually arrives.
	prop := NewRepayPropagation(basket.BasketID, pos.Owner, pos.ID, StageStabilityPool, repaid, stagedAmount, stagedAsset)
	if err := e.state.PutRepayPropagation(prop); err != nil {
		return big.NewInt(0)
	}
	applied := e.applyRepayPropagation(basket, pos, prop, nowTs)
	_ = e.state.PutRepayPropagation(&RepayPropagation{})
	return applied
}

// applyRepayPropagation applies a staged Stability Pool repay — the credit
// reduction and the collateral seizure it funds — to basket/pos in place.
// Shared by the waterfall's inline settlement above and by LiqRepay, the
// entrypoint a host with a genuinely asynchronous Stability Pool invokes
// once its reply arrives.
func (e *Engine) applyRepayPropagation(basket *Basket, pos *Position, prop *RepayPropagation, nowTs int64) *big.Int {
	repaid := prop.RepayRemaining
	if repaid == nil || repaid.Sign() <= 0 {
		return big.NewInt(0)
	}
	pos.CreditAmount.Sub(pos.CreditAmount, repaid)
	_ = e.attributeDebtDelta(basket, pos, repaid, -1, nowTs)

	if prop.StagedAmount != nil && prop.StagedAmount.Sign() > 0 {
		if c := pos.FindCollateral(prop.StagedAsset); c != nil {
			seize := prop.StagedAmount
			if seize.Cmp(c.Amount) > 0 {
				seize = new(big.Int).Set(c.Amount)
			}
			c.Amount.Sub(c.Amount, seize)
			_ = e.applySupplyDelta(basket, basket.FindCollateralType(prop.StagedAsset), seize, -1, nowTs)
		}
	}
	return repaid
}

// LiqRepay is the Stability Pool's asynchronous reply callback (spec.md §6's
// "Core entrypoints (exposed)"): a host with a true async Stability Pool
// invokes this once the pool's liquidation settles, keyed by the call id
// staged when the waterfall entered Stage 2. A callID that does not match
// the currently staged RepayPropagation record — because no waterfall is
// in flight, or a newer waterfall has since overwritten the single slot —
// is a stale reply and is rejected rather than misapplied.
func (e *Engine) LiqRepay(callID string, nowTs int64) (*big.Int, error) {
	prop, err := e.state.GetRepayPropagation()
	if err != nil {
		return nil, err
	}
	if prop == nil || prop.CallID == "" || prop.CallID != callID {
		return nil, errStaleReply
	}
	basket, err := e.ensureBasket(prop.BasketID)
	if err != nil {
		return nil, err
	}
	pos, positions, err := e.ensurePosition(basket, prop.Owner, &prop.Position, false)
	if err != nil {
		return nil, err
	}
	repaid := e.applyRepayPropagation(basket, pos, prop, nowTs)
	if err := e.state.PutRepayPropagation(&RepayPropagation{}); err != nil {
		return nil, err
	}
	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.savePositions(basket, prop.Owner, positions); err != nil {
		return nil, err
	}
	return repaid, nil
}

func (e *Engine) runRouterStage(basket *Basket, pos *Position, nowTs int64, remaining *big.Int) *big.Int {
	offer := make([]PoolAsset, 0, len(pos.CollateralAssets))
	for _, c := range pos.CollateralAssets {
		if c.Amount.Sign() > 0 {
			offer = append(offer, PoolAsset{Asset: c.Asset, Amount: c.Amount})
		}
	}
	if len(offer) == 0 {
		return big.NewInt(0)
	}
	if err := e.router.BasketLiquidate(offer, basket.CreditAsset, remaining, pos.Owner); err != nil {
		return big.NewInt(0)
	}
	repaid := new(big.Int).Set(remaining)
	for _, c := range pos.CollateralAssets {
		c.Amount.SetInt64(0)
	}
	pos.CreditAmount.Sub(pos.CreditAmount, repaid)
	_ = e.attributeDebtDelta(basket, pos, repaid, -1, nowTs)
	return repaid
}

func (e *Engine) markBadDebt(basket *Basket, pos *Position, positions []*Position, owner string) (*LiquidationResult, error) {
	basket.BadDebt.Add(basket.BadDebt, pos.CreditAmount)
	e.metrics.SetBadDebt(basket.BasketID, basket.BadDebt)
	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.savePositions(basket, owner, positions); err != nil {
		return nil, err
	}
	return &LiquidationResult{
		CallerFee: big.NewInt(0), StakerFee: big.NewInt(0),
		RepaidByQueue: big.NewInt(0), RepaidByPool: big.NewInt(0), RepaidByRouter: big.NewInt(0),
		RemainingUnpaid: new(big.Int).Set(pos.CreditAmount), BadDebt: true,
	}, nil
}
