package cdp

import (
	"log/slog"
	"math/big"

	"cdpcore/assets"
	"cdpcore/config"
	"cdpcore/decimal"
	nativecommon "cdpcore/native/common"
	"cdpcore/observability"
	"cdpcore/observability/logging"
)

const moduleName = "cdp"

// Engine is the core CDP engine: it holds the persistence contract and the
// external collaborators, and exposes the entrypoints and queries of
// spec.md §6.
type Engine struct {
	state State
	cfg   *config.Config

	oracle           Oracle
	proxy            TokenProxy
	liquidationQueue LiquidationQueue
	stabilityPool    StabilityPool
	router           Router
	liquidity        LiquidityAggregator
	discounts        Discounts
	staking          Staking

	pricer  *Pricer
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	metrics *observability.CDPMetrics
}

// NewEngine constructs an Engine over state and cfg. Collaborators are
// wired in afterward via the Set* methods, mirroring
// native/lending.Engine's setter-based wiring.
func NewEngine(state State, cfg *config.Config) *Engine {
	e := &Engine{state: state, cfg: cfg, logger: slog.Default(), metrics: observability.Metrics()}
	e.rebuildPricer()
	return e
}

func (e *Engine) rebuildPricer() {
	e.pricer = NewPricer(e.state, e.oracle, e.proxy)
}

func (e *Engine) SetOracle(o Oracle) { e.oracle = o; e.rebuildPricer() }
func (e *Engine) SetTokenProxy(p TokenProxy) { e.proxy = p; e.rebuildPricer() }
func (e *Engine) SetLiquidationQueue(q LiquidationQueue) { e.liquidationQueue = q }
func (e *Engine) SetStabilityPool(sp StabilityPool)      { e.stabilityPool = sp }
func (e *Engine) SetRouter(r Router)                     { e.router = r }
func (e *Engine) SetLiquidityAggregator(l LiquidityAggregator) { e.liquidity = l }
func (e *Engine) SetDiscounts(d Discounts) { e.discounts = d }
func (e *Engine) SetStaking(s Staking)     { e.staking = s }
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// basketPauseView implements nativecommon.PauseView over one basket's
// Frozen flag; a view is built per basket, so the guard applies per-basket
// rather than globally.
type basketPauseView struct{ basket *Basket }

func (b basketPauseView) IsPaused(module string) bool {
	return module == moduleName && b.basket != nil && b.basket.Frozen
}

func (e *Engine) guardFrozen(basket *Basket) error {
	if err := nativecommon.Guard(basketPauseView{basket: basket}, moduleName); err != nil {
		return errFrozenBasket
	}
	return nil
}

func (e *Engine) ensureBasket(basketID string) (*Basket, error) {
	if e.state == nil {
		return nil, errNilState
	}
	basket, err := e.state.GetBasket(basketID)
	if err != nil {
		return nil, err
	}
	return basket, nil
}

// ensurePosition loads an existing position or, if positionID is the zero
// value and creation is permitted, allocates a fresh one from the basket's
// monotonic counter (spec.md §4.4).
func (e *Engine) ensurePosition(basket *Basket, owner string, positionID *PositionID, allowCreate bool) (*Position, []*Position, error) {
	positions, err := e.state.GetPositions(basket.BasketID, owner)
	if err != nil {
		return nil, nil, err
	}
	if positionID != nil {
		for _, p := range positions {
			if p.ID == *positionID {
				return p, positions, nil
			}
		}
		return nil, nil, errNonExistentPosition
	}
	if !allowCreate {
		if len(positions) == 0 {
			return nil, nil, errNoUserPositions
		}
		return nil, nil, errNonExistentPosition
	}
	if uint32(len(positions)) >= e.cfg.MaxPositionsPerOwner {
		return nil, nil, errTooManyPositions
	}
	basket.CurrentPositionID = nextPositionID(basket.CurrentPositionID)
	pos := &Position{
		ID:           basket.CurrentPositionID,
		BasketID:     basket.BasketID,
		Owner:        owner,
		CreditAmount: big.NewInt(0),
	}
	positions = append(positions, pos)
	return pos, positions, nil
}

func nextPositionID(id PositionID) PositionID {
	id.Lo++
	if id.Lo == 0 {
		id.Hi++
	}
	return id
}

func (e *Engine) savePositions(basket *Basket, owner string, positions []*Position) error {
	remaining := positions[:0]
	for _, p := range positions {
		if p.Empty() {
			continue
		}
		remaining = append(remaining, p)
	}
	return e.state.PutPositions(basket.BasketID, owner, remaining)
}

// CollateralIncrement is one (asset, amount) pair supplied to Deposit.
type CollateralIncrement struct {
	Asset  assets.AssetRef
	Amount *big.Int
}

// Deposit implements spec.md §4.4.
func (e *Engine) Deposit(basketID, owner string, positionID *PositionID, increments []CollateralIncrement, nowTs int64) (*Position, error) {
	e.logger.Info("deposit requested", slog.String("basket_id", basketID), logging.MaskField("owner", owner))
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if err := e.guardFrozen(basket); err != nil {
		return nil, err
	}
	for _, inc := range increments {
		if basket.FindCollateralType(inc.Asset) == nil {
			return nil, errInvalidCollateral
		}
	}

	pos, positions, err := e.ensurePosition(basket, owner, positionID, true)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(basket, pos, nowTs); err != nil {
		return nil, err
	}

	for _, inc := range increments {
		if inc.Amount == nil || inc.Amount.Sign() <= 0 {
			return nil, errInvalidAmount
		}
		if err := checkAmountBounds(inc.Amount); err != nil {
			return nil, err
		}
		tmpl := basket.FindCollateralType(inc.Asset)
		c := pos.FindCollateral(inc.Asset)
		if c == nil {
			if uint32(len(pos.CollateralAssets)) >= e.cfg.MaxCollateralAssetsPerPosition {
				return nil, errTooManyCollateralAssets
			}
			c = &CAsset{
				Asset:        inc.Asset,
				Amount:       big.NewInt(0),
				MaxBorrowLTV: tmpl.MaxBorrowLTV,
				MaxLTV:       tmpl.MaxLTV,
				PoolInfo:     tmpl.PoolInfo,
				RateIndex:    tmpl.RateIndex,
			}
			pos.CollateralAssets = append(pos.CollateralAssets, c)
		}
		c.Amount.Add(c.Amount, inc.Amount)
		if err := e.applySupplyDelta(basket, tmpl, inc.Amount, 1, nowTs); err != nil {
			return nil, err
		}
	}

	if pos.HasDebt() {
		if err := e.enforceSupplyCaps(basket, nowTs); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.savePositions(basket, owner, positions); err != nil {
		return nil, err
	}
	return pos, nil
}

// CollateralWithdrawal is one (asset, amount) pair supplied to Withdraw.
type CollateralWithdrawal struct {
	Asset  assets.AssetRef
	Amount *big.Int
}

// Withdraw implements spec.md §4.5.
func (e *Engine) Withdraw(basketID, owner string, positionID PositionID, withdrawals []CollateralWithdrawal, recipient string, nowTs int64) (*Position, error) {
	e.logger.Info("withdrawal requested",
		slog.String("basket_id", basketID),
		logging.MaskField("owner", owner),
		logging.MaskField("recipient", recipient),
	)
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if err := e.guardFrozen(basket); err != nil {
		return nil, err
	}
	pos, positions, err := e.ensurePosition(basket, owner, &positionID, false)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(basket, pos, nowTs); err != nil {
		return nil, err
	}

	requested := make(map[string]*big.Int)
	for _, w := range withdrawals {
		c := pos.FindCollateral(w.Asset)
		if c == nil || c.Amount.Cmp(w.Amount) < 0 {
			return nil, errInsufficientCollateralHeld(w.Asset)
		}
		requested[w.Asset.String()] = w.Amount
		c.Amount.Sub(c.Amount, w.Amount)
		if err := e.applySupplyDelta(basket, basket.FindCollateralType(w.Asset), w.Amount, -1, nowTs); err != nil {
			return nil, err
		}
	}

	insolvent, err := e.isInsolvent(basket, pos, nowTs, false)
	if err != nil {
		return nil, err
	}
	if insolvent {
		return nil, errPositionInsolvent
	}

	resultingAmounts := make(map[string]*big.Int)
	for _, c := range pos.CollateralAssets {
		resultingAmounts[c.Asset.String()] = c.Amount
	}
	if err := expungeCheck(basket, requested, resultingAmounts); err != nil {
		return nil, err
	}

	filtered := pos.CollateralAssets[:0]
	for _, c := range pos.CollateralAssets {
		if c.Amount.Sign() > 0 {
			filtered = append(filtered, c)
		}
	}
	pos.CollateralAssets = filtered

	prop := NewWithdrawPropagation(basket.BasketID, owner, pos.ID, transfersFor(withdrawals, recipient))
	if err := e.state.PutWithdrawPropagation(prop); err != nil {
		return nil, err
	}

	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.savePositions(basket, owner, positions); err != nil {
		return nil, err
	}
	return pos, nil
}

func transfersFor(withdrawals []CollateralWithdrawal, recipient string) []PendingTransfer {
	out := make([]PendingTransfer, 0, len(withdrawals))
	for _, w := range withdrawals {
		out = append(out, PendingTransfer{Asset: w.Asset, Amount: w.Amount, To: recipient})
	}
	return out
}

func errInsufficientCollateralHeld(_ assets.AssetRef) error { return errInvalidCollateral }

// Borrow implements spec.md §4.6 (IncreaseDebt).
func (e *Engine) Borrow(basketID, owner string, positionID PositionID, amount *big.Int, targetLTV *decimal.Decimal, mintRecipient string, nowTs int64) (*Position, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if err := e.guardFrozen(basket); err != nil {
		return nil, err
	}
	pos, positions, err := e.ensurePosition(basket, owner, &positionID, false)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(basket, pos, nowTs); err != nil {
		return nil, err
	}
	if !basket.OracleSet {
		return nil, errNoRepaymentPrice
	}

	if targetLTV != nil {
		total, _, err := e.positionValue(basket, pos, nowTs)
		if err != nil {
			return nil, err
		}
		debtValue := basket.CreditPrice.MulInt(pos.CreditAmount)
		targetDebtValue := targetLTV.MulInt(total)
		deltaValue := new(big.Int).Sub(targetDebtValue, debtValue)
		if deltaValue.Sign() < 0 {
			deltaValue = big.NewInt(0)
		}
		amount = decimal.One().Div(basket.CreditPrice).MulInt(deltaValue)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if err := checkAmountBounds(amount); err != nil {
		return nil, err
	}

	pos.CreditAmount.Add(pos.CreditAmount, amount)
	if err := e.attributeDebtDelta(basket, pos, amount, 1, nowTs); err != nil {
		return nil, err
	}

	resultingValue := basket.CreditPrice.MulInt(pos.CreditAmount)
	if resultingValue.Cmp(e.cfg.DebtMinimumWei) < 0 {
		return nil, errBelowMinimumDebt
	}

	insolvent, err := e.isInsolvent(basket, pos, nowTs, false)
	if err != nil {
		return nil, err
	}
	if insolvent {
		return nil, errPositionInsolvent
	}

	if err := e.enforceDebtCaps(basket, nowTs); err != nil {
		return nil, err
	}

	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.savePositions(basket, owner, positions); err != nil {
		return nil, err
	}
	if e.proxy != nil {
		to := mintRecipient
		if to == "" {
			to = owner
		}
		if err := e.proxy.Mint(basket.CreditAsset.Denom(), amount, to); err != nil {
			return nil, err
		}
	}
	return pos, nil
}

// attributeDebtDelta adjusts each non-LP SupplyCap's debt_total
// proportionally to the position's current collateral value ratios (spec.md
// §4.6-§4.7). sign is +1 for borrow, -1 for repay.
func (e *Engine) attributeDebtDelta(basket *Basket, pos *Position, amount *big.Int, sign int, nowTs int64) error {
	total, perAsset, err := e.positionValue(basket, pos, nowTs)
	if err != nil {
		return err
	}
	if total.Sign() == 0 {
		return nil
	}
	signed := new(big.Int).Set(amount)
	if sign < 0 {
		signed.Neg(signed)
	}
	for key, value := range perAsset {
		sc := findSupplyCapByKey(basket, key)
		if sc == nil {
			continue
		}
		share := decimal.FromFraction(value, total)
		delta := share.MulInt(signed)
		sc.DebtTotal.Add(sc.DebtTotal, delta)
		if sc.DebtTotal.Sign() < 0 {
			sc.DebtTotal.SetInt64(0)
		}
	}
	return nil
}

// enforceDebtCaps checks that every non-LP SupplyCap's debt_total has not
// exceeded its apportioned debt cap, except when the increment is solely
// interest accrual (handled separately in accruePosition, which bypasses
// this check entirely).
func (e *Engine) enforceDebtCaps(basket *Basket, nowTs int64) error {
	caps, err := e.apportionDebtCaps(basket, nowTs)
	if err != nil {
		return err
	}
	for _, sc := range basket.SupplyCaps {
		if sc.LP {
			continue
		}
		cap := caps[sc.Asset.String()]
		if cap == nil {
			continue
		}
		if cap.Sign() > 0 && sc.DebtTotal.Cmp(cap) > 0 {
			return errDebtCapExceeded
		}
	}
	return nil
}

// Repay implements spec.md §4.7.
func (e *Engine) Repay(basketID, owner string, positionID PositionID, asset assets.AssetRef, amount *big.Int, isRouter bool, nowTs int64) (*Position, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if err := e.guardFrozen(basket); err != nil {
		return nil, err
	}
	if !asset.Equal(basket.CreditAsset) {
		return nil, errWrongDenomination
	}
	pos, positions, err := e.ensurePosition(basket, owner, &positionID, false)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(basket, pos, nowTs); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if err := checkAmountBounds(amount); err != nil {
		return nil, err
	}
	if amount.Cmp(pos.CreditAmount) > 0 {
		return nil, errExcessRepayment
	}

	pos.CreditAmount.Sub(pos.CreditAmount, amount)
	if err := e.attributeDebtDelta(basket, pos, amount, -1, nowTs); err != nil {
		return nil, err
	}

	if pos.CreditAmount.Sign() > 0 {
		resultingValue := basket.CreditPrice.MulInt(pos.CreditAmount)
		if resultingValue.Cmp(e.cfg.DebtMinimumWei) < 0 && !isRouter {
			return nil, errBelowMinimumDebt
		}
	}

	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	if err := e.savePositions(basket, owner, positions); err != nil {
		return nil, err
	}
	if e.proxy != nil {
		if err := e.proxy.Burn(basket.CreditAsset.Denom(), amount, owner); err != nil {
			return nil, err
		}
	}
	return pos, nil
}

// ClosePosition implements spec.md §4.9: swap all collateral through the
// router to the credit asset, repay in-line, return any excess and
// residual collateral.
func (e *Engine) ClosePosition(basketID, owner string, positionID PositionID, maxSpread decimal.Decimal, nowTs int64) error {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return err
	}
	if err := e.guardFrozen(basket); err != nil {
		return err
	}
	pos, positions, err := e.ensurePosition(basket, owner, &positionID, false)
	if err != nil {
		return err
	}
	if err := e.accrue(basket, pos, nowTs); err != nil {
		return err
	}
	if e.router == nil {
		return errInsufficientReply
	}
	offer := make([]PoolAsset, 0, len(pos.CollateralAssets))
	for _, c := range pos.CollateralAssets {
		if c.Amount.Sign() > 0 {
			offer = append(offer, PoolAsset{Asset: c.Asset, Amount: c.Amount})
		}
	}
	minReceive := decimal.One().Sub(maxSpread).MulInt(pos.CreditAmount)
	if err := e.router.BasketLiquidate(offer, basket.CreditAsset, minReceive, owner); err != nil {
		return err
	}
	repayAmount := new(big.Int).Set(pos.CreditAmount)
	if err := e.attributeDebtDelta(basket, pos, repayAmount, -1, nowTs); err != nil {
		return err
	}
	for _, c := range pos.CollateralAssets {
		if err := e.applySupplyDelta(basket, basket.FindCollateralType(c.Asset), c.Amount, -1, nowTs); err != nil {
			return err
		}
		c.Amount.SetInt64(0)
	}
	pos.CollateralAssets = nil
	pos.CreditAmount.SetInt64(0)

	if err := e.state.PutBasket(basket); err != nil {
		return err
	}
	if err := e.savePositions(basket, owner, positions); err != nil {
		return err
	}
	if e.proxy != nil && repayAmount.Sign() > 0 {
		return e.proxy.Burn(basket.CreditAsset.Denom(), repayAmount, owner)
	}
	return nil
}
