package cdp

import (
	"math/big"

	"cdpcore/assets"
	"cdpcore/config"
	"cdpcore/decimal"
)

// CreateBasket implements spec.md §6's CreateBasket entrypoint: a basket
// owner registers a new basket around an initial credit asset.
func (e *Engine) CreateBasket(basketID, owner string, creditAsset assets.AssetRef, nowTs int64) (*Basket, error) {
	if _, err := e.state.GetBasket(basketID); err == nil {
		return nil, errInvalidCredit
	}
	basket := &Basket{
		BasketID:           basketID,
		Owner:              owner,
		CreditAsset:        creditAsset,
		CreditPrice:        decimal.One(),
		BaseInterestRate:   decimal.Zero(),
		DesiredDebtCapUtil: decimal.One(),
		CreditLastAccrued:  nowTs,
		PendingRevenue:     big.NewInt(0),
		CPCMarginOfError:   decimal.Zero(),
		LiquidityMultiplier: decimal.One(),
		CrossBasketTVLShare: decimal.Zero(),
		BadDebt:            big.NewInt(0),
	}
	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	return basket, nil
}

// BasketEdits carries the basket-wide knobs EditBasket may update. A nil
// field leaves the existing value unchanged.
type BasketEdits struct {
	BaseInterestRate     *decimal.Decimal
	DesiredDebtCapUtil   *decimal.Decimal
	NegativeRates        *bool
	Frozen               *bool
	RevToStakers         *bool
	OracleSet            *bool
	CPCMarginOfError     *decimal.Decimal
	LiquidityMultiplier  *decimal.Decimal
	CrossBasketTVLShare  *decimal.Decimal
	LiqQueueAddress      *string
	CreditTWAPSource     *string
	CollateralTWAPWindow *int64
	CreditTWAPWindow     *int64
}

// EditBasket implements spec.md §6's EditBasket entrypoint.
func (e *Engine) EditBasket(basketID, caller string, edits BasketEdits) (*Basket, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if basket.Owner != caller {
		return nil, errUnauthorized
	}
	if edits.BaseInterestRate != nil {
		basket.BaseInterestRate = *edits.BaseInterestRate
	}
	if edits.DesiredDebtCapUtil != nil {
		basket.DesiredDebtCapUtil = *edits.DesiredDebtCapUtil
	}
	if edits.NegativeRates != nil {
		basket.NegativeRates = *edits.NegativeRates
	}
	if edits.Frozen != nil {
		basket.Frozen = *edits.Frozen
	}
	if edits.RevToStakers != nil {
		basket.RevToStakers = *edits.RevToStakers
	}
	if edits.OracleSet != nil {
		basket.OracleSet = *edits.OracleSet
	}
	if edits.CPCMarginOfError != nil {
		basket.CPCMarginOfError = *edits.CPCMarginOfError
	}
	if edits.LiquidityMultiplier != nil {
		basket.LiquidityMultiplier = *edits.LiquidityMultiplier
	}
	if edits.CrossBasketTVLShare != nil {
		basket.CrossBasketTVLShare = *edits.CrossBasketTVLShare
	}
	if edits.LiqQueueAddress != nil {
		basket.LiqQueueAddress = *edits.LiqQueueAddress
	}
	if edits.CreditTWAPSource != nil {
		basket.CreditTWAPSource = *edits.CreditTWAPSource
	}
	if edits.CollateralTWAPWindow != nil {
		basket.CollateralTWAPWindow = *edits.CollateralTWAPWindow
	}
	if edits.CreditTWAPWindow != nil {
		basket.CreditTWAPWindow = *edits.CreditTWAPWindow
	}
	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	return basket, nil
}

// CAssetEdit describes an add-or-update to a single basket collateral
// template (spec.md §6's EditcAsset, restored per SPEC_FULL.md §4).
type CAssetEdit struct {
	Asset        assets.AssetRef
	MaxBorrowLTV decimal.Decimal
	MaxLTV       decimal.Decimal
	PoolInfo     *assets.PoolInfo
	SupplyCapRatio decimal.Decimal
	LP             bool
	StabilityPoolRatioForDebtCap *decimal.Decimal
}

// EditcAsset implements the fine-grained per-collateral counterpart to
// EditBasket.
func (e *Engine) EditcAsset(basketID, caller string, edit CAssetEdit) (*Basket, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if basket.Owner != caller {
		return nil, errUnauthorized
	}
	if edit.PoolInfo != nil && !(edit.MaxBorrowLTV.LessThan(edit.MaxLTV) && edit.MaxLTV.LessThan(decimal.One())) {
		return nil, errInvalidCollateral
	}
	if edit.PoolInfo != nil {
		for _, u := range edit.PoolInfo.Underlyings {
			if basket.FindCollateralType(u.Asset) == nil {
				return nil, errInvalidCollateral
			}
		}
	}

	tmpl := basket.FindCollateralType(edit.Asset)
	if tmpl == nil {
		tmpl = &CAsset{Asset: edit.Asset, Amount: big.NewInt(0), RateIndex: decimal.One()}
		basket.CollateralTypes = append(basket.CollateralTypes, tmpl)
	}
	tmpl.MaxBorrowLTV = edit.MaxBorrowLTV
	tmpl.MaxLTV = edit.MaxLTV
	tmpl.PoolInfo = edit.PoolInfo

	sc := basket.FindSupplyCap(edit.Asset)
	if sc == nil {
		sc = &SupplyCap{Asset: edit.Asset, CurrentSupply: big.NewInt(0), DebtTotal: big.NewInt(0)}
		basket.SupplyCaps = append(basket.SupplyCaps, sc)
	}
	sc.SupplyCapRatio = edit.SupplyCapRatio
	sc.LP = edit.LP
	sc.StabilityPoolRatioForDebtCap = edit.StabilityPoolRatioForDebtCap

	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	return basket, nil
}

// UpdateConfig implements spec.md §6's UpdateConfig entrypoint: replaces the
// runtime Config wholesale, applying defaults to any omitted field.
func (e *Engine) UpdateConfig(caller string, cfg *config.Config) (*config.Config, error) {
	cfg.EnsureDefaults()
	if err := e.state.PutConfig(cfg); err != nil {
		return nil, err
	}
	e.cfg = cfg
	return cfg, nil
}

// MintRevenue implements the revenue-sweep entrypoint restored from
// original_source/ (SPEC_FULL.md §4): mints a basket's pending_revenue to
// its configured staking sink or back to the basket owner, gated by
// RevToStakers.
func (e *Engine) MintRevenue(basketID, caller string) (*big.Int, error) {
	basket, err := e.ensureBasket(basketID)
	if err != nil {
		return nil, err
	}
	if basket.Owner != caller {
		return nil, errUnauthorized
	}
	if basket.PendingRevenue == nil || basket.PendingRevenue.Sign() == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Set(basket.PendingRevenue)

	recipient := basket.Owner
	if basket.RevToStakers && e.staking != nil {
		if err := e.staking.DepositFee(amount, basket.CreditAsset); err != nil {
			return nil, err
		}
	} else if e.proxy != nil {
		if err := e.proxy.Mint(basket.CreditAsset.Denom(), amount, recipient); err != nil {
			return nil, err
		}
	}

	basket.PendingRevenue.SetInt64(0)
	if err := e.state.PutBasket(basket); err != nil {
		return nil, err
	}
	return amount, nil
}
