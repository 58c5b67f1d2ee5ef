// Package cdp implements the core of a collateralized-debt-position engine:
// multi-asset collateral baskets, LP-share decomposed pricing, dual-rate
// accrual (repayment-price drift plus per-asset two-slope borrow interest),
// a liquidation waterfall, and a premium-bucketed redemption engine.
package cdp

import (
	"math/big"

	"cdpcore/assets"
	"cdpcore/decimal"
)

// CAsset is a basket's collateral template or, inside a Position, the
// position's own holding of that collateral.
type CAsset struct {
	Asset assets.AssetRef
	// Amount is the held (or, on a basket template, zero) balance in the
	// asset's native base units.
	Amount *big.Int
	// MaxBorrowLTV gates borrow/withdraw solvency checks. Must be <= 1.
	MaxBorrowLTV decimal.Decimal
	// MaxLTV gates liquidation solvency checks. Must be <= 1 and, when
	// PoolInfo is set, strictly greater than MaxBorrowLTV.
	MaxLTV decimal.Decimal
	// PoolInfo is non-nil when Asset identifies an LP share token.
	PoolInfo *assets.PoolInfo
	// RateIndex is the per-basket-template compounding accrual index
	// (initial 1.0); on a Position's copy it is the snapshot value at the
	// asset's last touch.
	RateIndex decimal.Decimal
}

// Clone returns a deep copy of the CAsset.
func (c *CAsset) Clone() *CAsset {
	if c == nil {
		return nil
	}
	clone := &CAsset{
		Asset:        c.Asset,
		MaxBorrowLTV: c.MaxBorrowLTV,
		MaxLTV:       c.MaxLTV,
		RateIndex:    c.RateIndex,
		PoolInfo:     c.PoolInfo.Clone(),
	}
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return clone
}

// IsLP reports whether the CAsset is an LP share token requiring
// decomposition before pricing or cap arithmetic.
func (c *CAsset) IsLP() bool {
	return c != nil && c.PoolInfo != nil
}

// PositionID is a per-basket monotonic 128-bit identifier.
type PositionID struct {
	Hi uint64
	Lo uint64
}

// Position is a single owner's collateralized debt position within a
// basket.
type Position struct {
	ID              PositionID
	BasketID        string
	Owner           string
	CollateralAssets []*CAsset
	CreditAmount    *big.Int
	LastAccrued     int64 // unix seconds
	Redemption      *RedemptionInfo
}

// Clone returns a deep copy of the Position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		ID:          p.ID,
		BasketID:    p.BasketID,
		Owner:       p.Owner,
		LastAccrued: p.LastAccrued,
	}
	if p.CreditAmount != nil {
		clone.CreditAmount = new(big.Int).Set(p.CreditAmount)
	} else {
		clone.CreditAmount = big.NewInt(0)
	}
	for _, c := range p.CollateralAssets {
		clone.CollateralAssets = append(clone.CollateralAssets, c.Clone())
	}
	clone.Redemption = p.Redemption.Clone()
	return clone
}

// FindCollateral returns the position's CAsset entry for ref, or nil.
func (p *Position) FindCollateral(ref assets.AssetRef) *CAsset {
	for _, c := range p.CollateralAssets {
		if c.Asset.Equal(ref) {
			return c
		}
	}
	return nil
}

// HasDebt reports whether the position currently carries nonzero credit.
func (p *Position) HasDebt() bool {
	return p.CreditAmount != nil && p.CreditAmount.Sign() > 0
}

// Empty reports whether the position holds no collateral and no debt,
// i.e. it is eligible for removal from the store.
func (p *Position) Empty() bool {
	if p.HasDebt() {
		return false
	}
	for _, c := range p.CollateralAssets {
		if c.Amount != nil && c.Amount.Sign() > 0 {
			return false
		}
	}
	return true
}

// SupplyCap tracks a single collateral asset's share of total basket
// supply, and its contribution to the basket's derived debt cap.
type SupplyCap struct {
	Asset                         assets.AssetRef
	CurrentSupply                 *big.Int
	DebtTotal                     *big.Int
	SupplyCapRatio                decimal.Decimal
	LP                             bool
	StabilityPoolRatioForDebtCap  *decimal.Decimal // optional override
}

// Clone returns a deep copy of the SupplyCap.
func (s *SupplyCap) Clone() *SupplyCap {
	if s == nil {
		return nil
	}
	clone := &SupplyCap{
		Asset:           s.Asset,
		SupplyCapRatio:  s.SupplyCapRatio,
		LP:              s.LP,
	}
	if s.CurrentSupply != nil {
		clone.CurrentSupply = new(big.Int).Set(s.CurrentSupply)
	} else {
		clone.CurrentSupply = big.NewInt(0)
	}
	if s.DebtTotal != nil {
		clone.DebtTotal = new(big.Int).Set(s.DebtTotal)
	} else {
		clone.DebtTotal = big.NewInt(0)
	}
	if s.StabilityPoolRatioForDebtCap != nil {
		v := *s.StabilityPoolRatioForDebtCap
		clone.StabilityPoolRatioForDebtCap = &v
	}
	return clone
}

// Expunged reports whether the cap has been driven to zero, meaning the
// asset may no longer remain in any position taking further action.
func (s *SupplyCap) Expunged() bool {
	return s.SupplyCapRatio.IsZero()
}

// MultiAssetSupplyCap bounds the combined value share of a named group of
// assets.
type MultiAssetSupplyCap struct {
	Assets []assets.AssetRef
	Ratio  decimal.Decimal
}

// Clone returns a deep copy of the MultiAssetSupplyCap.
func (m *MultiAssetSupplyCap) Clone() *MultiAssetSupplyCap {
	if m == nil {
		return nil
	}
	clone := &MultiAssetSupplyCap{Ratio: m.Ratio}
	clone.Assets = append(clone.Assets, m.Assets...)
	return clone
}

// Contains reports whether ref belongs to the group.
func (m *MultiAssetSupplyCap) Contains(ref assets.AssetRef) bool {
	for _, a := range m.Assets {
		if a.Equal(ref) {
			return true
		}
	}
	return false
}

// Basket owns a credit asset and the collateral templates, caps, and
// global accrual state backing it.
type Basket struct {
	BasketID              string
	Owner                 string
	CreditAsset           assets.AssetRef
	CurrentPositionID     PositionID
	CollateralTypes       []*CAsset
	SupplyCaps            []*SupplyCap
	MultiAssetSupplyCaps  []*MultiAssetSupplyCap
	CreditPrice           decimal.Decimal
	BaseInterestRate      decimal.Decimal
	DesiredDebtCapUtil    decimal.Decimal
	CreditLastAccrued     int64
	PendingRevenue        *big.Int
	LiqQueueAddress       string
	CreditTWAPSource      string
	CollateralTWAPWindow  int64 // seconds
	CreditTWAPWindow      int64 // seconds
	NegativeRates         bool
	Frozen                bool
	RevToStakers          bool
	OracleSet             bool
	CPCMarginOfError      decimal.Decimal
	LiquidityMultiplier   decimal.Decimal
	// CrossBasketTVLShare is this basket's credit-weighted share of total
	// collateral value across every basket sharing CreditAsset (spec.md
	// §4.11's tvl_ratio). It is maintained administratively via EditBasket
	// rather than recomputed per call, since the engine has no basket
	// enumeration primitive in its State contract.
	CrossBasketTVLShare decimal.Decimal
	BadDebt              *big.Int
	// RedemptionIndex maps premium bucket (0..99) to the ordered list of
	// owners opted in at that premium, insertion order within a bucket
	// (spec.md §9 Open Question (i)).
	RedemptionIndex map[uint8][]string
}

// Clone returns a deep copy of the Basket.
func (b *Basket) Clone() *Basket {
	if b == nil {
		return nil
	}
	clone := &Basket{
		BasketID:            b.BasketID,
		Owner:               b.Owner,
		CreditAsset:         b.CreditAsset,
		CurrentPositionID:   b.CurrentPositionID,
		CreditPrice:         b.CreditPrice,
		BaseInterestRate:    b.BaseInterestRate,
		DesiredDebtCapUtil:  b.DesiredDebtCapUtil,
		CreditLastAccrued:   b.CreditLastAccrued,
		LiqQueueAddress:      b.LiqQueueAddress,
		CreditTWAPSource:     b.CreditTWAPSource,
		CollateralTWAPWindow: b.CollateralTWAPWindow,
		CreditTWAPWindow:     b.CreditTWAPWindow,
		NegativeRates:        b.NegativeRates,
		Frozen:              b.Frozen,
		RevToStakers:        b.RevToStakers,
		OracleSet:           b.OracleSet,
		CPCMarginOfError:     b.CPCMarginOfError,
		LiquidityMultiplier:  b.LiquidityMultiplier,
		CrossBasketTVLShare:  b.CrossBasketTVLShare,
	}
	if b.PendingRevenue != nil {
		clone.PendingRevenue = new(big.Int).Set(b.PendingRevenue)
	} else {
		clone.PendingRevenue = big.NewInt(0)
	}
	if b.BadDebt != nil {
		clone.BadDebt = new(big.Int).Set(b.BadDebt)
	} else {
		clone.BadDebt = big.NewInt(0)
	}
	for _, c := range b.CollateralTypes {
		clone.CollateralTypes = append(clone.CollateralTypes, c.Clone())
	}
	for _, s := range b.SupplyCaps {
		clone.SupplyCaps = append(clone.SupplyCaps, s.Clone())
	}
	for _, m := range b.MultiAssetSupplyCaps {
		clone.MultiAssetSupplyCaps = append(clone.MultiAssetSupplyCaps, m.Clone())
	}
	if b.RedemptionIndex != nil {
		clone.RedemptionIndex = make(map[uint8][]string, len(b.RedemptionIndex))
		for k, v := range b.RedemptionIndex {
			clone.RedemptionIndex[k] = append([]string(nil), v...)
		}
	}
	return clone
}

// FindCollateralType returns the basket's registered cAsset template for
// ref, or nil if ref is not a registered collateral type.
func (b *Basket) FindCollateralType(ref assets.AssetRef) *CAsset {
	for _, c := range b.CollateralTypes {
		if c.Asset.Equal(ref) {
			return c
		}
	}
	return nil
}

// FindSupplyCap returns the basket's SupplyCap entry for ref, or nil.
func (b *Basket) FindSupplyCap(ref assets.AssetRef) *SupplyCap {
	for _, s := range b.SupplyCaps {
		if s.Asset.Equal(ref) {
			return s
		}
	}
	return nil
}

// RedemptionInfo is a position's opt-in record for the redemption engine,
// keyed externally by premium bucket then owner then position.
type RedemptionInfo struct {
	Premium                  uint8 // 0..99
	RemainingLoanRepayment   *big.Int
	RestrictedCollateralAssets []assets.AssetRef
}

// Clone returns a deep copy of the RedemptionInfo.
func (r *RedemptionInfo) Clone() *RedemptionInfo {
	if r == nil {
		return nil
	}
	clone := &RedemptionInfo{Premium: r.Premium}
	if r.RemainingLoanRepayment != nil {
		clone.RemainingLoanRepayment = new(big.Int).Set(r.RemainingLoanRepayment)
	} else {
		clone.RemainingLoanRepayment = big.NewInt(0)
	}
	clone.RestrictedCollateralAssets = append(clone.RestrictedCollateralAssets, r.RestrictedCollateralAssets...)
	return clone
}

// IsRestricted reports whether ref is excluded from this position's
// redemption payout.
func (r *RedemptionInfo) IsRestricted(ref assets.AssetRef) bool {
	if r == nil {
		return false
	}
	for _, a := range r.RestrictedCollateralAssets {
		if a.Equal(ref) {
			return true
		}
	}
	return false
}

// StoredPrice is the last-good oracle observation used as a fallback when
// a live oracle query fails but the record is still within the staleness
// window.
type StoredPrice struct {
	Price           decimal.Decimal
	LastTimeUpdated int64
}
