package cdp

import (
	"math/big"

	"cdpcore/assets"
	"cdpcore/decimal"
)

// Oracle is the consumed TWAP price service (spec.md §6).
type Oracle interface {
	Price(ref assets.AssetRef, twapWindow int64, basketID string) (decimal.Decimal, uint8, error)
	Assets(refs []assets.AssetRef) ([]OracleDescriptor, error)
}

// OracleDescriptor is a per-asset oracle capability record.
type OracleDescriptor struct {
	Asset    assets.AssetRef
	Decimals uint8
}

// TokenProxy is the consumed mint/burn/pool-state service (spec.md §6).
type TokenProxy interface {
	Mint(denom string, amount *big.Int, to string) error
	Burn(denom string, amount *big.Int, from string) error
	CreateDenom(subdenom string, maxSupply *big.Int, liquidityMultiplier *decimal.Decimal) error
	GetDenom(creator, subdenom string) (string, error)
	GetTokenInfo(denom string) (TokenInfo, error)
	PoolState(poolID string) (PoolState, error)
	GetOwner(addr string) (OwnerInfo, error)
}

// TokenInfo mirrors the proxy's GetTokenInfo reply.
type TokenInfo struct {
	CurrentSupply *big.Int
	MaxSupply     *big.Int
	BurnedSupply  *big.Int
}

// PoolState mirrors the proxy's PoolState reply: reserves and total shares
// for an LP pool, used by the pricing adapter's decomposition.
type PoolState struct {
	Assets []PoolAsset
	Shares *big.Int
}

// PoolAsset is one leg of a pool's live reserves.
type PoolAsset struct {
	Asset  assets.AssetRef
	Amount *big.Int
}

// OwnerInfo mirrors the proxy's GetOwner reply.
type OwnerInfo struct {
	Owner                string
	StabilityPoolRatio    *decimal.Decimal
	NonTokenContractAuth  bool
	IsPositionContract    bool
}

// LiquidationQueue is the consumed first-stage liquidation collaborator.
type LiquidationQueue interface {
	CheckLiquidatible(bidFor assets.AssetRef, collateralPrice decimal.Decimal, collateralAmount *big.Int, creditInfo assets.AssetRef, creditPrice decimal.Decimal) (LQCheckResult, error)
	Liquidate(creditPrice, collateralPrice decimal.Decimal, collateralAmount *big.Int, bidFor assets.AssetRef, positionID PositionID, positionOwner string) error
}

// LQCheckResult is the liquidation queue's CheckLiquidatible reply.
type LQCheckResult struct {
	LeftoverCollateral *big.Int
	TotalDebtRepaid    *big.Int
}

// StabilityPool is the consumed second-stage liquidation collaborator.
type StabilityPool interface {
	CheckLiquidatible(amount *big.Int) (*big.Int, error) // returns leftover
	Liquidate(liqAmount *big.Int) error
	Distribute(distributionAssets []assets.AssetRef, distributionRatios []decimal.Decimal, distributeFor assets.AssetRef) error
	AssetPool() (StabilityPoolInfo, error)
}

// StabilityPoolInfo mirrors the pool's AssetPool reply.
type StabilityPoolInfo struct {
	CreditAsset assets.AssetRef
	LiqPremium  decimal.Decimal
	Deposits    *big.Int
}

// Router is the consumed DEX fallback collaborator.
type Router interface {
	BasketLiquidate(offerAssets []PoolAsset, receiveAsset assets.AssetRef, minimumReceive *big.Int, to string) error
}

// LiquidityAggregator is the consumed external-liquidity oracle for
// debt-cap derivation.
type LiquidityAggregator interface {
	Liquidity(asset assets.AssetRef) (*big.Int, error)
}

// Discounts is the consumed per-user rate discount service.
type Discounts interface {
	UserDiscount(user string) (decimal.Decimal, error)
}

// Staking is the consumed fee-sink collaborator.
type Staking interface {
	DepositFee(amount *big.Int, asset assets.AssetRef) error
	Config() (StakingConfig, error)
}

// StakingConfig mirrors the staking module's Config reply.
type StakingConfig struct {
	KeepRawCredit   bool
	AuctionContract string
}
