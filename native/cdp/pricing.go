package cdp

import (
	"math/big"
	"time"

	"cdpcore/assets"
	"cdpcore/decimal"
)

// creditDecimalsBase is the fractional-digit base LP underlying amounts are
// normalized to before summing into a share value (spec.md §4.1).
const creditDecimalsBase = 6

// Pricer is the Pricing Adapter: it wraps the oracle, falls back to a
// cached StoredPrice within a staleness window, and prices LP share tokens
// by decomposing them into underlyings at current pool composition.
//
// A Decimal price returned here is value-per-base-unit of the priced asset,
// expressed in the credit asset's base units — Decimal.MulInt(amount)
// applied to a raw base-unit balance yields a credit-denominated value
// directly, with no further unit conversion at the call site.
type Pricer struct {
	state  State
	oracle Oracle
	proxy  TokenProxy
}

// NewPricer builds a Pricer over the given state and external collaborators.
// oracle and proxy may be nil; a nil oracle always falls through to the
// StoredPrice cache, and a nil proxy makes LP pricing fail.
func NewPricer(state State, oracle Oracle, proxy TokenProxy) *Pricer {
	return &Pricer{state: state, oracle: oracle, proxy: proxy}
}

// PriceAsset returns the current price of a plain (non-LP) asset: a live
// oracle query on success, updating the StoredPrice cache; otherwise the
// cached StoredPrice if it is within oracleTimeLimit seconds of now.
func (p *Pricer) PriceAsset(basketID string, ref assets.AssetRef, twapWindow int64, now int64, oracleTimeLimit uint64) (decimal.Decimal, error) {
	if p.oracle != nil {
		price, _, err := p.oracle.Price(ref, twapWindow, basketID)
		if err == nil {
			_ = p.state.PutStoredPrice(ref, &StoredPrice{Price: price, LastTimeUpdated: now})
			return price, nil
		}
	}
	stored, err := p.state.GetStoredPrice(ref)
	if err != nil {
		return decimal.Zero(), err
	}
	if stored == nil {
		return decimal.Zero(), errOraclePriceInvalid
	}
	age := now - stored.LastTimeUpdated
	if age < 0 {
		age = 0
	}
	if uint64(age) > oracleTimeLimit {
		return decimal.Zero(), errOraclePriceInvalid
	}
	return stored.Price, nil
}

// PriceLPShare prices holdingShares of an LP cAsset by querying live pool
// reserves, computing each underlying's share of those reserves, pricing
// each underlying via PriceAsset, and dividing the summed share value by
// holdingShares to obtain a per-share unit price.
func (p *Pricer) PriceLPShare(basketID string, c *CAsset, holdingShares *big.Int, twapWindow int64, now int64, oracleTimeLimit uint64) (decimal.Decimal, error) {
	contributions, err := p.UnderlyingValues(basketID, c, holdingShares, twapWindow, now, oracleTimeLimit)
	if err != nil {
		return decimal.Zero(), err
	}
	shareValue := big.NewInt(0)
	for _, v := range contributions {
		shareValue.Add(shareValue, v)
	}
	if holdingShares == nil || holdingShares.Sign() == 0 {
		return decimal.Zero(), nil
	}
	return decimal.FromFraction(shareValue, holdingShares), nil
}

// UnderlyingValues returns the credit-denominated value contribution of
// holding amount of cAsset c, keyed by underlying AssetRef string. For a
// plain (non-LP) asset this is a single entry keyed by c.Asset itself; for
// an LP share token it is the per-underlying breakdown at current pool
// composition, which both caps and the debt-cap engine need to avoid
// double counting an LP against its own denominator (spec.md §4.2).
func (p *Pricer) UnderlyingValues(basketID string, c *CAsset, amount *big.Int, twapWindow int64, now int64, oracleTimeLimit uint64) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int)
	if c == nil || amount == nil || amount.Sign() == 0 {
		return out, nil
	}
	if !c.IsLP() {
		price, err := p.PriceAsset(basketID, c.Asset, twapWindow, now, oracleTimeLimit)
		if err != nil {
			return nil, err
		}
		out[c.Asset.String()] = price.MulInt(amount)
		return out, nil
	}
	if p.proxy == nil {
		return nil, errOraclePriceInvalid
	}
	pool, err := p.proxy.PoolState(c.PoolInfo.PoolID)
	if err != nil {
		return nil, err
	}
	if pool.Shares == nil || pool.Shares.Sign() == 0 {
		return nil, errOraclePriceInvalid
	}
	for _, underlying := range c.PoolInfo.Underlyings {
		reserve := findReserve(pool.Assets, underlying.Asset)
		if reserve == nil {
			continue
		}
		amt := new(big.Int).Mul(reserve, amount)
		amt.Quo(amt, pool.Shares)
		amt = normalizeToCreditDecimals(amt, underlying.Decimals)

		price, err := p.PriceAsset(basketID, underlying.Asset, twapWindow, now, oracleTimeLimit)
		if err != nil {
			return nil, err
		}
		value := price.MulInt(amt)
		key := underlying.Asset.String()
		if existing, ok := out[key]; ok {
			out[key] = new(big.Int).Add(existing, value)
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func findReserve(poolAssets []PoolAsset, ref assets.AssetRef) *big.Int {
	for _, a := range poolAssets {
		if a.Asset.Equal(ref) {
			return a.Amount
		}
	}
	return nil
}

// normalizeToCreditDecimals rescales an amount expressed at decimals
// fractional digits down to the creditDecimalsBase convention, as spec.md
// §4.1 requires for LP underlying amounts with higher native precision.
func normalizeToCreditDecimals(amount *big.Int, decimals uint8) *big.Int {
	if decimals <= creditDecimalsBase {
		return amount
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-creditDecimalsBase)), nil)
	return new(big.Int).Quo(amount, divisor)
}

// now returns the current unix timestamp. Callers needing determinism (e.g.
// accrual under test) pass an explicit `now` instead of calling this helper.
func now() int64 {
	return time.Now().Unix()
}
