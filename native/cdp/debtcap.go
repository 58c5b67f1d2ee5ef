package cdp

import (
	"math/big"

	"cdpcore/decimal"
)

// totalDebtCap derives the basket's aggregate debt cap (spec.md §4.11):
// external_liquidity(credit) * credit_asset_multiplier + stability_pool_depth(credit),
// floored at base_debt_cap_multiplier * debt_minimum.
func (e *Engine) totalDebtCap(basket *Basket) (*big.Int, error) {
	liquidity := big.NewInt(0)
	if e.liquidity != nil {
		l, err := e.liquidity.Liquidity(basket.CreditAsset)
		if err != nil {
			return nil, err
		}
		if l != nil {
			liquidity = l
		}
	}

	spDepth := big.NewInt(0)
	if e.stabilityPool != nil {
		info, err := e.stabilityPool.AssetPool()
		if err == nil && info.Deposits != nil {
			spDepth = info.Deposits
		}
	}

	multiplier, err := e.creditAssetMultiplier(basket)
	if err != nil {
		return nil, err
	}

	cap := new(big.Int).Set(multiplier.MulInt(liquidity))
	cap.Add(cap, spDepth)

	floor := new(big.Int).Mul(big.NewInt(int64(e.cfg.BaseDebtCapMultiplier)), e.cfg.DebtMinimumWei)
	if cap.Cmp(floor) < 0 {
		cap = floor
	}
	return cap, nil
}

// creditAssetMultiplier computes min(basket.LiquidityMultiplier, tvl_ratio *
// cross_basket_multiplier), reading the administratively-maintained
// cross-basket multiplier from the credit_multi/{asset} store entry.
func (e *Engine) creditAssetMultiplier(basket *Basket) (decimal.Decimal, error) {
	raw, found, err := e.state.GetCreditMultiplier(basket.CreditAsset)
	if err != nil {
		return decimal.Zero(), err
	}
	crossBasketMultiplier := decimal.One()
	if found {
		parsed, ok := new(big.Int).SetString(raw, 10)
		if ok {
			crossBasketMultiplier = decimal.FromRaw(parsed)
		}
	}
	viaTVL := basket.CrossBasketTVLShare.Mul(crossBasketMultiplier)
	return basket.LiquidityMultiplier.Min(viaTVL), nil
}

// apportionDebtCaps splits the basket's total debt cap across non-LP
// collateral types by current-supply value share, honoring per-asset
// StabilityPoolRatioForDebtCap overrides.
func (e *Engine) apportionDebtCaps(basket *Basket, nowTs int64) (map[string]*big.Int, error) {
	total, err := e.totalDebtCap(basket)
	if err != nil {
		return nil, err
	}
	denom, err := e.totalNonLPSupplyValue(basket, nowTs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*big.Int)
	if denom.Sign() == 0 {
		for _, sc := range basket.SupplyCaps {
			if sc.LP {
				continue
			}
			out[sc.Asset.String()] = big.NewInt(0)
		}
		return out, nil
	}
	for _, sc := range basket.SupplyCaps {
		if sc.LP {
			continue
		}
		if sc.StabilityPoolRatioForDebtCap != nil {
			out[sc.Asset.String()] = sc.StabilityPoolRatioForDebtCap.MulInt(total)
			continue
		}
		price, err := e.pricer.PriceAsset(basket.BasketID, sc.Asset, basket.CollateralTWAPWindow, nowTs, e.cfg.OracleTimeLimitSeconds)
		if err != nil {
			return nil, err
		}
		value := price.MulInt(sc.CurrentSupply)
		share := decimal.FromFraction(value, denom)
		out[sc.Asset.String()] = share.MulInt(total)
	}
	return out, nil
}
