package cdp

import "math/big"

// isInsolvent reports whether pos's LTV-weighted collateral value fails to
// cover its debt value under the given LTV parameter selection (spec.md
// §4.5-§4.6: max_borrow_LTV for writes, max_LTV for liquidation).
func (e *Engine) isInsolvent(basket *Basket, pos *Position, nowTs int64, useMaxLTV bool) (bool, error) {
	if !pos.HasDebt() {
		return false, nil
	}
	weighted, err := e.collateralValueLTVWeighted(basket, pos, nowTs, useMaxLTV)
	if err != nil {
		return false, err
	}
	debtValue := basket.CreditPrice.MulInt(pos.CreditAmount)
	return weighted.Cmp(debtValue) < 0, nil
}

// positionDebtAndCollateralValue returns the position's raw debt value and
// total collateral value, for callers (liquidation fee computation, LTV
// queries) that need both components rather than a single combined ratio.
func (e *Engine) positionDebtAndCollateralValue(basket *Basket, pos *Position, nowTs int64) (debtValue, collateralValue *big.Int, err error) {
	total, _, err := e.positionValue(basket, pos, nowTs)
	if err != nil {
		return nil, nil, err
	}
	debtValue = basket.CreditPrice.MulInt(pos.CreditAmount)
	return debtValue, total, nil
}
