package cdp

import (
	"math/big"

	"cdpcore/decimal"
)

// secondsPerYear annualizes per-tick rates, mirroring the teacher's
// blocksPerYear constant but expressed in wall-clock seconds since accrual
// here is driven by timestamps, not block height.
const secondsPerYear = 365 * 24 * 60 * 60

// Phase 1 liquidity gate thresholds (spec.md §4.3): repayment-price drift
// only runs when external liquidity clears an absolute floor and a ratio
// of current supply.
var (
	repaymentLiquidityFloor = big.NewInt(2_000_000_000_000)
	repaymentLiquidityRatio = decimal.FromFraction(big.NewInt(3), big.NewInt(100))
)

// feeDecimalsExponent and feeDecimalsScale are declared for the liquidation
// fee-availability ratio (spec.md §4.8). Liquidate does not apply them: it
// takes the available fee as (current LTV - max_borrow_LTV-weighted LTV)
// times collateral value, unscaled.
const feeDecimalsExponent = 4

var feeDecimalsScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(feeDecimalsExponent), nil)

// bpsToDecimal converts a basis-point integer (e.g. 3300 == 33%) into a
// Decimal ratio.
func bpsToDecimal(bps uint64) decimal.Decimal {
	return decimal.FromFraction(new(big.Int).SetUint64(bps), big.NewInt(10_000))
}
