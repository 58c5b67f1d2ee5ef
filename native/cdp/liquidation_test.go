package cdp

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLiquidateRejectsSolventPosition asserts Liquidate refuses a position
// whose max_LTV-weighted collateral still covers its debt.
func TestLiquidateRejectsSolventPosition(t *testing.T) {
	engine, store, basketID, debit := setupRedemptionBasket(t)
	posID := PositionID{Hi: 0, Lo: 1}
	pos := newRedeemablePosition(posID, basketID, "alice", debit, 100) // trivially solvent
	require.NoError(t, store.PutPositions(basketID, "alice", []*Position{pos}))

	_, err := engine.Liquidate(basketID, "alice", posID, "liquidator", 0)
	require.ErrorIs(t, err, errPositionNotInsolvent)
}

// TestLiquidateRoutesThroughStabilityPool drives a position insolvent under
// max_LTV (but not forced through Borrow's own max_borrow_LTV gate) through
// the waterfall's Stage 2, and asserts the stability pool fully repays it.
func TestLiquidateRoutesThroughStabilityPool(t *testing.T) {
	engine, store, basketID, debit := setupRedemptionBasket(t)
	sp := newStubStabilityPool()
	engine.SetStabilityPool(sp)

	posID := PositionID{Hi: 0, Lo: 1}
	// collateral value 1_000_000 * maxLTV(0.8) = 800_000 weighted cap;
	// credit_amount 900_000 exceeds it, so the position is insolvent under
	// max_LTV (it also exceeds the 500_000 max_borrow_LTV cap, so Borrow
	// could never have produced it).
	pos := newRedeemablePosition(posID, basketID, "alice", debit, 900_000)
	require.NoError(t, store.PutPositions(basketID, "alice", []*Position{pos}))

	result, err := engine.Liquidate(basketID, "alice", posID, "liquidator", 0)
	require.NoError(t, err)
	require.False(t, result.BadDebt)
	require.True(t, result.RepaidByPool.Sign() > 0, "expected the stability pool stage to repay something")
	require.Equal(t, 0, result.RemainingUnpaid.Sign(), "expected the waterfall to fully clear the repay target")

	positions, err := store.GetPositions(basketID, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, positions[0].CreditAmount.Cmp(big.NewInt(0)), "expected credit_amount cleared")
}

// TestLiquidateStabilityPoolStageClearsRepayPropagation asserts the waterfall's
// Stage 2 stages a RepayPropagation record for LiqRepay and clears the single
// slot once it has been applied, so any LiqRepay reply arriving afterward is
// rejected as stale rather than double-applied.
func TestLiquidateStabilityPoolStageClearsRepayPropagation(t *testing.T) {
	engine, store, basketID, debit := setupRedemptionBasket(t)
	sp := newStubStabilityPool()
	engine.SetStabilityPool(sp)

	posID := PositionID{Hi: 0, Lo: 1}
	pos := newRedeemablePosition(posID, basketID, "alice", debit, 900_000)
	require.NoError(t, store.PutPositions(basketID, "alice", []*Position{pos}))

	_, err := engine.Liquidate(basketID, "alice", posID, "liquidator", 0)
	require.NoError(t, err)

	prop, err := store.GetRepayPropagation()
	require.NoError(t, err)
	require.NotNil(t, prop)
	require.Empty(t, prop.CallID, "expected the staged call to be cleared once LiqRepay applied it")

	_, err = engine.LiqRepay("some-stale-call-id", 0)
	require.ErrorIs(t, err, errStaleReply)
}

// TestLiquidateMarksBadDebtWhenCollateralExhausted asserts a position with
// debt but zero collateral value is flagged as bad debt rather than routed
// through the waterfall.
func TestLiquidateMarksBadDebtWhenCollateralExhausted(t *testing.T) {
	engine, store, basketID, debit := setupRedemptionBasket(t)
	posID := PositionID{Hi: 0, Lo: 1}
	pos := newRedeemablePosition(posID, basketID, "alice", debit, 900_000)
	pos.CollateralAssets[0].Amount = big.NewInt(0)
	require.NoError(t, store.PutPositions(basketID, "alice", []*Position{pos}))

	result, err := engine.Liquidate(basketID, "alice", posID, "liquidator", 0)
	require.NoError(t, err)
	require.True(t, result.BadDebt)
	require.Equal(t, 0, result.RemainingUnpaid.Cmp(big.NewInt(900_000)))

	basket, err := engine.GetBasket(basketID)
	require.NoError(t, err)
	require.Equal(t, 0, basket.BadDebt.Cmp(big.NewInt(900_000)))
}
