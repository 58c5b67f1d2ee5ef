package cdp

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpcore/assets"
	"cdpcore/decimal"
)

func setupAccrualBasket(t *testing.T) (*Engine, string, assets.AssetRef) {
	t.Helper()
	engine, _, oracle, _ := newTestEngine()
	debit := nativeRef("debit")
	oracle.set(debit, decimal.One())
	oracle.set(nativeRef("credit"), decimal.One())

	basketID := "accrual-basket"
	_, err := engine.CreateBasket(basketID, "owner", nativeRef("credit"), 0)
	require.NoError(t, err)
	_, err = engine.EditcAsset(basketID, "owner", CAssetEdit{
		Asset:          debit,
		MaxBorrowLTV:   tenth(50),
		MaxLTV:         tenth(80),
		SupplyCapRatio: decimal.One(),
	})
	require.NoError(t, err)
	rate := tenth(10) // 10% base rate
	oracleSet := true
	_, err = engine.EditBasket(basketID, "owner", BasketEdits{
		BaseInterestRate: &rate,
		OracleSet:        &oracleSet,
	})
	require.NoError(t, err)
	return engine, basketID, debit
}

// TestAccrueBasketIdempotentAtSameTimestamp asserts a second accrual call at
// an unchanged timestamp is a no-op (zero deltaT advances nothing).
func TestAccrueBasketIdempotentAtSameTimestamp(t *testing.T) {
	engine, basketID, debit := setupAccrualBasket(t)
	basket, err := engine.GetBasket(basketID)
	require.NoError(t, err)

	_, _, err = engine.accrueBasket(basket, 1_000)
	require.NoError(t, err)
	tmpl := basket.FindCollateralType(debit)
	require.NotNil(t, tmpl)
	firstIndex := tmpl.RateIndex

	_, _, err = engine.accrueBasket(basket, 1_000)
	require.NoError(t, err)
	require.True(t, tmpl.RateIndex.Equal(firstIndex), "repeated accrual at the same timestamp must not advance the rate index")
}

// TestAccruePositionAddsInterestOverTime borrows against a basket with a
// positive base interest rate, then asserts a position's credit_amount grows
// strictly after a year elapses and a fresh accrual is run.
func TestAccruePositionAddsInterestOverTime(t *testing.T) {
	engine, basketID, debit := setupAccrualBasket(t)

	posID := PositionID{Hi: 0, Lo: 1}
	_, err := engine.Deposit(basketID, "alice", nil, []CollateralIncrement{{Asset: debit, Amount: big.NewInt(10_000_000)}}, 0)
	require.NoError(t, err)

	_, err = engine.Borrow(basketID, "alice", posID, big.NewInt(1_000_000), nil, "", 0)
	require.NoError(t, err)

	basket, err := engine.GetBasket(basketID)
	require.NoError(t, err)
	positions, err := engine.GetUserPositions(basketID, "alice")
	require.NoError(t, err)
	pos := positions[0]
	before := new(big.Int).Set(pos.CreditAmount)

	_, _, err = engine.accrueBasket(basket, secondsPerYear)
	require.NoError(t, err)
	require.NoError(t, engine.accruePosition(basket, pos, secondsPerYear))

	require.Equal(t, 1, pos.CreditAmount.Cmp(before), "credit_amount should grow after a year of positive-rate accrual, got %s (was %s)", pos.CreditAmount, before)
}

// TestAccrueRepaymentPriceDeadBand asserts a market/target diff within the
// configured margin of error does not move credit_price.
func TestAccrueRepaymentPriceDeadBand(t *testing.T) {
	engine, basketID, _ := setupAccrualBasket(t)
	basket, err := engine.GetBasket(basketID)
	require.NoError(t, err)

	margin := tenth(50) // 50% margin of error, comfortably wider than any diff below
	_, err = engine.EditBasket(basketID, "owner", BasketEdits{CPCMarginOfError: &margin})
	require.NoError(t, err)
	basket, err = engine.GetBasket(basketID)
	require.NoError(t, err)

	before := basket.CreditPrice
	tick, err := engine.accrueRepaymentPrice(basket, 1_000, 1_000)
	require.NoError(t, err)
	require.True(t, basket.CreditPrice.Equal(before), "credit_price must not move within the dead-band")
	require.NotNil(t, tick)
}
