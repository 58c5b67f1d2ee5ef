package cdp

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpcore/decimal"
)

func TestCheckAmountBounds(t *testing.T) {
	require.NoError(t, checkAmountBounds(nil))
	require.NoError(t, checkAmountBounds(big.NewInt(1_000_000)))
	require.NoError(t, checkAmountBounds(maxBalance))

	overBalance := new(big.Int).Add(maxBalance, big.NewInt(1)) // 2^128, fits a uint256 but not a 128-bit balance
	require.ErrorIs(t, checkAmountBounds(overBalance), errInvalidAmount)

	overUint256 := new(big.Int).Lsh(big.NewInt(1), 256) // 2^256 overflows uint256 itself
	require.ErrorIs(t, checkAmountBounds(overUint256), errInvalidAmount)
}

func TestDepositRejectsOverflowingAmount(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	basketID := "bounds-basket"
	_, err := engine.CreateBasket(basketID, "owner", nativeRef("credit"), 0)
	require.NoError(t, err)
	debit := nativeRef("debit")
	_, err = engine.EditcAsset(basketID, "owner", CAssetEdit{
		Asset:          debit,
		MaxBorrowLTV:   tenth(50),
		MaxLTV:         tenth(80),
		SupplyCapRatio: decimal.One(),
	})
	require.NoError(t, err)

	tooLarge := new(big.Int).Add(maxBalance, big.NewInt(1))
	_, err = engine.Deposit(basketID, "alice", nil, []CollateralIncrement{{Asset: debit, Amount: tooLarge}}, 0)
	require.ErrorIs(t, err, errInvalidAmount)
}
