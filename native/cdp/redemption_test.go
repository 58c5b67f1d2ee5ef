package cdp

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpcore/assets"
	"cdpcore/decimal"
)

func setupRedemptionBasket(t *testing.T) (*Engine, *KVStore, string, assets.AssetRef) {
	t.Helper()
	engine, store, oracle, _ := newTestEngine()
	debit := nativeRef("debit")
	oracle.set(debit, decimal.One())

	basketID := "redeem-basket"
	_, err := engine.CreateBasket(basketID, "owner", nativeRef("credit"), 0)
	require.NoError(t, err)
	_, err = engine.EditcAsset(basketID, "owner", CAssetEdit{
		Asset:          debit,
		MaxBorrowLTV:   decimal.FromFraction(big.NewInt(50), big.NewInt(100)),
		MaxLTV:         decimal.FromFraction(big.NewInt(80), big.NewInt(100)),
		SupplyCapRatio: decimal.One(),
	})
	require.NoError(t, err)
	return engine, store, basketID, debit
}

func newRedeemablePosition(id PositionID, basketID, owner string, debit assets.AssetRef, credit int64) *Position {
	return &Position{
		ID:       id,
		BasketID: basketID,
		Owner:    owner,
		CollateralAssets: []*CAsset{{
			Asset:        debit,
			Amount:       big.NewInt(1_000_000),
			MaxBorrowLTV: decimal.FromFraction(big.NewInt(50), big.NewInt(100)),
			MaxLTV:       decimal.FromFraction(big.NewInt(80), big.NewInt(100)),
			RateIndex:    decimal.One(),
		}},
		CreditAmount: big.NewInt(credit),
		LastAccrued:  0,
	}
}

func tenth(n int64) decimal.Decimal { return decimal.FromFraction(big.NewInt(n), big.NewInt(100)) }

// TestRedeemCollateralAcrossBuckets reproduces spec.md §8 scenario (E):
// two positions opted in at 10% and 20% premium; a 100_000-credit redemption
// should consume 5_000 then 10_000 credit and return 85_000 in excess.
func TestRedeemCollateralAcrossBuckets(t *testing.T) {
	engine, store, basketID, debit := setupRedemptionBasket(t)

	aliceID := PositionID{Hi: 0, Lo: 1}
	bobID := PositionID{Hi: 0, Lo: 2}
	putPos := func(id PositionID, owner string, credit int64) {
		err := store.PutPositions(basketID, owner, []*Position{newRedeemablePosition(id, basketID, owner, debit, credit)})
		require.NoError(t, err)
	}
	putPos(aliceID, "alice", 50_000)
	putPos(bobID, "bob", 50_000)

	require.NoError(t, engine.EditRedeemability(basketID, "alice", aliceID, 10, tenth(10), nil, 0))
	require.NoError(t, engine.EditRedeemability(basketID, "bob", bobID, 20, tenth(20), nil, 0))

	refunds, excess, err := engine.RedeemCollateral(basketID, "redeemer", big.NewInt(100_000), nil, 0)
	require.NoError(t, err)
	require.Equal(t, 0, excess.Cmp(big.NewInt(85_000)), "expected excess 85000, got %s", excess)

	got := refunds[debit.String()]
	require.NotNil(t, got)
	require.Equal(t, 0, got.Cmp(big.NewInt(12_500)), "expected total refund 12500, got %s", got)

	alicePositions, err := store.GetPositions(basketID, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, alicePositions[0].CreditAmount.Cmp(big.NewInt(45_000)))
	require.Nil(t, alicePositions[0].Redemption, "expected alice's opt-in to be cleared after full repayment")

	bobPositions, err := store.GetPositions(basketID, "bob")
	require.NoError(t, err)
	require.Equal(t, 0, bobPositions[0].CreditAmount.Cmp(big.NewInt(40_000)))

	basket, err := engine.GetBasket(basketID)
	require.NoError(t, err)
	require.Empty(t, basket.RedemptionIndex[10])
	require.Empty(t, basket.RedemptionIndex[20])
}

// TestRedeemCollateralNoEligiblePositions asserts the "fail rather than
// silently partial-fill" contract when nothing is opted in.
func TestRedeemCollateralNoEligiblePositions(t *testing.T) {
	engine, _, basketID, _ := setupRedemptionBasket(t)
	_, _, err := engine.RedeemCollateral(basketID, "redeemer", big.NewInt(1_000), nil, 0)
	require.ErrorIs(t, err, errNoRedemptionsAvailable)
}

// TestRedeemCollateralRespectsPremiumBound ensures a redeemer who bounds
// max_collateral_premium below an opted-in bucket does not get filled from
// it, and fails when that is the only bucket available.
func TestRedeemCollateralRespectsPremiumBound(t *testing.T) {
	engine, store, basketID, debit := setupRedemptionBasket(t)
	aliceID := PositionID{Hi: 0, Lo: 1}
	err := store.PutPositions(basketID, "alice", []*Position{newRedeemablePosition(aliceID, basketID, "alice", debit, 50_000)})
	require.NoError(t, err)
	require.NoError(t, engine.EditRedeemability(basketID, "alice", aliceID, 20, tenth(10), nil, 0))

	bound := uint8(10)
	_, _, err = engine.RedeemCollateral(basketID, "redeemer", big.NewInt(1_000), &bound, 0)
	require.ErrorIs(t, err, errNoRedemptionsAvailable, "expected failure under a tight premium bound")
}

// TestEditRedeemabilityValidation covers spec.md §4.10's opt-in validation.
func TestEditRedeemabilityValidation(t *testing.T) {
	engine, store, basketID, debit := setupRedemptionBasket(t)
	aliceID := PositionID{Hi: 0, Lo: 1}
	err := store.PutPositions(basketID, "alice", []*Position{newRedeemablePosition(aliceID, basketID, "alice", debit, 50_000)})
	require.NoError(t, err)

	require.ErrorIs(t, engine.EditRedeemability(basketID, "alice", aliceID, 100, tenth(10), nil, 0), errPremiumOutOfRange)
	require.ErrorIs(t, engine.EditRedeemability(basketID, "alice", aliceID, 10, decimal.FromInt64(2), nil, 0), errInvalidAmount)
	require.ErrorIs(t, engine.EditRedeemability(basketID, "alice", aliceID, 10, tenth(10), []assets.AssetRef{nativeRef("not-registered")}, 0), errInvalidCollateral)
}
