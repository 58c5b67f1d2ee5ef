package cdp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testManifestYAML = `
baskets:
  - basket_id: seed-basket
    owner: operator
    credit_denom: credit
    collateral:
      - denom: debit
        max_borrow_ltv_bps: 5000
        max_ltv_bps: 8000
        supply_cap_ratio_bps: 10000
`

func writeTestManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "baskets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifestYAML), 0o644))
	return path
}

func TestLoadBasketManifest(t *testing.T) {
	path := writeTestManifest(t)
	manifest, err := LoadBasketManifest(path)
	require.NoError(t, err)
	require.Len(t, manifest.Baskets, 1)
	require.Equal(t, "seed-basket", manifest.Baskets[0].BasketID)
	require.Len(t, manifest.Baskets[0].Collateral, 1)
	require.Equal(t, uint64(5000), manifest.Baskets[0].Collateral[0].MaxBorrowLTVBps)
}

func TestLoadBasketManifestRejectsIncompleteEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("baskets:\n  - basket_id: missing-owner\n"), 0o644))
	_, err := LoadBasketManifest(path)
	require.Error(t, err)
}

func TestBasketManifestApply(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	manifest, err := LoadBasketManifest(writeTestManifest(t))
	require.NoError(t, err)
	require.NoError(t, manifest.Apply(engine, 0))

	basket, err := engine.GetBasket("seed-basket")
	require.NoError(t, err)
	require.Equal(t, "credit", basket.CreditAsset.Denom())
	require.Len(t, basket.CollateralTypes, 1)
	require.Equal(t, "debit", basket.CollateralTypes[0].Asset.Denom())

	// applying twice is idempotent: the basket is not recreated and the
	// collateral template edit reapplies cleanly.
	require.NoError(t, manifest.Apply(engine, 1))
	basket, err = engine.GetBasket("seed-basket")
	require.NoError(t, err)
	require.Len(t, basket.CollateralTypes, 1)
}
