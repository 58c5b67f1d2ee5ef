package cdp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cdpcore/assets"
)

// BasketManifest declaratively bootstraps one or more baskets and their
// collateral templates from a YAML file, the way an operator would seed a
// fresh deployment rather than issuing CreateBasket/EditcAsset calls by hand.
type BasketManifest struct {
	Baskets []BasketManifestEntry `yaml:"baskets"`
}

// BasketManifestEntry describes a single basket and its initial collateral
// templates.
type BasketManifestEntry struct {
	BasketID    string                     `yaml:"basket_id"`
	Owner       string                     `yaml:"owner"`
	CreditDenom string                     `yaml:"credit_denom"`
	Collateral  []CollateralManifestEntry  `yaml:"collateral"`
}

// CollateralManifestEntry mirrors CAssetEdit's fields in bps form, since a
// manifest is hand-edited operator config rather than program state.
type CollateralManifestEntry struct {
	Denom             string `yaml:"denom"`
	MaxBorrowLTVBps   uint64 `yaml:"max_borrow_ltv_bps"`
	MaxLTVBps         uint64 `yaml:"max_ltv_bps"`
	SupplyCapRatioBps uint64 `yaml:"supply_cap_ratio_bps"`
	LP                bool   `yaml:"lp"`
}

// LoadBasketManifest reads and decodes a basket bootstrap manifest.
func LoadBasketManifest(path string) (*BasketManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open basket manifest: %w", err)
	}
	defer f.Close()

	var manifest BasketManifest
	if err := yaml.NewDecoder(f).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decode basket manifest: %w", err)
	}
	for _, b := range manifest.Baskets {
		if b.BasketID == "" || b.Owner == "" || b.CreditDenom == "" {
			return nil, fmt.Errorf("basket manifest entry missing basket_id, owner, or credit_denom")
		}
	}
	return &manifest, nil
}

// Apply creates every basket named in the manifest that does not already
// exist, and upserts its collateral templates via EditcAsset. Applying the
// same manifest twice is a no-op on the second pass: an existing basket is
// left untouched and EditcAsset is naturally idempotent for unchanged
// fields.
func (m *BasketManifest) Apply(e *Engine, nowTs int64) error {
	for _, entry := range m.Baskets {
		if _, err := e.GetBasket(entry.BasketID); err != nil {
			if _, err := e.CreateBasket(entry.BasketID, entry.Owner, assets.Native(entry.CreditDenom), nowTs); err != nil {
				return fmt.Errorf("bootstrap basket %q: %w", entry.BasketID, err)
			}
		}
		for _, c := range entry.Collateral {
			edit := CAssetEdit{
				Asset:          assets.Native(c.Denom),
				MaxBorrowLTV:   bpsToDecimal(c.MaxBorrowLTVBps),
				MaxLTV:         bpsToDecimal(c.MaxLTVBps),
				SupplyCapRatio: bpsToDecimal(c.SupplyCapRatioBps),
				LP:             c.LP,
			}
			if _, err := e.EditcAsset(entry.BasketID, entry.Owner, edit); err != nil {
				return fmt.Errorf("bootstrap collateral %s/%s: %w", entry.BasketID, c.Denom, err)
			}
		}
	}
	return nil
}
