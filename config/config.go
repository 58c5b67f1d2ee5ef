// Package config loads the runtime configuration for the CDP engine: the
// knobs the core consults but does not itself derive, such as oracle
// staleness tolerance, debt-cap multiplier defaults, fee splits, and the
// per-owner position ceiling. Basket-specific state (credit_price, supply
// caps, ...) lives in the persisted Basket record, not here.
package config

import (
	"math/big"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the TOML-tagged runtime configuration.
type Config struct {
	DataDir string `toml:"DataDir"`

	// OracleTimeLimitSeconds bounds how stale a StoredPrice fallback may be
	// before pricing fails with OraclePriceInvalid.
	OracleTimeLimitSeconds uint64 `toml:"OracleTimeLimitSeconds"`
	// MaxPositionsPerOwner bounds how many positions a single owner may open
	// in a basket.
	MaxPositionsPerOwner uint32 `toml:"MaxPositionsPerOwner"`
	// MaxCollateralAssetsPerPosition bounds the collateral_assets list size
	// per position.
	MaxCollateralAssetsPerPosition uint32 `toml:"MaxCollateralAssetsPerPosition"`
	// BaseDebtCapMultiplier floors a basket's derived debt cap at
	// BaseDebtCapMultiplier * DebtMinimum.
	BaseDebtCapMultiplier uint64 `toml:"BaseDebtCapMultiplier"`
	// DebtMinimumWei is the minimum nonzero credit_amount a position may
	// carry, expressed in credit-asset base units.
	DebtMinimumWei *big.Int `toml:"DebtMinimumWei"`
	// RateSlopeMultiplierBps scales Slope-2 borrow rates.
	RateSlopeMultiplierBps uint64 `toml:"RateSlopeMultiplierBps"`
	// LiquidationFeeSplit apportions the available liquidation fee between
	// the caller and the staking fee sink.
	LiquidationFeeSplit FeeSplit `toml:"LiquidationFeeSplit"`
	// StabilityPoolPremiumCeilingBps bounds the stability pool's acceptable
	// premium relative to the caller/protocol fees.
	StabilityPoolPremiumCeilingBps uint64 `toml:"StabilityPoolPremiumCeilingBps"`
	// CreditPriceFloorRaw is the configurable floor negative repayment-price
	// drift may never cross.
	CreditPriceFloorRaw *big.Int `toml:"CreditPriceFloorRaw"`
}

// FeeSplit apportions a liquidation fee between the caller and the staking
// fee sink.
type FeeSplit struct {
	CallerBps uint64 `toml:"CallerBps"`
	StakerBps uint64 `toml:"StakerBps"`
}

// EnsureDefaults populates nil/zero fields with safe fallbacks so a
// partially-specified TOML file still produces a usable Config.
func (c *Config) EnsureDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./cdp-data"
	}
	if c.OracleTimeLimitSeconds == 0 {
		c.OracleTimeLimitSeconds = 600
	}
	if c.MaxPositionsPerOwner == 0 {
		c.MaxPositionsPerOwner = 32
	}
	if c.MaxCollateralAssetsPerPosition == 0 {
		c.MaxCollateralAssetsPerPosition = 16
	}
	if c.BaseDebtCapMultiplier == 0 {
		c.BaseDebtCapMultiplier = 3
	}
	if c.DebtMinimumWei == nil {
		c.DebtMinimumWei = big.NewInt(1_000_000)
	}
	if c.RateSlopeMultiplierBps == 0 {
		c.RateSlopeMultiplierBps = 10_000 // 1.0x
	}
	if c.LiquidationFeeSplit.CallerBps == 0 && c.LiquidationFeeSplit.StakerBps == 0 {
		c.LiquidationFeeSplit = FeeSplit{CallerBps: 9500, StakerBps: 500}
	}
	if c.StabilityPoolPremiumCeilingBps == 0 {
		c.StabilityPoolPremiumCeilingBps = 3300
	}
	if c.CreditPriceFloorRaw == nil {
		c.CreditPriceFloorRaw = big.NewInt(1)
	}
}

// Load reads the configuration from path, falling back to defaults for any
// field the file omits, and persisting a default file if none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.EnsureDefaults()

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
