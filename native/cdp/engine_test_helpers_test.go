package cdp

import (
	"math/big"

	"cdpcore/assets"
	"cdpcore/config"
	"cdpcore/decimal"
	"cdpcore/storage"
)

// stubOracle is a fixed-price Oracle stub for tests: prices are looked up by
// AssetRef.String() and returned verbatim, regardless of twapWindow.
type stubOracle struct {
	prices map[string]decimal.Decimal
	fail   map[string]bool
}

func newStubOracle() *stubOracle {
	return &stubOracle{prices: make(map[string]decimal.Decimal), fail: make(map[string]bool)}
}

func (o *stubOracle) set(ref assets.AssetRef, price decimal.Decimal) {
	o.prices[ref.String()] = price
}

func (o *stubOracle) Price(ref assets.AssetRef, _ int64, _ string) (decimal.Decimal, uint8, error) {
	if o.fail[ref.String()] {
		return decimal.Zero(), 0, errOraclePriceInvalid
	}
	if p, ok := o.prices[ref.String()]; ok {
		return p, 18, nil
	}
	return decimal.Zero(), 0, errOraclePriceInvalid
}

func (o *stubOracle) Assets(refs []assets.AssetRef) ([]OracleDescriptor, error) {
	out := make([]OracleDescriptor, 0, len(refs))
	for _, r := range refs {
		out = append(out, OracleDescriptor{Asset: r, Decimals: 18})
	}
	return out, nil
}

// stubProxy is a TokenProxy stub recording mint/burn calls.
type stubProxy struct {
	pools map[string]PoolState
	mints []mintCall
	burns []burnCall
}

type mintCall struct {
	Denom  string
	Amount *big.Int
	To     string
}

type burnCall struct {
	Denom  string
	Amount *big.Int
	From   string
}

func newStubProxy() *stubProxy {
	return &stubProxy{pools: make(map[string]PoolState)}
}

func (p *stubProxy) Mint(denom string, amount *big.Int, to string) error {
	p.mints = append(p.mints, mintCall{Denom: denom, Amount: amount, To: to})
	return nil
}

func (p *stubProxy) Burn(denom string, amount *big.Int, from string) error {
	p.burns = append(p.burns, burnCall{Denom: denom, Amount: amount, From: from})
	return nil
}

func (p *stubProxy) CreateDenom(string, *big.Int, *decimal.Decimal) error { return nil }
func (p *stubProxy) GetDenom(string, string) (string, error)             { return "", nil }
func (p *stubProxy) GetTokenInfo(string) (TokenInfo, error)               { return TokenInfo{}, nil }

func (p *stubProxy) PoolState(poolID string) (PoolState, error) {
	if state, ok := p.pools[poolID]; ok {
		return state, nil
	}
	return PoolState{}, errOraclePriceInvalid
}

func (p *stubProxy) GetOwner(string) (OwnerInfo, error) { return OwnerInfo{}, nil }

// newTestEngine builds an Engine over an in-memory KVStore with a stub
// oracle and proxy wired in, and returns the store/oracle/proxy handles for
// direct test manipulation.
func newTestEngine() (*Engine, *KVStore, *stubOracle, *stubProxy) {
	store := NewKVStore(storage.NewMemDB())
	cfg := &config.Config{}
	cfg.EnsureDefaults()
	if err := store.PutConfig(cfg); err != nil {
		panic(err)
	}
	engine := NewEngine(store, cfg)
	oracle := newStubOracle()
	proxy := newStubProxy()
	engine.SetOracle(oracle)
	engine.SetTokenProxy(proxy)
	return engine, store, oracle, proxy
}

func nativeRef(denom string) assets.AssetRef { return assets.Native(denom) }

// stubStabilityPool fully repays whatever is requested, at a configurable
// liquidation premium, for liquidation-waterfall tests.
type stubStabilityPool struct {
	premium  decimal.Decimal
	deposits *big.Int
	repaid   *big.Int
}

func newStubStabilityPool() *stubStabilityPool {
	return &stubStabilityPool{premium: decimal.Zero(), deposits: big.NewInt(1_000_000_000), repaid: big.NewInt(0)}
}

func (sp *stubStabilityPool) CheckLiquidatible(amount *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil // fully repayable, no leftover
}

func (sp *stubStabilityPool) Liquidate(liqAmount *big.Int) error {
	sp.repaid = new(big.Int).Add(sp.repaid, liqAmount)
	return nil
}

func (sp *stubStabilityPool) Distribute([]assets.AssetRef, []decimal.Decimal, assets.AssetRef) error {
	return nil
}

func (sp *stubStabilityPool) AssetPool() (StabilityPoolInfo, error) {
	return StabilityPoolInfo{LiqPremium: sp.premium, Deposits: sp.deposits}, nil
}
