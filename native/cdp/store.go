package cdp

import (
	"encoding/json"
	"fmt"

	"cdpcore/assets"
	"cdpcore/config"
	"cdpcore/storage"
)

// State is the storage-agnostic persistence contract the Engine depends on,
// mirroring the shape of native/lending's engineState: the host (or, here,
// a concrete KVStore) supplies Get/Put methods and the Engine never touches
// a codec or a raw key directly.
type State interface {
	GetConfig() (*config.Config, error)
	PutConfig(cfg *config.Config) error

	GetBasket(basketID string) (*Basket, error)
	PutBasket(b *Basket) error

	GetPositions(basketID, owner string) ([]*Position, error)
	PutPositions(basketID, owner string, positions []*Position) error

	GetStoredPrice(ref assets.AssetRef) (*StoredPrice, error)
	PutStoredPrice(ref assets.AssetRef, price *StoredPrice) error

	GetCreditMultiplier(creditAsset assets.AssetRef) (decimalRaw string, found bool, err error)
	PutCreditMultiplier(creditAsset assets.AssetRef, raw string) error

	GetWithdrawPropagation() (*WithdrawPropagation, error)
	PutWithdrawPropagation(p *WithdrawPropagation) error

	GetRepayPropagation() (*RepayPropagation, error)
	PutRepayPropagation(p *RepayPropagation) error

	GetRedemptionEntry(basketID string, premium uint8, owner string) (*RedemptionInfo, error)
	PutRedemptionEntry(basketID string, premium uint8, owner string, info *RedemptionInfo) error
	DeleteRedemptionEntry(basketID string, premium uint8, owner string) error
}

// KVStore implements State over a generic storage.Database, JSON-encoding
// every record and keying it per the persisted state layout.
type KVStore struct {
	db storage.Database
}

// NewKVStore wraps db as a State.
func NewKVStore(db storage.Database) *KVStore {
	return &KVStore{db: db}
}

func configKey() []byte { return []byte("config") }

func basketKey(basketID string) []byte {
	return []byte(fmt.Sprintf("basket/%s", basketID))
}

func positionKey(basketID, owner string) []byte {
	return []byte(fmt.Sprintf("position/%s/%s", basketID, owner))
}

func priceKey(ref assets.AssetRef) []byte {
	return []byte(fmt.Sprintf("price/%s", ref.String()))
}

func creditMultiKey(creditAsset assets.AssetRef) []byte {
	return []byte(fmt.Sprintf("credit_multi/%s", creditAsset.String()))
}

func withdrawPropKey() []byte { return []byte("withdraw_prop") }
func repayPropKey() []byte    { return []byte("repay_prop") }

func redemptionKey(basketID string, premium uint8, owner string) []byte {
	return []byte(fmt.Sprintf("redemption/%s/%d/%s", basketID, premium, owner))
}

func (s *KVStore) getJSON(key []byte, out interface{}) (bool, error) {
	ok, err := s.db.Has(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *KVStore) putJSON(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *KVStore) GetConfig() (*config.Config, error) {
	cfg := &config.Config{}
	found, err := s.getJSON(configKey(), cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg.EnsureDefaults()
	}
	return cfg, nil
}

func (s *KVStore) PutConfig(cfg *config.Config) error {
	return s.putJSON(configKey(), cfg)
}

func (s *KVStore) GetBasket(basketID string) (*Basket, error) {
	b := &Basket{}
	found, err := s.getJSON(basketKey(basketID), b)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errNonExistentBasket
	}
	return b, nil
}

func (s *KVStore) PutBasket(b *Basket) error {
	if b == nil {
		return errNilBasket
	}
	return s.putJSON(basketKey(b.BasketID), b)
}

func (s *KVStore) GetPositions(basketID, owner string) ([]*Position, error) {
	var positions []*Position
	found, err := s.getJSON(positionKey(basketID, owner), &positions)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return positions, nil
}

func (s *KVStore) PutPositions(basketID, owner string, positions []*Position) error {
	return s.putJSON(positionKey(basketID, owner), positions)
}

func (s *KVStore) GetStoredPrice(ref assets.AssetRef) (*StoredPrice, error) {
	sp := &StoredPrice{}
	found, err := s.getJSON(priceKey(ref), sp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return sp, nil
}

func (s *KVStore) PutStoredPrice(ref assets.AssetRef, price *StoredPrice) error {
	return s.putJSON(priceKey(ref), price)
}

func (s *KVStore) GetCreditMultiplier(creditAsset assets.AssetRef) (string, bool, error) {
	ok, err := s.db.Has(creditMultiKey(creditAsset))
	if err != nil || !ok {
		return "", false, err
	}
	raw, err := s.db.Get(creditMultiKey(creditAsset))
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

func (s *KVStore) PutCreditMultiplier(creditAsset assets.AssetRef, raw string) error {
	return s.db.Put(creditMultiKey(creditAsset), []byte(raw))
}

func (s *KVStore) GetWithdrawPropagation() (*WithdrawPropagation, error) {
	p := &WithdrawPropagation{}
	found, err := s.getJSON(withdrawPropKey(), p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return p, nil
}

func (s *KVStore) PutWithdrawPropagation(p *WithdrawPropagation) error {
	return s.putJSON(withdrawPropKey(), p)
}

func (s *KVStore) GetRepayPropagation() (*RepayPropagation, error) {
	p := &RepayPropagation{}
	found, err := s.getJSON(repayPropKey(), p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return p, nil
}

func (s *KVStore) PutRepayPropagation(p *RepayPropagation) error {
	return s.putJSON(repayPropKey(), p)
}

func (s *KVStore) GetRedemptionEntry(basketID string, premium uint8, owner string) (*RedemptionInfo, error) {
	info := &RedemptionInfo{}
	found, err := s.getJSON(redemptionKey(basketID, premium, owner), info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return info, nil
}

func (s *KVStore) PutRedemptionEntry(basketID string, premium uint8, owner string, info *RedemptionInfo) error {
	return s.putJSON(redemptionKey(basketID, premium, owner), info)
}

func (s *KVStore) DeleteRedemptionEntry(basketID string, premium uint8, owner string) error {
	return s.db.Delete(redemptionKey(basketID, premium, owner))
}
