// Package assets defines AssetRef, the tagged variant spec.md §3 uses to
// identify either a native denomination or an address-identified token, and
// PoolInfo, the LP-share decomposition metadata attached to a cAsset.
package assets

import "cdpcore/crypto"

// Kind distinguishes the two AssetRef variants.
type Kind uint8

const (
	// KindNative identifies a plain denomination string (e.g. "uusdc").
	KindNative Kind = iota
	// KindContract identifies an address-identified token (e.g. an LP
	// share token or a wrapped asset minted by a contract).
	KindContract
)

// AssetRef is a tagged union over a native denomination string or a
// contract address. Equality is structural: same kind, same payload.
type AssetRef struct {
	kind   Kind
	denom  string
	addr   crypto.Address
}

// Native constructs a native-denomination AssetRef.
func Native(denom string) AssetRef {
	return AssetRef{kind: KindNative, denom: denom}
}

// Contract constructs an address-identified AssetRef.
func Contract(addr crypto.Address) AssetRef {
	return AssetRef{kind: KindContract, addr: addr}
}

func (a AssetRef) Kind() Kind { return a.kind }

// Denom returns the native denomination string, or "" for a contract ref.
func (a AssetRef) Denom() string { return a.denom }

// Address returns the contract address, or the zero Address for a native
// ref.
func (a AssetRef) Address() crypto.Address { return a.addr }

// Equal reports structural equality between two AssetRefs.
func (a AssetRef) Equal(o AssetRef) bool {
	if a.kind != o.kind {
		return false
	}
	switch a.kind {
	case KindNative:
		return a.denom == o.denom
	case KindContract:
		return a.addr.Equal(o.addr)
	default:
		return false
	}
}

// IsZero reports whether the AssetRef was never assigned a payload.
func (a AssetRef) IsZero() bool {
	return a.kind == KindNative && a.denom == ""
}

// String renders a stable, human-readable form used both for logging and as
// the key material for the persisted price-cache and supply-cap indices.
func (a AssetRef) String() string {
	switch a.kind {
	case KindContract:
		return "contract:" + a.addr.String()
	default:
		return "native:" + a.denom
	}
}
