package cdp

import (
	"math/big"

	"github.com/holiman/uint256"
)

// maxBalance is 2^128 - 1, the largest value of the engine's 128-bit
// unsigned balance width. Balances are held as *big.Int; checkAmountBounds
// rejects a caller-supplied amount above this ceiling rather than
// truncating it.
var maxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// checkAmountBounds rejects amounts that do not fit in the engine's 128-bit
// balance width. It first rejects anything that does not even fit in a
// uint256 (the widened accumulator width used for intermediate decimal
// multiplication), then rejects anything wider than the 128-bit balance
// truncation itself.
func checkAmountBounds(amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return errInvalidAmount
	}
	if amount.Sign() < 0 || amount.Cmp(maxBalance) > 0 {
		return errInvalidAmount
	}
	return nil
}
