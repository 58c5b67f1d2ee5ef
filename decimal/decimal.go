// Package decimal implements the 18-fractional-digit fixed-point arithmetic
// used throughout the CDP engine for prices, ratios, and rates. It
// generalizes the ray-scaled big.Int pattern native/lending uses internally
// (base-1e18 fixed point, widened big.Int products) into a reusable type.
package decimal

import "math/big"

// Fractional precision used by every Decimal value.
const Fractional = 18

var (
	// scale is 10^18, the unit value of Decimal.
	scale = mustPow10(Fractional)
	half  = new(big.Int).Rsh(scale, 1)
)

func mustPow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Decimal is a signed fixed-point number with Fractional digits of
// precision, stored as raw = value * 10^Fractional. Intermediate products
// are computed with math/big's arbitrary-precision multiply, which is
// already a 256-bit-or-wider widened accumulator for any value this engine
// will ever hold.
type Decimal struct {
	raw *big.Int
}

// Zero returns the zero Decimal.
func Zero() Decimal { return Decimal{raw: big.NewInt(0)} }

// One returns the Decimal value 1.
func One() Decimal { return Decimal{raw: new(big.Int).Set(scale)} }

// FromInt64 builds a Decimal representing the given whole number.
func FromInt64(v int64) Decimal {
	return Decimal{raw: new(big.Int).Mul(big.NewInt(v), scale)}
}

// FromRaw wraps an already-scaled raw value (value * 10^18) as a Decimal.
func FromRaw(raw *big.Int) Decimal {
	if raw == nil {
		return Zero()
	}
	return Decimal{raw: new(big.Int).Set(raw)}
}

// FromFraction builds a Decimal equal to num/den, truncating the magnitude
// of any residue beyond 18 fractional digits (round toward the system: the
// caller is never over-credited by rounding).
func FromFraction(num, den *big.Int) Decimal {
	if den == nil || den.Sign() == 0 {
		return Zero()
	}
	scaled := new(big.Int).Mul(num, scale)
	return Decimal{raw: divRoundSystem(scaled, den, num.Sign()*den.Sign() < 0)}
}

// Raw returns the underlying raw*10^18 integer.
func (d Decimal) Raw() *big.Int {
	if d.raw == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(d.raw)
}

func (d Decimal) ensure() *big.Int {
	if d.raw == nil {
		return big.NewInt(0)
	}
	return d.raw
}

func (d Decimal) Sign() int { return d.ensure().Sign() }

func (d Decimal) IsZero() bool { return d.Sign() == 0 }

func (d Decimal) Add(o Decimal) Decimal {
	return Decimal{raw: new(big.Int).Add(d.ensure(), o.ensure())}
}

func (d Decimal) Sub(o Decimal) Decimal {
	return Decimal{raw: new(big.Int).Sub(d.ensure(), o.ensure())}
}

// Mul multiplies two Decimals, widening through big.Int before rescaling.
func (d Decimal) Mul(o Decimal) Decimal {
	product := new(big.Int).Mul(d.ensure(), o.ensure())
	negative := product.Sign() < 0
	if negative {
		product.Neg(product)
	}
	product.Add(product, half)
	product.Quo(product, scale)
	if negative {
		product.Neg(product)
	}
	return Decimal{raw: product}
}

// Div divides d by o, rounding toward the system on residue.
func (d Decimal) Div(o Decimal) Decimal {
	if o.Sign() == 0 {
		return Zero()
	}
	numerator := new(big.Int).Mul(d.ensure(), scale)
	return Decimal{raw: divRoundSystem(numerator, o.ensure(), (d.Sign()*o.Sign()) < 0)}
}

func divRoundSystem(num, den *big.Int, negative bool) *big.Int {
	n := new(big.Int).Abs(num)
	dd := new(big.Int).Abs(den)
	// Round toward the system: truncate magnitude down regardless of sign,
	// which under-credits the caller on every division rather than risking
	// an over-credit that could drift a supply/debt-cap invariant.
	result := new(big.Int).Quo(n, dd)
	if negative {
		result.Neg(result)
	}
	return result
}

func (d Decimal) Cmp(o Decimal) int {
	return d.ensure().Cmp(o.ensure())
}

func (d Decimal) GreaterThan(o Decimal) bool { return d.Cmp(o) > 0 }
func (d Decimal) LessThan(o Decimal) bool    { return d.Cmp(o) < 0 }
func (d Decimal) Equal(o Decimal) bool       { return d.Cmp(o) == 0 }

func (d Decimal) Neg() Decimal {
	return Decimal{raw: new(big.Int).Neg(d.ensure())}
}

func (d Decimal) Abs() Decimal {
	return Decimal{raw: new(big.Int).Abs(d.ensure())}
}

// Min returns the smaller of d and o.
func (d Decimal) Min(o Decimal) Decimal {
	if d.LessThan(o) {
		return d
	}
	return o
}

// Max returns the larger of d and o.
func (d Decimal) Max(o Decimal) Decimal {
	if d.GreaterThan(o) {
		return d
	}
	return o
}

// Clamp bounds d to [lo, hi].
func (d Decimal) Clamp(lo, hi Decimal) Decimal {
	return d.Max(lo).Min(hi)
}

// MulInt multiplies a Decimal by an integer amount (e.g. a 128-bit balance)
// and returns the widened integer result, dividing back out the Decimal
// scale.
func (d Decimal) MulInt(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(d.ensure(), amount)
	negative := product.Sign() < 0
	if negative {
		product.Neg(product)
	}
	product.Quo(product, scale)
	if negative {
		product.Neg(product)
	}
	return product
}

// String renders the Decimal with full precision, trimming no trailing
// zeros, matching the scenario fixtures in spec.md §8 (e.g.
// "1.022857600009143039").
func (d Decimal) String() string {
	raw := d.ensure()
	negative := raw.Sign() < 0
	abs := new(big.Int).Abs(raw)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(abs, scale, frac)
	fracStr := frac.String()
	for len(fracStr) < Fractional {
		fracStr = "0" + fracStr
	}
	out := whole.String() + "." + fracStr
	if negative {
		out = "-" + out
	}
	return out
}
