package decimal

import (
	"math/big"
	"testing"
)

func TestMulDiv(t *testing.T) {
	a := FromInt64(3)
	b := FromInt64(2)
	if got := a.Mul(b); got.String() != "6.000000000000000000" {
		t.Fatalf("unexpected mul: %s", got)
	}
	if got := a.Div(b); got.String() != "1.500000000000000000" {
		t.Fatalf("unexpected div: %s", got)
	}
}

func TestFromFractionRoundsTowardSystem(t *testing.T) {
	// 1/3 rounds down (truncated) rather than up, favoring the protocol.
	d := FromFraction(big.NewInt(1), big.NewInt(3))
	if got := d.String(); got != "0.333333333333333333" {
		t.Fatalf("unexpected fraction: %s", got)
	}
}

func TestClampAndMinMax(t *testing.T) {
	lo := FromInt64(0)
	hi := FromInt64(1)
	v := FromInt64(2)
	if got := v.Clamp(lo, hi); !got.Equal(hi) {
		t.Fatalf("expected clamp to hi, got %s", got)
	}
	if got := lo.Max(hi); !got.Equal(hi) {
		t.Fatalf("expected max to be hi")
	}
	if got := lo.Min(hi); !got.Equal(lo) {
		t.Fatalf("expected min to be lo")
	}
}
