// Package amount defines the fixed-point integer types used across the
// engine: token amounts, share counts, and basis-point percentages.
package amount

import "github.com/holiman/uint256"

// Amount is a 256-bit unsigned fixed-point integer. Token balances are
// denominated at TokenDenomination, shares at ShareDenomination.
type Amount = uint256.Int

// New returns an Amount from a uint64, matching uint256's own constructor
// naming.
func New(v uint64) *Amount {
	return uint256.NewInt(v)
}

// Zero reports whether a is nil or equal to zero.
func Zero(a *Amount) bool {
	return a == nil || a.IsZero()
}

// Add returns a+b without mutating either operand.
func Add(a, b *Amount) *Amount {
	var out Amount
	out.Add(a, b)
	return &out
}

// Sub returns a-b without mutating either operand. Panics on underflow,
// matching the unsigned-subtraction-must-not-wrap invariant the engine
// relies on throughout (callers are expected to have checked a >= b).
func Sub(a, b *Amount) *Amount {
	if a.Lt(b) {
		panic("amount: subtraction underflow")
	}
	var out Amount
	out.Sub(a, b)
	return &out
}

// Mul returns a*b without mutating either operand.
func Mul(a, b *Amount) *Amount {
	var out Amount
	out.Mul(a, b)
	return &out
}

// DivFloor returns a/b, truncating toward zero.
func DivFloor(a, b *Amount) *Amount {
	var out Amount
	out.Div(a, b)
	return &out
}

// DivCeil returns ceil(a/b) for b != 0, following the original protocol's
// fee-rounding convention: (amount*bps + 10000 - 1) / 10000.
func DivCeil(a, b *Amount) *Amount {
	if a.IsZero() {
		return New(0)
	}
	num := Add(a, Sub(b, New(1)))
	return DivFloor(num, b)
}

// Min returns the smaller of a and b.
func Min(a, b *Amount) *Amount {
	if a.Lt(b) {
		return a
	}
	return b
}

// ParseDecimal parses a base-10 string into an Amount, used by pkg/api to
// decode request bodies carrying token/share quantities. An empty string
// parses as zero.
func ParseDecimal(s string) (*Amount, bool) {
	if s == "" {
		return New(0), true
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

const (
	// TokenDenomination is the fixed-point scale of every spend/balance
	// field: 1 token = 1e18 base units.
	TokenDenomination = 1_000_000_000_000_000_000
	// ShareDenomination is the fixed-point scale of every share-count
	// field: 1 share = 1e16 base units.
	ShareDenomination = 10_000_000_000_000_000
	// PercentagePrecision is the basis-point scale for fee percentages
	// (creator_fee_bps, resolution_fee_bps, affiliate_fee_bps).
	PercentagePrecision = 10_000
	// EarningsPrecision is the extra headroom used by the dispute-reward
	// pro-rata division, so small stakes don't truncate to zero.
	EarningsPrecision = 1_000_000_000
)

// BpsOfCeil returns ceil(amount * bps / PercentagePrecision), the fee
// formula used everywhere a protocol fee is deducted from a payout.
func BpsOfCeil(quantity *Amount, bps uint64) *Amount {
	return DivCeil(Mul(quantity, New(bps)), New(PercentagePrecision))
}

// Tokens returns n whole tokens at TokenDenomination scale. The product
// exceeds uint64 range past 18 tokens, so it is computed in 256-bit
// space rather than as a constant expression.
func Tokens(n uint64) *Amount {
	return Mul(New(n), New(TokenDenomination))
}
