package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Amount is an unsigned 256-bit token quantity in base units.
type Amount = uint256.Int

// DefaultDecimals is the number of decimals every token ledger uses.
const DefaultDecimals uint8 = 18

// Zero returns a fresh zero amount.
func Zero() *Amount { return new(uint256.Int) }

// NewAmount returns n base units.
func NewAmount(n uint64) *Amount { return uint256.NewInt(n) }

// Units converts a whole-token quantity to base units (n × 10^decimals).
// Returns an error if the result does not fit in 256 bits.
func Units(n uint64, decimals uint8) (*Amount, error) {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	out, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(n), scale)
	if overflow {
		return nil, fmt.Errorf("%w: %d tokens with %d decimals overflows", ErrInvalidAmount, n, decimals)
	}
	return out, nil
}

// MustUnits is Units for constants known to fit.
func MustUnits(n uint64, decimals uint8) *Amount {
	out, err := Units(n, decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// ParseAmount parses a base-unit decimal (or 0x hex) string.
func ParseAmount(s string) (*Amount, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	out, err := uint256.FromDecimal(s)
	if err == nil {
		return out, nil
	}
	if out, hexErr := uint256.FromHex(s); hexErr == nil {
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
}

// ParseDisplay parses a human-readable token quantity ("12.5") into base
// units using the token's decimals. Fractions finer than one base unit are
// rejected.
func ParseDisplay(s string, decimals uint8) (*Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	return out, nil
}

// FormatDisplay renders base units as a decimal token quantity.
func FormatDisplay(a *Amount, decimals uint8) string {
	if a == nil {
		return "0"
	}
	return decimal.NewFromBigInt(a.ToBig(), -int32(decimals)).String()
}

// Price returns give/get as a decimal rounded to places digits. Both amounts
// are in base units of tokens with the same decimals.
func Price(give, get *Amount, places int32) decimal.Decimal {
	if get == nil || get.IsZero() {
		return decimal.Zero
	}
	num := decimal.NewFromBigInt(give.ToBig(), 0)
	den := decimal.NewFromBigInt(get.ToBig(), 0)
	return num.DivRound(den, places)
}

// Clone returns a copy of a, treating nil as zero.
func Clone(a *Amount) *Amount {
	if a == nil {
		return Zero()
	}
	return new(uint256.Int).Set(a)
}

// Big converts a to *big.Int.
func Big(a *Amount) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return a.ToBig()
}
