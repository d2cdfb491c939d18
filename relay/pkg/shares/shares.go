// Package shares implements the proportional share arithmetic of pools. All
// products are computed in 128 bits and every result is floored.
package shares

import (
	"math"
	"math/bits"
)

// MulDiv returns floor(a*b/c). It saturates at MaxUint64 when the quotient does
// not fit, and returns 0 when c is 0.
func MulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// ForDeposit is the number of shares minted for a deposit of amount into a pool
// with the given share supply and pre-deposit external balance. An empty pool
// mints 1:1.
func ForDeposit(amount, supply, balance uint64) uint64 {
	if supply == 0 || balance == 0 {
		return amount
	}
	return MulDiv(supply, amount, balance)
}

// ClaimFor is the external balance redeemed by burning s of supply shares.
func ClaimFor(s, supply, balance uint64) uint64 {
	return MulDiv(balance, s, supply)
}

// PrincipalFor is the part of principal attributed to s of held shares.
func PrincipalFor(principal, s, held uint64) uint64 {
	if s >= held {
		return principal
	}
	return MulDiv(principal, s, held)
}

func SaturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func SaturatingSub(a, b uint64) uint64 {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0
	}
	return diff
}
