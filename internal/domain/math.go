package domain

import (
	"math"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the fixed-point scale used for NAV, prices and 6-decimal asset amounts.
	Scale uint64 = 1_000_000
	// BpsDenominator is the number of basis points in one whole.
	BpsDenominator uint64 = 10_000

	amountDecimals = 6
)

// MulDiv computes a*b/d with a 128-bit intermediate product, truncating toward zero.
// It fails with ErrArithmeticOverflow when d is zero or the quotient does not fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrArithmeticOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// SaturatingSub returns a-b floored at zero.
// Only for totals that may drift below zero through rounding.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// BpsOf returns amount*bps/10000, truncated.
func BpsOf(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}

// SharesFor returns the shares issued for amount at the given NAV per share.
func SharesFor(amount, navPerShare uint64) (uint64, error) {
	return MulDiv(amount, Scale, navPerShare)
}

// ValueOf returns the reference-asset value of shares at the given NAV per share.
func ValueOf(shares, navPerShare uint64) (uint64, error) {
	return MulDiv(shares, navPerShare, Scale)
}

// ToDecimal converts a 6-decimal minor-unit amount into a decimal for display.
func ToDecimal(minor uint64) decimal.Decimal {
	if minor <= math.MaxInt64 {
		return decimal.New(int64(minor), -amountDecimals)
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(minor), -amountDecimals)
}

// FormatAmount renders a minor-unit amount with six fixed decimal places.
func FormatAmount(minor uint64) string {
	return ToDecimal(minor).StringFixed(amountDecimals)
}

// WeightedAverage returns (avgA*weightA + avgB*weightB) / (weightA + weightB) using 128-bit
// intermediates. A zero total weight yields avgB.
func WeightedAverage(avgA, weightA, avgB, weightB uint64) (uint64, error) {
	total, err := CheckedAdd(weightA, weightB)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return avgB, nil
	}
	hiA, loA := bits.Mul64(avgA, weightA)
	hiB, loB := bits.Mul64(avgB, weightB)
	lo, carry := bits.Add64(loA, loB, 0)
	hi, overflow := bits.Add64(hiA, hiB, carry)
	if overflow != 0 || hi >= total {
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, total)
	return q, nil
}
