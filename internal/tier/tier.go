// Package tier maps identity tier codes to deposit ceilings and permitted pool types.
package tier

import (
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/exodusfi/exodus/internal/domain"
)

// Tier codes. Codes above Institutional are treated as Unverified.
const (
	Unverified    uint8 = 0
	Basic         uint8 = 1
	Enhanced      uint8 = 2
	Accredited    uint8 = 3
	Institutional uint8 = 4
)

const unit = domain.Scale

var fiatLimits = [...]uint64{
	Unverified:    0,
	Basic:         500_000 * unit,
	Enhanced:      5_000_000 * unit,
	Accredited:    50_000_000 * unit,
	Institutional: math.MaxUint64,
}

var stableLimits = [...]uint64{
	Unverified:    0,
	Basic:         3_500 * unit,
	Enhanced:      35_000 * unit,
	Accredited:    350_000 * unit,
	Institutional: math.MaxUint64,
}

// poolTypes lists pool types in the order tiers unlock them.
var poolTypes = []domain.PoolType{
	domain.PoolFixedIncome,
	domain.PoolLending,
	domain.PoolStaking,
	domain.PoolSynthetic,
}

var names = [...]string{"Unverified", "Bronze", "Silver", "Gold", "Diamond"}

func valid(t uint8) bool {
	return t <= Institutional
}

// MonthlyFiatLimit returns the rolling-window fiat deposit ceiling in minor units.
func MonthlyFiatLimit(t uint8) uint64 {
	if !valid(t) {
		return 0
	}
	return fiatLimits[t]
}

// MonthlyStableLimit returns the rolling-window stable-asset deposit ceiling in minor units.
func MonthlyStableLimit(t uint8) uint64 {
	if !valid(t) {
		return 0
	}
	return stableLimits[t]
}

// AllowedPoolTypes returns the pool types a tier may deposit into.
func AllowedPoolTypes(t uint8) []domain.PoolType {
	if !valid(t) {
		return nil
	}
	return slices.Clone(lo.Subset(poolTypes, 0, uint(t)))
}

// Allows reports whether tier t may deposit into a pool of type pt.
func Allows(t uint8, pt domain.PoolType) bool {
	return lo.Contains(AllowedPoolTypes(t), pt)
}

// Name returns the display name of a tier.
func Name(t uint8) string {
	if !valid(t) {
		return "Unknown"
	}
	return names[t]
}
