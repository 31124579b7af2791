package domain

import (
	"fmt"
	"time"
)

// PoolType is the closed set of yield pool categories.
type PoolType string

const (
	PoolFixedIncome PoolType = "fixed_income"
	PoolLending     PoolType = "lending"
	PoolStaking     PoolType = "staking"
	PoolSynthetic   PoolType = "synthetic"
)

// ParsePoolType validates a pool type tag.
func ParsePoolType(s string) (PoolType, error) {
	switch t := PoolType(s); t {
	case PoolFixedIncome, PoolLending, PoolStaking, PoolSynthetic:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPoolType, s)
	}
}

// GenesisNAV is the NAV per share of a newly registered pool (1.000000).
const GenesisNAV = Scale

// YieldPool is a registered yield-bearing pool. Totals only change through deposit and
// withdrawal share math; NAV is written by the external NAV update.
type YieldPool struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            PoolType  `json:"type"`
	UnderlyingAsset string    `json:"underlyingAsset"`
	DepositVault    string    `json:"depositVault"`
	YieldTokenVault string    `json:"yieldTokenVault"`
	NAVSource       string    `json:"navSource"`
	NAVPerShare     uint64    `json:"navPerShare"`
	APYBps          uint16    `json:"apyBps"`
	TotalDeposited  uint64    `json:"totalDeposited"`
	TotalShares     uint64    `json:"totalShares"`
	WeightBps       uint16    `json:"weightBps"`
	MinDeposit      uint64    `json:"minDeposit"`
	MaxAllocation   uint64    `json:"maxAllocation"`
	Active          bool      `json:"active"`
	LastNAVUpdate   time.Time `json:"lastNavUpdate"`
}

// Credit adds a deposit and its shares to the pool totals.
func (p *YieldPool) Credit(amount, shares uint64) error {
	deposited, err := CheckedAdd(p.TotalDeposited, amount)
	if err != nil {
		return err
	}
	total, err := CheckedAdd(p.TotalShares, shares)
	if err != nil {
		return err
	}
	p.TotalDeposited, p.TotalShares = deposited, total
	return nil
}

// CheckCapacity fails when adding amount would exceed a non-zero max allocation.
func (p YieldPool) CheckCapacity(amount uint64) error {
	if p.MaxAllocation == 0 {
		return nil
	}
	next, err := CheckedAdd(p.TotalDeposited, amount)
	if err != nil {
		return err
	}
	if next > p.MaxAllocation {
		return ErrPoolCapacityExceeded
	}
	return nil
}
