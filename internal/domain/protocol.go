package domain

import (
	"slices"
	"time"
)

// Fee caps in basis points.
const (
	MaxConversionFeeBps  uint16 = 1000
	MaxManagementFeeBps  uint16 = 500
	MaxPerformanceFeeBps uint16 = 5000
)

// Asset names moved by the transfer service.
const (
	AssetFiat   = "FIAT"
	AssetStable = "STABLE"
)

// Fees holds the protocol fee parameters in basis points.
type Fees struct {
	ConversionBps  uint16 `json:"conversionBps"`
	ManagementBps  uint16 `json:"managementBps"`
	PerformanceBps uint16 `json:"performanceBps"`
}

// Validate checks every fee against its cap.
func (f Fees) Validate() error {
	if f.ConversionBps > MaxConversionFeeBps ||
		f.ManagementBps > MaxManagementFeeBps ||
		f.PerformanceBps > MaxPerformanceFeeBps {
		return ErrInvalidFee
	}
	return nil
}

// ProtocolLedger is the global protocol state. There is exactly one per deployment and it is
// passed explicitly through every operation.
type ProtocolLedger struct {
	Authority   string   `json:"authority"`
	FiatVault   string   `json:"fiatVault"`
	StableVault string   `json:"stableVault"`
	Oracle      string   `json:"oracle"`
	Keepers     []string `json:"keepers"`
	Fees        Fees     `json:"fees"`
	// TotalDeposits is the aggregate reference-asset value deposited into pools.
	TotalDeposits uint64    `json:"totalDeposits"`
	TotalYield    uint64    `json:"totalYield"`
	PendingFiat   uint64    `json:"pendingFiat"`
	DepositNonce  uint64    `json:"depositNonce"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsKeeper reports whether id may trigger keeper operations. The authority always may.
func (p ProtocolLedger) IsKeeper(id string) bool {
	if id == "" {
		return false
	}
	return id == p.Authority || slices.Contains(p.Keepers, id)
}

// Clone returns a copy that shares no slices with p.
func (p ProtocolLedger) Clone() ProtocolLedger {
	p.Keepers = slices.Clone(p.Keepers)
	return p
}
