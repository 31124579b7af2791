package events

import "github.com/exodusfi/exodus/internal/domain"

type ProtocolInitialized struct {
	Authority string      `json:"authority"`
	Oracle    string      `json:"oracle"`
	Fees      domain.Fees `json:"fees"`
}

type PoolRegistered struct {
	PoolID string          `json:"poolId"`
	Type   domain.PoolType `json:"type"`
	Weight uint16          `json:"weightBps"`
}

type PoolUpdated struct {
	PoolID        string `json:"poolId"`
	Active        bool   `json:"active"`
	WeightBps     uint16 `json:"weightBps"`
	MinDeposit    uint64 `json:"minDeposit"`
	MaxAllocation uint64 `json:"maxAllocation"`
}

type FeesUpdated struct {
	Old domain.Fees `json:"old"`
	New domain.Fees `json:"new"`
}

type ProtocolPaused struct {
	By string `json:"by"`
}

type ProtocolResumed struct {
	By string `json:"by"`
}

type DepositInitiated struct {
	User       string `json:"user"`
	Nonce      uint64 `json:"nonce"`
	FiatAmount uint64 `json:"fiatAmount"`
	MinOutput  uint64 `json:"minOutput"`
	Tier       uint8  `json:"tier"`
}

type StableDeposited struct {
	User   string `json:"user"`
	PoolID string `json:"poolId"`
	Amount uint64 `json:"amount"`
	Shares uint64 `json:"shares"`
	NAV    uint64 `json:"nav"`
}

type ConversionExecuted struct {
	User       string `json:"user"`
	Nonce      uint64 `json:"nonce"`
	PoolID     string `json:"poolId"`
	FiatAmount uint64 `json:"fiatAmount"`
	Output     uint64 `json:"output"`
	Fee        uint64 `json:"fee"`
	Rate       uint64 `json:"rate"`
	Shares     uint64 `json:"shares"`
	Keeper     string `json:"keeper"`
}

type ConversionRecordCreated struct {
	Record domain.ConversionRecord `json:"record"`
}

type ConversionCancelled struct {
	User       string `json:"user"`
	Nonce      uint64 `json:"nonce"`
	FiatAmount uint64 `json:"fiatAmount"`
}

type ConversionExpired struct {
	User       string `json:"user"`
	Nonce      uint64 `json:"nonce"`
	FiatAmount uint64 `json:"fiatAmount"`
	Keeper     string `json:"keeper"`
}

type NavUpdated struct {
	PoolID string `json:"poolId"`
	OldNAV uint64 `json:"oldNav"`
	NewNAV uint64 `json:"newNav"`
	APYBps uint16 `json:"apyBps"`
}

type WithdrawalExecuted struct {
	User   string `json:"user"`
	PoolID string `json:"poolId"`
	Shares uint64 `json:"shares"`
	Amount uint64 `json:"amount"`
	NAV    uint64 `json:"nav"`
}

type YieldClaimed struct {
	User      string `json:"user"`
	PoolID    string `json:"poolId"`
	Claimable uint64 `json:"claimable"`
	Fee       uint64 `json:"fee"`
	Paid      uint64 `json:"paid"`
}
