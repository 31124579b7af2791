package domain

import (
	"fmt"
	"time"
)

// PendingTTL is how long a fiat deposit may wait for settlement.
const PendingTTL = 24 * time.Hour

// ConversionStatus is the state of a pending conversion. Pending is the only non-terminal state.
type ConversionStatus string

const (
	StatusPending   ConversionStatus = "pending"
	StatusConverted ConversionStatus = "converted"
	StatusCancelled ConversionStatus = "cancelled"
	StatusExpired   ConversionStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s ConversionStatus) Terminal() bool {
	return s != StatusPending
}

// Direction of a conversion.
type Direction string

const (
	FiatToStable Direction = "fiat_to_stable"
	StableToFiat Direction = "stable_to_fiat"
)

// PendingConversion is a fiat deposit awaiting price-based settlement.
type PendingConversion struct {
	User       string           `json:"user"`
	Nonce      uint64           `json:"nonce"`
	FiatAmount uint64           `json:"fiatAmount"`
	MinOutput  uint64           `json:"minOutput"`
	CreatedAt  time.Time        `json:"createdAt"`
	ExpiresAt  time.Time        `json:"expiresAt"`
	Status     ConversionStatus `json:"status"`
	// Settlement results, written once on conversion.
	Rate     uint64     `json:"rate"`
	Output   uint64     `json:"output"`
	Fee      uint64     `json:"fee"`
	PoolID   string     `json:"poolId,omitempty"`
	ClosedAt *time.Time `json:"closedAt,omitempty"`
}

// NewPendingConversion creates a pending record expiring PendingTTL after now.
func NewPendingConversion(user string, nonce, amount, minOutput uint64, now time.Time) PendingConversion {
	return PendingConversion{
		User:       user,
		Nonce:      nonce,
		FiatAmount: amount,
		MinOutput:  minOutput,
		CreatedAt:  now,
		ExpiresAt:  now.Add(PendingTTL),
		Status:     StatusPending,
	}
}

// Expired reports whether now is strictly past the expiry.
func (p PendingConversion) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// transition moves a pending record into a terminal state exactly once.
func (p *PendingConversion) transition(to ConversionStatus, now time.Time) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: %s", ErrInvalidState, p.Status)
	}
	p.Status = to
	p.ClosedAt = &now
	return nil
}

// MarkConverted records settlement results and closes the record.
func (p *PendingConversion) MarkConverted(rate, output, fee uint64, poolID string, now time.Time) error {
	if err := p.transition(StatusConverted, now); err != nil {
		return err
	}
	p.Rate, p.Output, p.Fee, p.PoolID = rate, output, fee, poolID
	return nil
}

// MarkCancelled closes the record as cancelled by its owner.
func (p *PendingConversion) MarkCancelled(now time.Time) error {
	return p.transition(StatusCancelled, now)
}

// MarkExpired closes the record after its expiry passed.
func (p *PendingConversion) MarkExpired(now time.Time) error {
	return p.transition(StatusExpired, now)
}

// ConversionRecord is the immutable audit entry appended on settlement.
type ConversionRecord struct {
	User       string    `json:"user"`
	Nonce      uint64    `json:"nonce"`
	FiatAmount uint64    `json:"fiatAmount"`
	Output     uint64    `json:"output"`
	Rate       uint64    `json:"rate"`
	Fee        uint64    `json:"fee"`
	Direction  Direction `json:"direction"`
	PoolID     string    `json:"poolId"`
	Timestamp  time.Time `json:"timestamp"`
}
