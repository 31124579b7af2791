package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/store"
)

// InitParams bootstraps the protocol ledger.
type InitParams struct {
	Authority   string      `json:"authority"`
	FiatVault   string      `json:"fiatVault"`
	StableVault string      `json:"stableVault"`
	Oracle      string      `json:"oracle"`
	Keepers     []string    `json:"keepers"`
	Fees        domain.Fees `json:"fees"`
}

// InitializeProtocol creates the protocol ledger. It can succeed only once.
func (e *Engine) InitializeProtocol(ctx context.Context, params InitParams) (domain.ProtocolLedger, error) {
	if err := params.Fees.Validate(); err != nil {
		return domain.ProtocolLedger{}, err
	}
	if params.Authority == "" || params.FiatVault == "" || params.StableVault == "" || params.Oracle == "" {
		return domain.ProtocolLedger{}, fmt.Errorf("%w: authority, vaults and oracle are required", domain.ErrInvalidRequest)
	}

	var out domain.ProtocolLedger
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		if _, err := tx.Protocol(ctx); err == nil {
			return nil, domain.ErrAlreadyInitialized
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		out = domain.ProtocolLedger{
			Authority:   params.Authority,
			FiatVault:   params.FiatVault,
			StableVault: params.StableVault,
			Oracle:      params.Oracle,
			Keepers:     params.Keepers,
			Fees:        params.Fees,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}.Clone()
		if err := tx.SaveProtocol(ctx, out); err != nil {
			return nil, err
		}
		return []events.Event{events.New(events.TypeProtocolInitialized, now, events.ProtocolInitialized{
			Authority: out.Authority,
			Oracle:    out.Oracle,
			Fees:      out.Fees,
		})}, nil
	})
	return out, err
}

// PoolParams registers a yield pool.
type PoolParams struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	UnderlyingAsset string `json:"underlyingAsset"`
	DepositVault    string `json:"depositVault"`
	YieldTokenVault string `json:"yieldTokenVault"`
	NAVSource       string `json:"navSource"`
	WeightBps       uint16 `json:"weightBps"`
	MinDeposit      uint64 `json:"minDeposit"`
	MaxAllocation   uint64 `json:"maxAllocation"`
}

// RegisterPool creates an active pool at genesis NAV.
func (e *Engine) RegisterPool(ctx context.Context, caller string, params PoolParams) (domain.YieldPool, error) {
	poolType, err := domain.ParsePoolType(params.Type)
	if err != nil {
		return domain.YieldPool{}, err
	}
	if params.ID == "" || params.DepositVault == "" {
		return domain.YieldPool{}, fmt.Errorf("%w: pool id and deposit vault are required", domain.ErrInvalidRequest)
	}
	if uint64(params.WeightBps) > domain.BpsDenominator {
		return domain.YieldPool{}, fmt.Errorf("%w: weight %d bps", domain.ErrInvalidRequest, params.WeightBps)
	}

	var out domain.YieldPool
	err = e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := requireAuthority(protocol, caller); err != nil {
			return nil, err
		}
		if _, err := tx.Pool(ctx, params.ID); err == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrPoolExists, params.ID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		out = domain.YieldPool{
			ID:              params.ID,
			Name:            params.Name,
			Type:            poolType,
			UnderlyingAsset: params.UnderlyingAsset,
			DepositVault:    params.DepositVault,
			YieldTokenVault: params.YieldTokenVault,
			NAVSource:       params.NAVSource,
			NAVPerShare:     domain.GenesisNAV,
			WeightBps:       params.WeightBps,
			MinDeposit:      params.MinDeposit,
			MaxAllocation:   params.MaxAllocation,
			Active:          true,
			LastNAVUpdate:   now,
		}
		protocol.UpdatedAt = now
		if err := tx.SavePool(ctx, out); err != nil {
			return nil, err
		}
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		return []events.Event{events.New(events.TypePoolRegistered, now, events.PoolRegistered{
			PoolID: out.ID,
			Type:   out.Type,
			Weight: out.WeightBps,
		})}, nil
	})
	return out, err
}

// PoolUpdate changes the administrative fields of a pool. Nil fields are left unchanged.
type PoolUpdate struct {
	Active        *bool   `json:"active,omitempty"`
	WeightBps     *uint16 `json:"weightBps,omitempty"`
	MinDeposit    *uint64 `json:"minDeposit,omitempty"`
	MaxAllocation *uint64 `json:"maxAllocation,omitempty"`
}

// UpdatePool applies an administrative update to a pool.
func (e *Engine) UpdatePool(ctx context.Context, caller, id string, update PoolUpdate) (domain.YieldPool, error) {
	if update.WeightBps != nil && uint64(*update.WeightBps) > domain.BpsDenominator {
		return domain.YieldPool{}, fmt.Errorf("%w: weight %d bps", domain.ErrInvalidRequest, *update.WeightBps)
	}

	var out domain.YieldPool
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := requireAuthority(protocol, caller); err != nil {
			return nil, err
		}
		pool, err := loadPool(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		if update.Active != nil {
			pool.Active = *update.Active
		}
		if update.WeightBps != nil {
			pool.WeightBps = *update.WeightBps
		}
		if update.MinDeposit != nil {
			pool.MinDeposit = *update.MinDeposit
		}
		if update.MaxAllocation != nil {
			pool.MaxAllocation = *update.MaxAllocation
		}
		out = pool
		if err := tx.SavePool(ctx, pool); err != nil {
			return nil, err
		}
		return []events.Event{events.New(events.TypePoolUpdated, now, events.PoolUpdated{
			PoolID:        pool.ID,
			Active:        pool.Active,
			WeightBps:     pool.WeightBps,
			MinDeposit:    pool.MinDeposit,
			MaxAllocation: pool.MaxAllocation,
		})}, nil
	})
	return out, err
}

// UpdateFees is the only path that changes fee parameters.
func (e *Engine) UpdateFees(ctx context.Context, caller string, fees domain.Fees) (domain.ProtocolLedger, error) {
	if err := fees.Validate(); err != nil {
		return domain.ProtocolLedger{}, err
	}

	var out domain.ProtocolLedger
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := requireAuthority(protocol, caller); err != nil {
			return nil, err
		}
		old := protocol.Fees
		protocol.Fees = fees
		protocol.UpdatedAt = now
		out = protocol
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		return []events.Event{events.New(events.TypeFeesUpdated, now, events.FeesUpdated{Old: old, New: fees})}, nil
	})
	return out, err
}

// Pause deactivates the protocol.
func (e *Engine) Pause(ctx context.Context, caller string) error {
	return e.setActive(ctx, caller, false)
}

// Resume reactivates the protocol.
func (e *Engine) Resume(ctx context.Context, caller string) error {
	return e.setActive(ctx, caller, true)
}

func (e *Engine) setActive(ctx context.Context, caller string, active bool) error {
	return e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := requireAuthority(protocol, caller); err != nil {
			return nil, err
		}
		protocol.Active = active
		protocol.UpdatedAt = now
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		if active {
			return []events.Event{events.New(events.TypeProtocolResumed, now, events.ProtocolResumed{By: caller})}, nil
		}
		return []events.Event{events.New(events.TypeProtocolPaused, now, events.ProtocolPaused{By: caller})}, nil
	})
}
