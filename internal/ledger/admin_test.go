package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/exodusfi/exodus/internal/custody"
	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/record"
	"github.com/exodusfi/exodus/internal/store"
)

func TestInitializeProtocolOnce(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.InitializeProtocol(h.ctx, InitParams{
		Authority: "other", FiatVault: "f", StableVault: "s", Oracle: "o",
	})
	if !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("err = %v, want ErrAlreadyInitialized", err)
	}
	if got := h.protocol().Authority; got != admin {
		t.Errorf("authority = %q, want %q", got, admin)
	}
}

func TestInitializeProtocolValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name    string
		params  InitParams
		wantErr error
	}{
		{"conversion fee cap", InitParams{Fees: domain.Fees{ConversionBps: 1001}}, domain.ErrInvalidFee},
		{"management fee cap", InitParams{Fees: domain.Fees{ManagementBps: 501}}, domain.ErrInvalidFee},
		{"performance fee cap", InitParams{Fees: domain.Fees{PerformanceBps: 5001}}, domain.ErrInvalidFee},
		{"missing oracle", InitParams{Authority: "a", FiatVault: "f", StableVault: "s"}, domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.engine.InitializeProtocol(h.ctx, tt.params); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUninitializedProtocol(t *testing.T) {
	e := NewEngine(store.NewMemoryStore(), custody.NewBook(), nil, nil, nil, nil)

	_, err := e.DepositFiat(context.Background(), FiatDeposit{User: "alice", Amount: 1})
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
	if err := e.Pause(context.Background(), admin); !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("pause: err = %v, want ErrNotInitialized", err)
	}
}

func TestRegisterPool(t *testing.T) {
	h := newHarness(t)

	pool := h.pool()
	if pool.NAVPerShare != domain.GenesisNAV || !pool.Active || pool.Type != domain.PoolFixedIncome {
		t.Errorf("pool = %+v", pool)
	}

	tests := []struct {
		name    string
		caller  string
		params  PoolParams
		wantErr error
	}{
		{"not authority", keeper, PoolParams{ID: "x", Type: "lending", DepositVault: "v"}, domain.ErrUnauthorized},
		{"duplicate", admin, PoolParams{ID: poolID, Type: "lending", DepositVault: "v"}, domain.ErrPoolExists},
		{"unknown type", admin, PoolParams{ID: "x", Type: "casino", DepositVault: "v"}, domain.ErrInvalidPoolType},
		{"weight above 100%", admin, PoolParams{ID: "x", Type: "lending", DepositVault: "v", WeightBps: 10_001}, domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.engine.RegisterPool(h.ctx, tt.caller, tt.params); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateFees(t *testing.T) {
	h := newHarness(t)

	if _, err := h.engine.UpdateFees(h.ctx, keeper, domain.Fees{ConversionBps: 10}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("keeper: err = %v, want ErrUnauthorized", err)
	}
	if _, err := h.engine.UpdateFees(h.ctx, admin, domain.Fees{ConversionBps: 2000}); !errors.Is(err, domain.ErrInvalidFee) {
		t.Errorf("over cap: err = %v, want ErrInvalidFee", err)
	}
	if got := h.protocol().Fees.ConversionBps; got != 50 {
		t.Errorf("fees changed by rejected update: %d", got)
	}

	want := domain.Fees{ConversionBps: 1000, ManagementBps: 500, PerformanceBps: 5000}
	if _, err := h.engine.UpdateFees(h.ctx, admin, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.protocol().Fees; got != want {
		t.Errorf("fees = %+v, want %+v", got, want)
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	h.verify("alice", 1)

	if err := h.engine.Pause(h.ctx, "mallory"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if err := h.engine.Pause(h.ctx, admin); err != nil {
		t.Fatal(err)
	}
	h.fund(domain.AssetStable, "alice", 100)
	if _, err := h.engine.DepositStable(h.ctx, StableDeposit{User: "alice", Amount: 100, PoolID: poolID}); !errors.Is(err, domain.ErrProtocolInactive) {
		t.Errorf("paused deposit: err = %v, want ErrProtocolInactive", err)
	}
	if err := h.engine.Resume(h.ctx, admin); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.DepositStable(h.ctx, StableDeposit{User: "alice", Amount: 100, PoolID: poolID}); err != nil {
		t.Errorf("resumed deposit: %v", err)
	}
}

func TestUpdateNAV(t *testing.T) {
	h := newHarness(t)
	h.setNAV(1_020_000, 450)

	pool := h.pool()
	if pool.NAVPerShare != 1_020_000 || pool.APYBps != 450 || !pool.LastNAVUpdate.Equal(h.now) {
		t.Errorf("pool = %+v", pool)
	}

	tests := []struct {
		name    string
		data    []byte
		caller  string
		wantErr error
	}{
		{"not keeper", record.EncodeVaultState(record.VaultState{NAVPerShare: 1}), "mallory", domain.ErrUnauthorized},
		{"zero nav", record.EncodeVaultState(record.VaultState{NAVPerShare: 0}), keeper, domain.ErrInvalidNav},
		{"truncated", make([]byte, 100), keeper, domain.ErrInvalidNav},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.src.Put(poolNAVRef, tt.data)
			if _, err := h.engine.UpdateNAV(h.ctx, tt.caller, poolID); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := h.pool().NAVPerShare; got != 1_020_000 {
				t.Errorf("nav = %d, want unchanged 1020000", got)
			}
		})
	}

	h.src.Delete(poolNAVRef)
	if _, err := h.engine.UpdateNAV(h.ctx, keeper, poolID); !errors.Is(err, domain.ErrInvalidNav) {
		t.Errorf("missing record: err = %v, want ErrInvalidNav", err)
	}
}
