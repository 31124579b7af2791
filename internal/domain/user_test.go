package domain

import (
	"testing"
	"time"
)

func TestRollWindowResetsAfterThirtyDays(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	u := NewUserLedger("alice", start)
	u.WindowFiat = 500
	u.WindowStable = 70

	u.RollWindow(start.Add(WindowLength - time.Second))
	if u.WindowFiat != 500 || u.WindowStable != 70 {
		t.Fatalf("window reset early: fiat=%d stable=%d", u.WindowFiat, u.WindowStable)
	}

	now := start.Add(WindowLength)
	u.RollWindow(now)
	if u.WindowFiat != 0 || u.WindowStable != 0 {
		t.Errorf("window not reset: fiat=%d stable=%d", u.WindowFiat, u.WindowStable)
	}
	if !u.WindowStart.Equal(now) {
		t.Errorf("WindowStart = %v, want %v", u.WindowStart, now)
	}
}

func TestRollWindowIsIdempotent(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start.Add(WindowLength + time.Hour)

	a := NewUserLedger("alice", start)
	a.RollWindow(now)
	a.WindowFiat = 10
	a.RollWindow(now)

	if a.WindowFiat != 10 {
		t.Errorf("second reset at the same instant cleared counters: fiat=%d", a.WindowFiat)
	}
	if !a.WindowStart.Equal(now) {
		t.Errorf("WindowStart = %v, want %v", a.WindowStart, now)
	}
}

func TestClaimableYield(t *testing.T) {
	tests := []struct {
		name     string
		shares   uint64
		basis    uint64
		realized uint64
		nav      uint64
		want     uint64
	}{
		{"no gain at genesis", 10_000, 10_000, 0, 1_000_000, 0},
		{"gain", 10_000, 10_000, 0, 1_050_000, 500},
		{"partially realized", 10_000, 10_000, 200, 1_050_000, 300},
		{"fully realized", 10_000, 10_000, 500, 1_050_000, 0},
		{"loss floors at zero", 10_000, 10_000, 0, 900_000, 0},
		{"realized above gain floors at zero", 10_000, 10_000, 900, 1_050_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := UserLedger{Shares: tt.shares, TotalStable: tt.basis, RealizedYield: tt.realized}
			got, err := u.ClaimableYield(tt.nav)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ClaimableYield = %d, want %d", got, tt.want)
			}
		})
	}
}
