package record

import (
	"errors"
	"testing"
	"time"
)

func TestDecodePriceFeed(t *testing.T) {
	updated := time.Unix(1_700_000_000, 0)
	data := EncodePriceFeed(PriceFeed{Authority: KeyOf("oracle"), Price: 155_000_000, LastUpdate: updated})
	if len(data) != PriceFeedLen {
		t.Fatalf("len = %d, want %d", len(data), PriceFeedLen)
	}

	got, err := DecodePriceFeed(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Price != 155_000_000 {
		t.Errorf("Price = %d, want 155000000", got.Price)
	}
	if !got.LastUpdate.Equal(updated) {
		t.Errorf("LastUpdate = %v, want %v", got.LastUpdate, updated)
	}
	if got.Authority != KeyOf("oracle") {
		t.Errorf("Authority = %s, want key of oracle", got.Authority)
	}
}

func TestDecodeTooShort(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		size   int
	}{
		{"price feed", func(b []byte) error { _, err := DecodePriceFeed(b); return err }, PriceFeedLen},
		{"authorization", func(b []byte) error { _, err := DecodeAuthorization(b); return err }, AuthorizationLen},
		{"identity", func(b []byte) error { _, err := DecodeIdentity(b); return err }, IdentityLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, n := range []int{0, 8, tt.size - 1} {
				err := tt.decode(make([]byte, n))
				if !errors.Is(err, ErrTooShort) {
					t.Errorf("len %d: err = %v, want ErrTooShort", n, err)
				}
			}
			if err := tt.decode(make([]byte, tt.size)); err != nil {
				t.Errorf("len %d: unexpected error: %v", tt.size, err)
			}
		})
	}
}

func TestDecodeAuthorization(t *testing.T) {
	want := Authorization{
		Owner:        KeyOf("alice"),
		Registry:     KeyOf("registry"),
		Active:       true,
		Level:        2,
		Jurisdiction: 3,
		ExpiresAt:    time.Unix(1_800_000_000, 0),
	}
	data := EncodeAuthorization(want)
	if len(data) != 83 {
		t.Fatalf("len = %d, want 83", len(data))
	}

	got, err := DecodeAuthorization(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Owner != want.Owner || got.Registry != want.Registry {
		t.Error("owner or registry mismatch")
	}
	if !got.Active || got.Level != 2 || got.Jurisdiction != 3 {
		t.Errorf("flags = %v/%d/%d, want true/2/3", got.Active, got.Level, got.Jurisdiction)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, want.ExpiresAt)
	}
}

func TestDecodeIdentityIgnoresTrailingFields(t *testing.T) {
	data := EncodeIdentity(Identity{Owner: KeyOf("bob"), Tier: 3})
	data = append(data, make([]byte, 64)...)

	got, err := DecodeIdentity(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tier != 3 {
		t.Errorf("Tier = %d, want 3", got.Tier)
	}
}

func TestDecodeVaultState(t *testing.T) {
	want := VaultState{
		Authority:     KeyOf("pool"),
		TargetAPYBps:  525,
		TotalDeposits: 10_000_000,
		TotalShares:   9_500_000,
		NAVPerShare:   1_052_631,
		LastAccrual:   time.Unix(1_700_000_100, 0),
		Active:        true,
	}
	data := EncodeVaultState(want)

	got, err := DecodeVaultState(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.TargetAPYBps != 525 || got.NAVPerShare != 1_052_631 {
		t.Errorf("apy/nav = %d/%d, want 525/1052631", got.TargetAPYBps, got.NAVPerShare)
	}
	if got.TotalDeposits != 10_000_000 || got.TotalShares != 9_500_000 {
		t.Errorf("totals = %d/%d", got.TotalDeposits, got.TotalShares)
	}
	if !got.Active || !got.LastAccrual.Equal(want.LastAccrual) {
		t.Errorf("trailing fields not decoded: %+v", got)
	}

	// Without the trailing fields the record is still valid.
	short, err := DecodeVaultState(data[:VaultStateV1Len])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if short.NAVPerShare != 1_052_631 || short.Active {
		t.Errorf("short record = %+v", short)
	}

	if _, err := DecodeVaultState(data[:VaultStateV1Len-1]); !errors.Is(err, ErrTooShort) {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
}

func TestDecodeVaultStateUnknownSchema(t *testing.T) {
	data := EncodeVaultState(VaultState{NAVPerShare: 1})
	data[0] ^= 0xff

	if _, err := DecodeVaultState(data); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("err = %v, want ErrUnknownSchema", err)
	}
	if _, err := DecodeVaultState([]byte{1, 2}); !errors.Is(err, ErrTooShort) {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
}
