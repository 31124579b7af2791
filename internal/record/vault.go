package record

import (
	"bytes"
	"fmt"
	"time"
)

// VaultStateV1Len is the minimum length of a v1 vault state, up to and including the NAV.
const VaultStateV1Len = discriminatorLen + 4*idLen + 2 + 8 + 8 + 8

var vaultStateV1Disc = Discriminator("VaultConfig")

// VaultState is the external pool's own accounting as seen by the NAV update.
type VaultState struct {
	Version       int
	Authority     ID
	AssetMint     ID
	ShareMint     ID
	AssetVault    ID
	TargetAPYBps  uint16
	TotalDeposits uint64
	TotalShares   uint64
	NAVPerShare   uint64
	// LastAccrual and Active are optional trailing fields.
	LastAccrual time.Time
	Active      bool
}

// DecodeVaultState selects the decoder for the record's schema version.
func DecodeVaultState(data []byte) (VaultState, error) {
	if err := requireLen(data, discriminatorLen, "vault state"); err != nil {
		return VaultState{}, err
	}
	switch {
	case bytes.Equal(data[:discriminatorLen], vaultStateV1Disc[:]):
		return decodeVaultStateV1(data)
	default:
		return VaultState{}, fmt.Errorf("%w: vault state discriminator %x", ErrUnknownSchema, data[:discriminatorLen])
	}
}

func decodeVaultStateV1(data []byte) (VaultState, error) {
	if err := requireLen(data, VaultStateV1Len, "vault state v1"); err != nil {
		return VaultState{}, err
	}
	v := VaultState{
		Version:       1,
		Authority:     readID(data, 8),
		AssetMint:     readID(data, 40),
		ShareMint:     readID(data, 72),
		AssetVault:    readID(data, 104),
		TargetAPYBps:  uint16(data[136]) | uint16(data[137])<<8,
		TotalDeposits: readU64(data, 138),
		TotalShares:   readU64(data, 146),
		NAVPerShare:   readU64(data, 154),
	}
	if len(data) >= VaultStateV1Len+8 {
		v.LastAccrual = readTime(data, VaultStateV1Len)
	}
	if len(data) >= VaultStateV1Len+9 {
		v.Active = data[VaultStateV1Len+8] != 0
	}
	return v, nil
}

// EncodeVaultState encodes a v1 vault state including the trailing fields.
func EncodeVaultState(v VaultState) []byte {
	w := newWriter(vaultStateV1Disc, VaultStateV1Len+9)
	w.id(v.Authority)
	w.id(v.AssetMint)
	w.id(v.ShareMint)
	w.id(v.AssetVault)
	w.u16(v.TargetAPYBps)
	w.u64(v.TotalDeposits)
	w.u64(v.TotalShares)
	w.u64(v.NAVPerShare)
	w.time(v.LastAccrual)
	w.bool(v.Active)
	return w.buf
}
