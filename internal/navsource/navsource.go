// Package navsource reads external pool state behind a versioned layout.
package navsource

import (
	"context"
	"fmt"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/record"
	"github.com/exodusfi/exodus/internal/source"
)

// Reader fetches and decodes external pool state records.
type Reader struct {
	fetcher source.Fetcher
}

// NewReader creates a new Reader.
func NewReader(fetcher source.Fetcher) *Reader {
	return &Reader{fetcher: fetcher}
}

// Read returns the pool state stored under ref. Malformed records and a zero NAV
// fail with domain.ErrInvalidNav.
func (r *Reader) Read(ctx context.Context, ref string) (record.VaultState, error) {
	data, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		return record.VaultState{}, fmt.Errorf("%w: fetching %s: %w", domain.ErrInvalidNav, ref, err)
	}

	state, err := record.DecodeVaultState(data)
	if err != nil {
		return record.VaultState{}, fmt.Errorf("%w: %w", domain.ErrInvalidNav, err)
	}
	if state.NAVPerShare == 0 {
		return record.VaultState{}, fmt.Errorf("%w: zero nav per share", domain.ErrInvalidNav)
	}
	return state, nil
}
