// Package oracle reads the external fiat/reference price and enforces freshness.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/record"
	"github.com/exodusfi/exodus/internal/source"
)

// DefaultMaxAge is the oldest price accepted for settlement.
const DefaultMaxAge = 300 * time.Second

// Price is a validated oracle reading.
type Price struct {
	Rate       uint64 // fiat per reference unit, scale 1e6
	LastUpdate time.Time
	Age        time.Duration
}

// Adapter validates price feed records fetched from a source.
type Adapter struct {
	fetcher source.Fetcher
	maxAge  time.Duration
}

// NewAdapter creates a new Adapter. A non-positive maxAge selects DefaultMaxAge.
func NewAdapter(fetcher source.Fetcher, maxAge time.Duration) *Adapter {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Adapter{fetcher: fetcher, maxAge: maxAge}
}

// Current returns the price stored under ref as of now.
// An age exactly equal to the maximum is accepted.
func (a *Adapter) Current(ctx context.Context, ref string, now time.Time) (Price, error) {
	data, err := a.fetcher.Fetch(ctx, ref)
	if err != nil {
		return Price{}, fmt.Errorf("%w: fetching %s: %w", domain.ErrInvalidPrice, ref, err)
	}

	feed, err := record.DecodePriceFeed(data)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %w", domain.ErrInvalidPrice, err)
	}
	if feed.Price == 0 {
		return Price{}, fmt.Errorf("%w: zero price", domain.ErrInvalidPrice)
	}

	age := now.Sub(feed.LastUpdate)
	if age > a.maxAge {
		return Price{}, fmt.Errorf("%w: age %s exceeds %s", domain.ErrStalePrice, age, a.maxAge)
	}

	return Price{Rate: feed.Price, LastUpdate: feed.LastUpdate, Age: age}, nil
}
