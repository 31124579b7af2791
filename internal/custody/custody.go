// Package custody moves 6-decimal asset amounts between custody endpoints.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/exodusfi/exodus/internal/domain"
)

// ErrInsufficientBalance indicates the source endpoint cannot cover a transfer.
var ErrInsufficientBalance = errors.New("insufficient custody balance")

// Transferer moves amount of asset from one endpoint to another, atomically.
type Transferer interface {
	Transfer(ctx context.Context, asset, from, to string, amount uint64) error
}

type account struct {
	asset    string
	endpoint string
}

// Book is an in-memory balance book keyed by (asset, endpoint).
type Book struct {
	mu       sync.Mutex
	balances map[account]uint64
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{balances: make(map[account]uint64)}
}

// Credit adds amount to an endpoint without a counterparty.
func (b *Book) Credit(asset, endpoint string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := account{asset, endpoint}
	next, err := domain.CheckedAdd(b.balances[key], amount)
	if err != nil {
		return fmt.Errorf("crediting %s/%s: %w", asset, endpoint, err)
	}
	b.balances[key] = next
	return nil
}

// Balance returns the balance of asset held by endpoint.
func (b *Book) Balance(asset, endpoint string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account{asset, endpoint}]
}

func (b *Book) Transfer(_ context.Context, asset, from, to string, amount uint64) error {
	if amount == 0 {
		return domain.ErrZeroAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src, dst := account{asset, from}, account{asset, to}
	if b.balances[src] < amount {
		return fmt.Errorf("%w: %s/%s has %d, need %d", ErrInsufficientBalance, asset, from, b.balances[src], amount)
	}
	if from == to {
		return nil
	}
	credited, err := domain.CheckedAdd(b.balances[dst], amount)
	if err != nil {
		return fmt.Errorf("crediting %s/%s: %w", asset, to, err)
	}
	b.balances[src] -= amount
	b.balances[dst] = credited
	return nil
}
