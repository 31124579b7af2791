// Package ledger implements the protocol's operations: intake, conversion settlement,
// NAV updates, withdrawal and yield claims. Every operation runs as one store unit and
// publishes its events only after the unit commits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/custody"
	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/oracle"
	"github.com/exodusfi/exodus/internal/record"
	"github.com/exodusfi/exodus/internal/store"
)

// RateMode selects how a user's average conversion rate is maintained.
type RateMode string

const (
	// RateLatest stores the rate of the most recent settlement.
	RateLatest RateMode = "latest"
	// RateWeighted stores the fiat-weighted average of all settlements.
	RateWeighted RateMode = "weighted"
)

// ParseRateMode validates a rate mode name. An empty name selects RateLatest.
func ParseRateMode(s string) (RateMode, error) {
	switch m := RateMode(s); m {
	case "":
		return RateLatest, nil
	case RateLatest, RateWeighted:
		return m, nil
	default:
		return "", fmt.Errorf("unknown rate mode %q", s)
	}
}

// PriceSource returns a validated oracle price.
type PriceSource interface {
	Current(ctx context.Context, ref string, now time.Time) (oracle.Price, error)
}

// Authorizer answers authorization and tier questions for a user.
type Authorizer interface {
	Authorize(ctx context.Context, user string, now time.Time) error
	Tier(ctx context.Context, user string) (uint8, error)
}

// NAVReader reads an external pool's state.
type NAVReader interface {
	Read(ctx context.Context, ref string) (record.VaultState, error)
}

// Engine executes protocol operations.
type Engine struct {
	store     store.Store
	transfers custody.Transferer
	prices    PriceSource
	identity  Authorizer
	navs      NAVReader
	sink      events.Sink
	now       func() time.Time
	rateMode  RateMode
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRateMode selects the average-rate mode.
func WithRateMode(m RateMode) Option {
	return func(e *Engine) { e.rateMode = m }
}

// NewEngine creates a new Engine. A nil sink discards events.
func NewEngine(st store.Store, transfers custody.Transferer, prices PriceSource, identity Authorizer, navs NAVReader, sink events.Sink, opts ...Option) *Engine {
	if sink == nil {
		sink = events.Fanout(nil)
	}
	e := &Engine{
		store:     st,
		transfers: transfers,
		prices:    prices,
		identity:  identity,
		navs:      navs,
		sink:      sink,
		now:       time.Now,
		rateMode:  RateLatest,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// unit runs fn inside one store transaction and publishes the events it returns after commit.
func (e *Engine) unit(ctx context.Context, fn func(tx store.Tx, now time.Time) ([]events.Event, error)) error {
	now := e.now()
	var evs []events.Event
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		evs, err = fn(tx, now)
		return err
	})
	if err != nil {
		return err
	}
	e.sink.Publish(ctx, evs...)
	return nil
}

func loadProtocol(ctx context.Context, tx store.Tx) (domain.ProtocolLedger, error) {
	p, err := tx.Protocol(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return p, domain.ErrNotInitialized
	}
	return p, err
}

func loadActiveProtocol(ctx context.Context, tx store.Tx) (domain.ProtocolLedger, error) {
	p, err := loadProtocol(ctx, tx)
	if err != nil {
		return p, err
	}
	if !p.Active {
		return p, domain.ErrProtocolInactive
	}
	return p, nil
}

func loadPool(ctx context.Context, tx store.Tx, id string) (domain.YieldPool, error) {
	p, err := tx.Pool(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return p, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, id)
	}
	return p, err
}

func loadUser(ctx context.Context, tx store.Tx, owner string) (domain.UserLedger, error) {
	u, err := tx.User(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return u, fmt.Errorf("%w: %s", domain.ErrUserNotFound, owner)
	}
	return u, err
}

func loadPending(ctx context.Context, tx store.Tx, user string, nonce uint64) (domain.PendingConversion, error) {
	p, err := tx.Pending(ctx, user, nonce)
	if errors.Is(err, store.ErrNotFound) {
		return p, fmt.Errorf("%w: %s/%d", domain.ErrConversionNotFound, user, nonce)
	}
	return p, err
}

func requireAuthority(p domain.ProtocolLedger, caller string) error {
	if caller == "" || caller != p.Authority {
		return domain.ErrUnauthorized
	}
	return nil
}

func requireKeeper(p domain.ProtocolLedger, caller string) error {
	if !p.IsKeeper(caller) {
		return domain.ErrUnauthorized
	}
	return nil
}

// transfer moves a non-zero amount; zero amounts are a no-op.
func (e *Engine) transfer(ctx context.Context, asset, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := e.transfers.Transfer(ctx, asset, from, to, amount); err != nil {
		return fmt.Errorf("transferring %d %s from %s to %s: %w", amount, asset, from, to, err)
	}
	return nil
}

func incr32(v uint32) (uint32, error) {
	if v == ^uint32(0) {
		return 0, domain.ErrArithmeticOverflow
	}
	return v + 1, nil
}
