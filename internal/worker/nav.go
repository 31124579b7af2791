package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/exodusfi/exodus/internal/domain"
)

// PoolLister lists registered pools.
type PoolLister interface {
	ListPools(ctx context.Context) ([]domain.YieldPool, error)
}

// NAVUpdater refreshes a pool's NAV from its source.
type NAVUpdater interface {
	UpdateNAV(ctx context.Context, keeper, poolID string) (domain.YieldPool, error)
}

// NavWorker periodically refreshes the NAV of every active pool.
type NavWorker struct {
	pools    PoolLister
	updater  NAVUpdater
	keeper   string
	interval time.Duration
}

// NewNavWorker creates a new NavWorker acting as keeper.
func NewNavWorker(pools PoolLister, updater NAVUpdater, keeper string, interval time.Duration) *NavWorker {
	return &NavWorker{pools: pools, updater: updater, keeper: keeper, interval: interval}
}

// Run starts the NAV loop. It blocks until the context is cancelled.
func (w *NavWorker) Run(ctx context.Context) {
	run(ctx, "NavWorker", w.interval, w.UpdateAll)
}

// UpdateAll updates each active pool. Failures are collected so one bad source does not
// hold back the others.
func (w *NavWorker) UpdateAll(ctx context.Context) error {
	pools, err := w.pools.ListPools(ctx)
	if err != nil {
		return fmt.Errorf("listing pools: %w", err)
	}

	var errs []error
	for _, p := range lo.Filter(pools, func(p domain.YieldPool, _ int) bool { return p.Active }) {
		updated, err := w.updater.UpdateNAV(ctx, w.keeper, p.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", p.ID, err))
			continue
		}
		slog.Info("NavWorker: nav updated", "pool", p.ID, "nav", domain.FormatAmount(updated.NAVPerShare), "apy_bps", updated.APYBps)
	}
	return errors.Join(errs...)
}
