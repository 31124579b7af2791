// Package worker runs the keeper processes that drive settlement, NAV updates, expiry
// and snapshots. The ledger itself never schedules anything.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/store"
)

// pageSize is how many pending records one scan query returns.
const pageSize = 500

// PendingScanner pages through pending conversion records.
type PendingScanner interface {
	ScanPending(ctx context.Context, q store.PendingScan) ([]domain.PendingConversion, error)
}

// eachPending visits every Pending record selected by expired, page by page. The cursor moves
// past every record visited, so records that keep failing never hide the ones behind them.
func eachPending(ctx context.Context, scanner PendingScanner, now time.Time, expired bool,
	visit func(domain.PendingConversion)) error {
	q := store.PendingScan{Now: now, Expired: expired, Limit: pageSize}
	for {
		page, err := scanner.ScanPending(ctx, q)
		if err != nil {
			return err
		}
		for _, p := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			visit(p)
		}
		if len(page) < pageSize {
			return nil
		}
		last := store.CursorOf(page[len(page)-1])
		q.After = &last
	}
}

// tick is one unit of periodic work.
type tick func(ctx context.Context) error

// run executes fn immediately and then on every interval until ctx is cancelled.
func run(ctx context.Context, name string, interval time.Duration, fn tick) {
	slog.Info(name + ": starting")

	if err := fn(ctx); err != nil {
		slog.Error(name+": initial run failed", "error", err)
	} else {
		slog.Debug(name + ": initial run completed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info(name + ": shutting down")
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				slog.Error(name+": run failed", "error", err)
			} else {
				slog.Debug(name + ": run completed")
			}
		}
	}
}
