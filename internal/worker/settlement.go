package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/ledger"
)

// Settler settles a pending conversion.
type Settler interface {
	SettleConversion(ctx context.Context, keeper string, req ledger.SettleRequest) (ledger.Settlement, error)
}

// SettlementWorker periodically settles pending fiat conversions into one pool.
type SettlementWorker struct {
	pending  PendingScanner
	settler  Settler
	keeper   string
	poolID   string
	interval time.Duration
	now      func() time.Time
}

// NewSettlementWorker creates a new SettlementWorker acting as keeper.
func NewSettlementWorker(pending PendingScanner, settler Settler, keeper, poolID string, interval time.Duration) *SettlementWorker {
	return &SettlementWorker{
		pending:  pending,
		settler:  settler,
		keeper:   keeper,
		poolID:   poolID,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the settlement loop. It blocks until the context is cancelled.
func (w *SettlementWorker) Run(ctx context.Context) {
	run(ctx, "SettlementWorker", w.interval, func(ctx context.Context) error {
		_, err := w.SettleAll(ctx)
		return err
	})
}

// SettleAll attempts every pending record that has not expired. A failing record is logged
// and left for the next run; it never stops the pass.
func (w *SettlementWorker) SettleAll(ctx context.Context) (int, error) {
	settled := 0
	err := eachPending(ctx, w.pending, w.now(), false, func(p domain.PendingConversion) {
		res, err := w.settler.SettleConversion(ctx, w.keeper, ledger.SettleRequest{
			User:   p.User,
			Nonce:  p.Nonce,
			PoolID: w.poolID,
		})
		if err != nil {
			kind := domain.KindOf(err)
			slog.Warn("SettlementWorker: settle failed",
				"user", p.User, "nonce", p.Nonce, "kind", kind, "retryable", domain.Retryable(kind), "error", err)
			return
		}
		settled++
		slog.Info("SettlementWorker: settled",
			"user", p.User, "nonce", p.Nonce, "output", res.Record.Output, "shares", res.Shares)
	})
	if err != nil {
		return settled, fmt.Errorf("scanning pending conversions: %w", err)
	}
	return settled, nil
}
