package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
)

// Expirer closes an overdue pending conversion.
type Expirer interface {
	ExpireConversion(ctx context.Context, keeper, user string, nonce uint64) (domain.PendingConversion, error)
}

// ExpiryWorker periodically expires pending conversions past their deadline, refunding the fiat.
type ExpiryWorker struct {
	pending  PendingScanner
	expirer  Expirer
	keeper   string
	interval time.Duration
	now      func() time.Time
}

// NewExpiryWorker creates a new ExpiryWorker acting as keeper.
func NewExpiryWorker(pending PendingScanner, expirer Expirer, keeper string, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{pending: pending, expirer: expirer, keeper: keeper, interval: interval, now: time.Now}
}

// Run starts the expiry loop. It blocks until the context is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) {
	run(ctx, "ExpiryWorker", w.interval, func(ctx context.Context) error {
		_, err := w.ExpireOverdue(ctx)
		return err
	})
}

// ExpireOverdue expires every pending record whose deadline has passed.
func (w *ExpiryWorker) ExpireOverdue(ctx context.Context) (int, error) {
	expired := 0
	err := eachPending(ctx, w.pending, w.now(), true, func(p domain.PendingConversion) {
		if _, err := w.expirer.ExpireConversion(ctx, w.keeper, p.User, p.Nonce); err != nil {
			slog.Warn("ExpiryWorker: expire failed", "user", p.User, "nonce", p.Nonce, "error", err)
			return
		}
		expired++
		slog.Info("ExpiryWorker: expired", "user", p.User, "nonce", p.Nonce, "refund", domain.FormatAmount(p.FiatAmount))
	})
	if err != nil {
		return expired, fmt.Errorf("scanning pending conversions: %w", err)
	}
	return expired, nil
}
