package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/store"
)

// UpdateNAV copies the external pool's NAV per share and target APY into the registry.
func (e *Engine) UpdateNAV(ctx context.Context, keeper, poolID string) (domain.YieldPool, error) {
	var out domain.YieldPool
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := requireKeeper(protocol, keeper); err != nil {
			return nil, err
		}
		pool, err := loadPool(ctx, tx, poolID)
		if err != nil {
			return nil, err
		}
		if pool.NAVSource == "" {
			return nil, fmt.Errorf("%w: pool %s has no nav source", domain.ErrInvalidNav, pool.ID)
		}

		state, err := e.navs.Read(ctx, pool.NAVSource)
		if err != nil {
			return nil, err
		}
		if state.NAVPerShare == 0 {
			return nil, fmt.Errorf("%w: zero nav per share", domain.ErrInvalidNav)
		}

		old := pool.NAVPerShare
		pool.NAVPerShare = state.NAVPerShare
		pool.APYBps = state.TargetAPYBps
		pool.LastNAVUpdate = now
		protocol.UpdatedAt = now

		if err := tx.SavePool(ctx, pool); err != nil {
			return nil, err
		}
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}

		out = pool
		return []events.Event{events.New(events.TypeNavUpdated, now, events.NavUpdated{
			PoolID: pool.ID,
			OldNAV: old,
			NewNAV: pool.NAVPerShare,
			APYBps: pool.APYBps,
		})}, nil
	})
	return out, err
}
