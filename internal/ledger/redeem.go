package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/store"
)

// Withdrawal redeems shares at a pool's NAV.
type Withdrawal struct {
	User   string `json:"user"`
	PoolID string `json:"poolId"`
	Shares uint64 `json:"shares"`
}

// WithdrawalResult reports the reference-asset amount paid out.
type WithdrawalResult struct {
	Amount uint64 `json:"amount"`
	NAV    uint64 `json:"nav"`
}

// Withdraw burns shares and pays their value at the pool's NAV from the pool's custody.
// User shares are protocol-wide and not tied to the pool that issued them, so the caller's
// choice of PoolID decides the NAV they are valued at. Only the pool's outstanding
// TotalShares bounds the request.
func (e *Engine) Withdraw(ctx context.Context, req Withdrawal) (WithdrawalResult, error) {
	var out WithdrawalResult
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadActiveProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if req.Shares == 0 {
			return nil, domain.ErrZeroAmount
		}
		user, err := loadUser(ctx, tx, req.User)
		if err != nil {
			return nil, err
		}
		if user.Shares < req.Shares {
			return nil, fmt.Errorf("%w: have %d, requested %d", domain.ErrInsufficientShares, user.Shares, req.Shares)
		}
		pool, err := loadPool(ctx, tx, req.PoolID)
		if err != nil {
			return nil, err
		}

		amount, err := domain.ValueOf(req.Shares, pool.NAVPerShare)
		if err != nil {
			return nil, err
		}
		poolShares, err := domain.CheckedSub(pool.TotalShares, req.Shares)
		if err != nil {
			return nil, fmt.Errorf("%w: pool %s has %d", domain.ErrInsufficientPoolShare, pool.ID, pool.TotalShares)
		}
		userShares, err := domain.CheckedSub(user.Shares, req.Shares)
		if err != nil {
			return nil, err
		}
		count, err := incr32(user.WithdrawalCount)
		if err != nil {
			return nil, err
		}

		pool.TotalShares = poolShares
		pool.TotalDeposited = domain.SaturatingSub(pool.TotalDeposited, amount)
		user.Shares = userShares
		user.WithdrawalCount = count
		user.LastWithdrawAt = now
		if user.UnrealizedYield, err = user.ClaimableYield(pool.NAVPerShare); err != nil {
			return nil, err
		}
		protocol.TotalDeposits = domain.SaturatingSub(protocol.TotalDeposits, amount)
		protocol.UpdatedAt = now

		if err := tx.SavePool(ctx, pool); err != nil {
			return nil, err
		}
		if err := tx.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		if err := e.transfer(ctx, domain.AssetStable, pool.DepositVault, req.User, amount); err != nil {
			return nil, err
		}

		out = WithdrawalResult{Amount: amount, NAV: pool.NAVPerShare}
		return []events.Event{events.New(events.TypeWithdrawalExecuted, now, events.WithdrawalExecuted{
			User:   req.User,
			PoolID: pool.ID,
			Shares: req.Shares,
			Amount: amount,
			NAV:    pool.NAVPerShare,
		})}, nil
	})
	return out, err
}

// YieldClaim pays out gain above cost basis valued at a pool's NAV.
type YieldClaim struct {
	User   string `json:"user"`
	PoolID string `json:"poolId"`
}

// ClaimResult reports a yield claim. Claimable is the gross gain absorbed into realized yield.
type ClaimResult struct {
	Claimable uint64 `json:"claimable"`
	Fee       uint64 `json:"fee"`
	Paid      uint64 `json:"paid"`
}

// ClaimYield pays the unrealized gain minus the performance fee. The gross gain is added to
// realized yield so a repeated claim at the same NAV finds nothing left.
func (e *Engine) ClaimYield(ctx context.Context, req YieldClaim) (ClaimResult, error) {
	var out ClaimResult
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadActiveProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		user, err := loadUser(ctx, tx, req.User)
		if err != nil {
			return nil, err
		}
		pool, err := loadPool(ctx, tx, req.PoolID)
		if err != nil {
			return nil, err
		}

		claimable, err := user.ClaimableYield(pool.NAVPerShare)
		if err != nil {
			return nil, err
		}
		if claimable == 0 {
			return nil, domain.ErrNoYieldToClaim
		}
		fee, err := domain.BpsOf(claimable, protocol.Fees.PerformanceBps)
		if err != nil {
			return nil, err
		}
		paid, err := domain.CheckedSub(claimable, fee)
		if err != nil {
			return nil, err
		}
		realized, err := domain.CheckedAdd(user.RealizedYield, claimable)
		if err != nil {
			return nil, err
		}
		totalYield, err := domain.CheckedAdd(protocol.TotalYield, claimable)
		if err != nil {
			return nil, err
		}

		user.RealizedYield = realized
		user.UnrealizedYield = 0
		protocol.TotalYield = totalYield
		protocol.UpdatedAt = now

		if err := tx.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		if err := e.transfer(ctx, domain.AssetStable, pool.DepositVault, req.User, paid); err != nil {
			return nil, err
		}

		out = ClaimResult{Claimable: claimable, Fee: fee, Paid: paid}
		return []events.Event{events.New(events.TypeYieldClaimed, now, events.YieldClaimed{
			User:      req.User,
			PoolID:    pool.ID,
			Claimable: claimable,
			Fee:       fee,
			Paid:      paid,
		})}, nil
	})
	return out, err
}
