package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/store"
	"github.com/exodusfi/exodus/internal/tier"
)

// FiatDeposit requests conversion of fiat into the reference asset.
type FiatDeposit struct {
	User      string `json:"user"`
	Amount    uint64 `json:"amount"`
	MinOutput uint64 `json:"minOutput"`
}

// StableDeposit puts the reference asset directly into a pool.
type StableDeposit struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
	PoolID string `json:"poolId"`
}

// StableResult reports the shares issued for a stable deposit.
type StableResult struct {
	Shares uint64 `json:"shares"`
	NAV    uint64 `json:"nav"`
}

// admission is the state shared by both intake paths after the common checks pass.
type admission struct {
	protocol domain.ProtocolLedger
	user     domain.UserLedger
	tier     uint8
}

// admit runs the checks common to both intake paths: protocol active, non-zero amount,
// authorization, tier, and the rolling-window reset.
func (e *Engine) admit(ctx context.Context, tx store.Tx, userID string, amount uint64, now time.Time) (admission, error) {
	protocol, err := loadActiveProtocol(ctx, tx)
	if err != nil {
		return admission{}, err
	}
	if amount == 0 {
		return admission{}, domain.ErrZeroAmount
	}
	if userID == "" {
		return admission{}, fmt.Errorf("%w: user is required", domain.ErrInvalidRequest)
	}

	if err := e.identity.Authorize(ctx, userID, now); err != nil {
		return admission{}, err
	}
	t, err := e.identity.Tier(ctx, userID)
	if err != nil {
		return admission{}, err
	}
	if t == tier.Unverified || t > tier.Institutional {
		return admission{}, domain.ErrTierTooLow
	}

	user, err := tx.User(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		user = domain.NewUserLedger(userID, now)
	} else if err != nil {
		return admission{}, err
	}
	user.RollWindow(now)
	user.Tier = t

	return admission{protocol: protocol, user: user, tier: t}, nil
}

func checkWindow(used, amount, limit uint64) (uint64, error) {
	next, err := domain.CheckedAdd(used, amount)
	if err != nil {
		return 0, err
	}
	if next > limit {
		return 0, fmt.Errorf("%w: %d + %d > %d", domain.ErrMonthlyLimitExceeded, used, amount, limit)
	}
	return next, nil
}

// DepositFiat takes fiat into custody and opens a pending conversion.
// No shares are issued until the conversion settles.
func (e *Engine) DepositFiat(ctx context.Context, req FiatDeposit) (domain.PendingConversion, error) {
	var out domain.PendingConversion
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		adm, err := e.admit(ctx, tx, req.User, req.Amount, now)
		if err != nil {
			return nil, err
		}
		protocol, user := adm.protocol, adm.user

		window, err := checkWindow(user.WindowFiat, req.Amount, tier.MonthlyFiatLimit(adm.tier))
		if err != nil {
			return nil, err
		}
		nonce, err := domain.CheckedAdd(protocol.DepositNonce, 1)
		if err != nil {
			return nil, err
		}
		totalFiat, err := domain.CheckedAdd(user.TotalFiat, req.Amount)
		if err != nil {
			return nil, err
		}
		count, err := incr32(user.DepositCount)
		if err != nil {
			return nil, err
		}
		pendingFiat, err := domain.CheckedAdd(protocol.PendingFiat, req.Amount)
		if err != nil {
			return nil, err
		}

		pending := domain.NewPendingConversion(req.User, nonce, req.Amount, req.MinOutput, now)

		user.WindowFiat = window
		user.TotalFiat = totalFiat
		user.DepositCount = count
		user.LastDepositAt = now
		user.DepositNonce = nonce

		protocol.DepositNonce = nonce
		protocol.PendingFiat = pendingFiat
		protocol.UpdatedAt = now

		if err := tx.SavePending(ctx, pending); err != nil {
			return nil, err
		}
		if err := tx.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		if err := e.transfer(ctx, domain.AssetFiat, req.User, protocol.FiatVault, req.Amount); err != nil {
			return nil, err
		}

		out = pending
		return []events.Event{events.New(events.TypeDepositInitiated, now, events.DepositInitiated{
			User:       req.User,
			Nonce:      nonce,
			FiatAmount: req.Amount,
			MinOutput:  req.MinOutput,
			Tier:       adm.tier,
		})}, nil
	})
	return out, err
}

// DepositStable moves the reference asset into a pool and issues shares at the pool's NAV.
func (e *Engine) DepositStable(ctx context.Context, req StableDeposit) (StableResult, error) {
	var out StableResult
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		adm, err := e.admit(ctx, tx, req.User, req.Amount, now)
		if err != nil {
			return nil, err
		}
		protocol, user := adm.protocol, adm.user

		window, err := checkWindow(user.WindowStable, req.Amount, tier.MonthlyStableLimit(adm.tier))
		if err != nil {
			return nil, err
		}

		pool, err := loadPool(ctx, tx, req.PoolID)
		if err != nil {
			return nil, err
		}
		if !pool.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrPoolNotActive, pool.ID)
		}
		if req.Amount < pool.MinDeposit {
			return nil, fmt.Errorf("%w: %d < %d", domain.ErrBelowMinimum, req.Amount, pool.MinDeposit)
		}
		if !tier.Allows(adm.tier, pool.Type) {
			return nil, fmt.Errorf("%w: tier %d, pool type %s", domain.ErrPoolTypeNotAllowed, adm.tier, pool.Type)
		}
		if err := pool.CheckCapacity(req.Amount); err != nil {
			return nil, err
		}

		shares, err := domain.SharesFor(req.Amount, pool.NAVPerShare)
		if err != nil {
			return nil, err
		}
		if err := pool.Credit(req.Amount, shares); err != nil {
			return nil, err
		}
		if err := user.Credit(req.Amount, shares); err != nil {
			return nil, err
		}
		count, err := incr32(user.DepositCount)
		if err != nil {
			return nil, err
		}
		totalDeposits, err := domain.CheckedAdd(protocol.TotalDeposits, req.Amount)
		if err != nil {
			return nil, err
		}

		user.WindowStable = window
		user.DepositCount = count
		user.LastDepositAt = now
		protocol.TotalDeposits = totalDeposits
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
		if err := e.transfer(ctx, domain.AssetStable, req.User, pool.DepositVault, req.Amount); err != nil {
			return nil, err
		}

		out = StableResult{Shares: shares, NAV: pool.NAVPerShare}
		return []events.Event{events.New(events.TypeStableDeposited, now, events.StableDeposited{
			User:   req.User,
			PoolID: pool.ID,
			Amount: req.Amount,
			Shares: shares,
			NAV:    pool.NAVPerShare,
		})}, nil
	})
	return out, err
}
