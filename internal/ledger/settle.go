package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/exodusfi/exodus/internal/domain"
	"github.com/exodusfi/exodus/internal/events"
	"github.com/exodusfi/exodus/internal/store"
)

// SettleRequest identifies a pending conversion and the pool receiving its proceeds.
type SettleRequest struct {
	User   string `json:"user"`
	Nonce  uint64 `json:"nonce"`
	PoolID string `json:"poolId"`
}

// Settlement is the outcome of a settled conversion.
type Settlement struct {
	Record domain.ConversionRecord `json:"record"`
	Shares uint64                  `json:"shares"`
}

// Quote is the price math of a settlement.
type Quote struct {
	Gross uint64
	Fee   uint64
	Net   uint64
}

// QuoteConversion converts a fiat amount at rate (fiat per reference unit, scale 1e6)
// and deducts the conversion fee from the gross output.
func QuoteConversion(fiat, rate uint64, feeBps uint16) (Quote, error) {
	if rate == 0 {
		return Quote{}, domain.ErrInvalidPrice
	}
	gross, err := domain.MulDiv(fiat, domain.Scale, rate)
	if err != nil {
		return Quote{}, err
	}
	fee, err := domain.BpsOf(gross, feeBps)
	if err != nil {
		return Quote{}, err
	}
	net, err := domain.CheckedSub(gross, fee)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Gross: gross, Fee: fee, Net: net}, nil
}

// SettleConversion converts a pending fiat deposit at the current oracle price and credits
// shares in the requested pool. Each pending record settles at most once.
func (e *Engine) SettleConversion(ctx context.Context, keeper string, req SettleRequest) (Settlement, error) {
	var out Settlement
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := requireKeeper(protocol, keeper); err != nil {
			return nil, err
		}

		pending, err := loadPending(ctx, tx, req.User, req.Nonce)
		if err != nil {
			return nil, err
		}
		if pending.Status != domain.StatusPending {
			return nil, fmt.Errorf("%w: %s/%d is %s", domain.ErrInvalidState, pending.User, pending.Nonce, pending.Status)
		}
		if pending.Expired(now) {
			return nil, fmt.Errorf("%w: %s/%d expired at %s", domain.ErrDepositExpired, pending.User, pending.Nonce, pending.ExpiresAt)
		}

		pool, err := loadPool(ctx, tx, req.PoolID)
		if err != nil {
			return nil, err
		}
		if !pool.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrPoolNotActive, pool.ID)
		}

		price, err := e.prices.Current(ctx, protocol.Oracle, now)
		if err != nil {
			return nil, err
		}
		q, err := QuoteConversion(pending.FiatAmount, price.Rate, protocol.Fees.ConversionBps)
		if err != nil {
			return nil, err
		}
		if q.Net < pending.MinOutput {
			return nil, fmt.Errorf("%w: net %d < minimum %d", domain.ErrSlippageExceeded, q.Net, pending.MinOutput)
		}

		shares, err := domain.SharesFor(q.Net, pool.NAVPerShare)
		if err != nil {
			return nil, err
		}
		user, err := loadUser(ctx, tx, pending.User)
		if err != nil {
			return nil, err
		}
		if err := user.Credit(q.Net, shares); err != nil {
			return nil, err
		}
		if err := pool.Credit(q.Net, shares); err != nil {
			return nil, err
		}
		if err := e.updateAvgRate(&user, price.Rate, pending.FiatAmount); err != nil {
			return nil, err
		}
		totalDeposits, err := domain.CheckedAdd(protocol.TotalDeposits, q.Net)
		if err != nil {
			return nil, err
		}
		if err := pending.MarkConverted(price.Rate, q.Net, q.Fee, pool.ID, now); err != nil {
			return nil, err
		}

		protocol.TotalDeposits = totalDeposits
		protocol.PendingFiat = domain.SaturatingSub(protocol.PendingFiat, pending.FiatAmount)
		protocol.UpdatedAt = now

		rec := domain.ConversionRecord{
			User:       pending.User,
			Nonce:      pending.Nonce,
			FiatAmount: pending.FiatAmount,
			Output:     q.Net,
			Rate:       price.Rate,
			Fee:        q.Fee,
			Direction:  domain.FiatToStable,
			PoolID:     pool.ID,
			Timestamp:  now,
		}

		if err := tx.SavePending(ctx, pending); err != nil {
			return nil, err
		}
		if err := tx.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		if err := tx.SavePool(ctx, pool); err != nil {
			return nil, err
		}
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		if err := tx.AppendRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("appending conversion record: %w", err)
		}
		if err := e.transfer(ctx, domain.AssetStable, protocol.StableVault, pool.DepositVault, q.Net); err != nil {
			return nil, err
		}

		out = Settlement{Record: rec, Shares: shares}
		return []events.Event{
			events.New(events.TypeConversionExecuted, now, events.ConversionExecuted{
				User:       rec.User,
				Nonce:      rec.Nonce,
				PoolID:     pool.ID,
				FiatAmount: rec.FiatAmount,
				Output:     rec.Output,
				Fee:        rec.Fee,
				Rate:       rec.Rate,
				Shares:     shares,
				Keeper:     keeper,
			}),
			events.New(events.TypeConversionRecordCreated, now, events.ConversionRecordCreated{Record: rec}),
		}, nil
	})
	return out, err
}

func (e *Engine) updateAvgRate(user *domain.UserLedger, rate, fiat uint64) error {
	converted, err := domain.CheckedAdd(user.ConvertedFiat, fiat)
	if err != nil {
		return err
	}
	switch e.rateMode {
	case RateWeighted:
		avg, err := domain.WeightedAverage(user.AvgRate, user.ConvertedFiat, rate, fiat)
		if err != nil {
			return err
		}
		user.AvgRate = avg
	default:
		user.AvgRate = rate
	}
	user.ConvertedFiat = converted
	return nil
}

// CancelConversion lets the owner of a pending conversion close it and recover the fiat.
func (e *Engine) CancelConversion(ctx context.Context, user string, nonce uint64) (domain.PendingConversion, error) {
	return e.closePending(ctx, user, nonce, nil, func(p *domain.PendingConversion, now time.Time) (events.Event, error) {
		if err := p.MarkCancelled(now); err != nil {
			return events.Event{}, err
		}
		return events.New(events.TypeConversionCancelled, now, events.ConversionCancelled{
			User:       p.User,
			Nonce:      p.Nonce,
			FiatAmount: p.FiatAmount,
		}), nil
	})
}

// ExpireConversion closes a pending conversion whose expiry has passed and refunds the fiat.
func (e *Engine) ExpireConversion(ctx context.Context, keeper, user string, nonce uint64) (domain.PendingConversion, error) {
	authorize := func(protocol domain.ProtocolLedger) error {
		return requireKeeper(protocol, keeper)
	}
	return e.closePending(ctx, user, nonce, authorize, func(p *domain.PendingConversion, now time.Time) (events.Event, error) {
		if p.Status == domain.StatusPending && !p.Expired(now) {
			return events.Event{}, fmt.Errorf("%w: %s/%d expires at %s", domain.ErrNotExpired, p.User, p.Nonce, p.ExpiresAt)
		}
		if err := p.MarkExpired(now); err != nil {
			return events.Event{}, err
		}
		return events.New(events.TypeConversionExpired, now, events.ConversionExpired{
			User:       p.User,
			Nonce:      p.Nonce,
			FiatAmount: p.FiatAmount,
			Keeper:     keeper,
		}), nil
	})
}

// closePending moves a pending record to a terminal state through mark and refunds its fiat
// from the fiat vault to the user. A nil authorize admits any caller.
func (e *Engine) closePending(ctx context.Context, user string, nonce uint64,
	authorize func(domain.ProtocolLedger) error,
	mark func(*domain.PendingConversion, time.Time) (events.Event, error),
) (domain.PendingConversion, error) {
	var out domain.PendingConversion
	err := e.unit(ctx, func(tx store.Tx, now time.Time) ([]events.Event, error) {
		protocol, err := loadProtocol(ctx, tx)
		if err != nil {
			return nil, err
		}
		if authorize != nil {
			if err := authorize(protocol); err != nil {
				return nil, err
			}
		}
		pending, err := loadPending(ctx, tx, user, nonce)
		if err != nil {
			return nil, err
		}
		ev, err := mark(&pending, now)
		if err != nil {
			return nil, err
		}
		owner, err := loadUser(ctx, tx, pending.User)
		if err != nil {
			return nil, err
		}

		// The refund leaves the rolling window and deposit count alone.
		owner.TotalFiat = domain.SaturatingSub(owner.TotalFiat, pending.FiatAmount)
		protocol.PendingFiat = domain.SaturatingSub(protocol.PendingFiat, pending.FiatAmount)
		protocol.UpdatedAt = now

		if err := tx.SavePending(ctx, pending); err != nil {
			return nil, err
		}
		if err := tx.SaveUser(ctx, owner); err != nil {
			return nil, err
		}
		if err := tx.SaveProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		if err := e.transfer(ctx, domain.AssetFiat, protocol.FiatVault, pending.User, pending.FiatAmount); err != nil {
			return nil, err
		}

		out = pending
		return []events.Event{ev}, nil
	})
	return out, err
}
