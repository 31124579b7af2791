// Package metrics computes protocol statistics for display and snapshots.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/exodusfi/exodus/internal/domain"
)

// Reader provides the records statistics are computed from.
type Reader interface {
	GetProtocol(ctx context.Context) (domain.ProtocolLedger, error)
	ListPools(ctx context.Context) ([]domain.YieldPool, error)
	CountPending(ctx context.Context, status domain.ConversionStatus) (int, error)
}

// PoolStats describes one pool.
type PoolStats struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           domain.PoolType `json:"type"`
	Active         bool            `json:"active"`
	NAVPerShare    decimal.Decimal `json:"navPerShare"`
	APY            decimal.Decimal `json:"apy"`
	TotalShares    decimal.Decimal `json:"totalShares"`
	TotalDeposited decimal.Decimal `json:"totalDeposited"`
	TVL            decimal.Decimal `json:"tvl"`
	LastNAVUpdate  time.Time       `json:"lastNavUpdate"`
}

// Stats is a point-in-time view of the protocol.
type Stats struct {
	Active        bool                                `json:"active"`
	Pools         []PoolStats                         `json:"pools"`
	TVLByType     map[domain.PoolType]decimal.Decimal `json:"tvlByType"`
	TotalTVL      decimal.Decimal                     `json:"totalTvl"`
	TotalDeposits decimal.Decimal                     `json:"totalDeposits"`
	TotalYield    decimal.Decimal                     `json:"totalYield"`
	PendingFiat   decimal.Decimal                     `json:"pendingFiat"`
	PendingQueue  int                                 `json:"pendingQueue"`
	Fees          domain.Fees                         `json:"fees"`
	GeneratedAt   time.Time                           `json:"generatedAt"`
}

// Service computes Stats from a Reader.
type Service struct {
	reader Reader
	now    func() time.Time
}

// NewService creates a new metrics Service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader, now: time.Now}
}

// Stats computes current protocol statistics. A pool's TVL is total_shares * nav / 1e6.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	protocol, err := s.reader.GetProtocol(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("getting protocol: %w", err)
	}
	pools, err := s.reader.ListPools(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("listing pools: %w", err)
	}
	queued, err := s.reader.CountPending(ctx, domain.StatusPending)
	if err != nil {
		return Stats{}, fmt.Errorf("counting pending conversions: %w", err)
	}

	poolStats := make([]PoolStats, 0, len(pools))
	for _, p := range pools {
		tvl, err := domain.ValueOf(p.TotalShares, p.NAVPerShare)
		if err != nil {
			return Stats{}, fmt.Errorf("pool %s tvl: %w", p.ID, err)
		}
		poolStats = append(poolStats, PoolStats{
			ID:             p.ID,
			Name:           p.Name,
			Type:           p.Type,
			Active:         p.Active,
			NAVPerShare:    domain.ToDecimal(p.NAVPerShare),
			APY:            decimal.New(int64(p.APYBps), -4),
			TotalShares:    domain.ToDecimal(p.TotalShares),
			TotalDeposited: domain.ToDecimal(p.TotalDeposited),
			TVL:            domain.ToDecimal(tvl),
			LastNAVUpdate:  p.LastNAVUpdate,
		})
	}

	byType := lo.MapValues(lo.GroupBy(poolStats, func(p PoolStats) domain.PoolType { return p.Type }),
		func(group []PoolStats, _ domain.PoolType) decimal.Decimal { return sumTVL(group) })

	return Stats{
		Active:        protocol.Active,
		Pools:         poolStats,
		TVLByType:     byType,
		TotalTVL:      sumTVL(poolStats),
		TotalDeposits: domain.ToDecimal(protocol.TotalDeposits),
		TotalYield:    domain.ToDecimal(protocol.TotalYield),
		PendingFiat:   domain.ToDecimal(protocol.PendingFiat),
		PendingQueue:  queued,
		Fees:          protocol.Fees,
		GeneratedAt:   s.now().UTC(),
	}, nil
}

func sumTVL(pools []PoolStats) decimal.Decimal {
	return lo.Reduce(pools, func(acc decimal.Decimal, p PoolStats, _ int) decimal.Decimal {
		return acc.Add(p.TVL)
	}, decimal.Zero)
}
