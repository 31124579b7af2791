// Package export writes the conversion ledger and pool table to spreadsheets.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/exodusfi/exodus/internal/domain"
)

// Sheet names written by every SheetWriter.
const (
	SheetConversions = "CONVERSIONS"
	SheetPools       = "POOLS"
)

// exportLimit bounds how many conversion records one export reads.
const exportLimit = 100_000

// Source provides the records to export.
type Source interface {
	ListRecords(ctx context.Context, user string, limit int) ([]domain.ConversionRecord, error)
	ListPools(ctx context.Context) ([]domain.YieldPool, error)
}

// ConversionRow is one settled conversion in display units.
type ConversionRow struct {
	Timestamp time.Time
	User      string
	Nonce     uint64
	PoolID    string
	PoolName  string
	Fiat      decimal.Decimal
	Rate      decimal.Decimal
	Fee       decimal.Decimal
	Output    decimal.Decimal
}

// PoolRow is one pool in display units.
type PoolRow struct {
	ID             string
	Name           string
	Type           domain.PoolType
	Active         bool
	NAVPerShare    decimal.Decimal
	APY            decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalShares    decimal.Decimal
	LastNAVUpdate  time.Time
}

// Workbook is the full export payload.
type Workbook struct {
	Conversions []ConversionRow
	Pools       []PoolRow
}

// SheetWriter writes a workbook to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, wb Workbook) error
}

// Service loads ledger data and delegates writing to a SheetWriter.
type Service struct {
	source Source
	writer SheetWriter
}

// NewService creates a new export Service.
func NewService(source Source, writer SheetWriter) *Service {
	return &Service{source: source, writer: writer}
}

// Export builds the workbook and writes it. Implements worker.AfterSnapshotHook.
func (s *Service) Export(ctx context.Context) error {
	wb, err := s.Build(ctx)
	if err != nil {
		return err
	}
	return s.writer.Write(ctx, wb)
}

// Build loads records and pools and converts them into rows.
func (s *Service) Build(ctx context.Context) (Workbook, error) {
	records, err := s.source.ListRecords(ctx, "", exportLimit)
	if err != nil {
		return Workbook{}, fmt.Errorf("listing conversion records: %w", err)
	}
	pools, err := s.source.ListPools(ctx)
	if err != nil {
		return Workbook{}, fmt.Errorf("listing pools: %w", err)
	}

	byID := lo.KeyBy(pools, func(p domain.YieldPool) string { return p.ID })

	return Workbook{
		Conversions: lo.Map(records, func(r domain.ConversionRecord, _ int) ConversionRow {
			return ConversionRow{
				Timestamp: r.Timestamp,
				User:      r.User,
				Nonce:     r.Nonce,
				PoolID:    r.PoolID,
				PoolName:  byID[r.PoolID].Name,
				Fiat:      domain.ToDecimal(r.FiatAmount),
				Rate:      domain.ToDecimal(r.Rate),
				Fee:       domain.ToDecimal(r.Fee),
				Output:    domain.ToDecimal(r.Output),
			}
		}),
		Pools: lo.Map(pools, func(p domain.YieldPool, _ int) PoolRow {
			return PoolRow{
				ID:             p.ID,
				Name:           p.Name,
				Type:           p.Type,
				Active:         p.Active,
				NAVPerShare:    domain.ToDecimal(p.NAVPerShare),
				APY:            decimal.New(int64(p.APYBps), -4),
				TotalDeposited: domain.ToDecimal(p.TotalDeposited),
				TotalShares:    domain.ToDecimal(p.TotalShares),
				LastNAVUpdate:  p.LastNAVUpdate,
			}
		}),
	}, nil
}

// conversionValues renders the CONVERSIONS sheet.
// Columns: Time | User | Nonce | Pool | Pool name | Fiat | Rate | Fee | Output
func conversionValues(rows []ConversionRow) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{"Time", "User", "Nonce", "Pool", "Pool name", "Fiat", "Rate", "Fee", "Output"})
	for _, r := range rows {
		data = append(data, []any{
			r.Timestamp.UTC().Format(time.RFC3339), r.User, r.Nonce, r.PoolID, r.PoolName,
			toFloat(r.Fiat), toFloat(r.Rate), toFloat(r.Fee), toFloat(r.Output),
		})
	}
	return data
}

// poolValues renders the POOLS sheet.
// Columns: ID | Name | Type | Active | NAV | APY | Deposited | Shares | NAV updated
func poolValues(rows []PoolRow) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{"ID", "Name", "Type", "Active", "NAV", "APY", "Deposited", "Shares", "NAV updated"})
	for _, p := range rows {
		updated := ""
		if !p.LastNAVUpdate.IsZero() {
			updated = p.LastNAVUpdate.UTC().Format(time.RFC3339)
		}
		data = append(data, []any{
			p.ID, p.Name, string(p.Type), p.Active,
			toFloat(p.NAVPerShare), toFloat(p.APY), toFloat(p.TotalDeposited), toFloat(p.TotalShares), updated,
		})
	}
	return data
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
