package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/exodusfi/exodus/internal/metrics"
)

// StatsSource computes current protocol statistics.
type StatsSource interface {
	Stats(ctx context.Context) (metrics.Stats, error)
}

// Service manages snapshot generation and retrieval.
type Service struct {
	stats StatsSource
	repo  Repository
}

// NewService creates a new snapshot Service.
func NewService(stats StatsSource, repo Repository) *Service {
	return &Service{stats: stats, repo: repo}
}

// Generate computes statistics and stores them as the snapshot for date.
func (s *Service) Generate(ctx context.Context, date time.Time) (metrics.Stats, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return metrics.Stats{}, fmt.Errorf("computing stats: %w", err)
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return metrics.Stats{}, fmt.Errorf("marshaling stats: %w", err)
	}

	if err := s.repo.Save(ctx, date, data); err != nil {
		return metrics.Stats{}, fmt.Errorf("saving snapshot: %w", err)
	}

	slog.Info("snapshot saved", "date", date.Format(time.DateOnly), "pools", len(stats.Pools))
	return stats, nil
}

// GetLatest retrieves the most recent snapshot.
func (s *Service) GetLatest(ctx context.Context) (*Snapshot, error) {
	return s.repo.GetLatest(ctx)
}

// GetByDate retrieves a snapshot for a specific date.
func (s *Service) GetByDate(ctx context.Context, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, date)
}

// List retrieves recent snapshots.
func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, limit)
}
