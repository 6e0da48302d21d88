package repository

import (
	"context"
	"errors"
	"time"

	"adboard-backend/internal/features/stats/models"
)

var ErrStatsNotFound = errors.New("channel stats not found")

// StatsRepository persists subscriber snapshots and the derived summary.
// Snapshots are append-only.
type StatsRepository interface {
	InsertSnapshot(ctx context.Context, snap *models.ChannelSnapshot) error
	// ListSnapshotsSince returns snapshots captured at or after since,
	// newest first.
	ListSnapshotsSince(ctx context.Context, channelID int64, since time.Time) ([]models.ChannelSnapshot, error)
	UpsertSummary(ctx context.Context, stats *models.ChannelStats) error
	GetSummary(ctx context.Context, channelID int64) (*models.ChannelStats, error)
}
