package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"adboard-backend/internal/common/cache"
	"adboard-backend/internal/common/config"
	apperrors "adboard-backend/internal/common/errors"
	"adboard-backend/internal/common/logger"
	"adboard-backend/internal/features/stats/models"
	"adboard-backend/internal/features/stats/repository"
)

// Snapshots older than the longest horizon plus a day never influence a
// summary, so reads stop there.
const snapshotWindow = Horizon30d + 24*time.Hour

func statsCacheKey(channelID int64) string {
	return fmt.Sprintf("stats:channel:%d", channelID)
}

type Service struct {
	repo  repository.StatsRepository
	cache *cache.CacheService
	cfg   *config.Config
	log   zerolog.Logger
}

func NewService(repo repository.StatsRepository, cacheService *cache.CacheService, cfg *config.Config) *Service {
	return &Service{
		repo:  repo,
		cache: cacheService,
		cfg:   cfg,
		log:   logger.With("stats-service"),
	}
}

// GetChannelStats returns the cached summary for a channel.
func (s *Service) GetChannelStats(ctx context.Context, channelID int64) (*models.ChannelStats, error) {
	var stats models.ChannelStats
	err := s.cache.GetOrSet(ctx, statsCacheKey(channelID), &stats, s.cfg.Stats.CacheTTL, func() (interface{}, error) {
		return s.repo.GetSummary(ctx, channelID)
	})
	if errors.Is(err, repository.ErrStatsNotFound) {
		return nil, apperrors.NewNotFoundError("channel stats", fmt.Sprintf("%d", channelID))
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetChannelHistory returns the raw snapshots behind the summary, newest
// first.
func (s *Service) GetChannelHistory(ctx context.Context, channelID int64) ([]models.ChannelSnapshot, error) {
	return s.repo.ListSnapshotsSince(ctx, channelID, time.Now().Add(-snapshotWindow))
}

// SubscriberCount implements the deal engine's trust signal. ok is false
// until a snapshot has been collected for the channel.
func (s *Service) SubscriberCount(ctx context.Context, channelID int64) (int64, bool, error) {
	stats, err := s.GetChannelStats(ctx, channelID)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return stats.Subscribers, true, nil
}

// RecordSnapshot appends a snapshot, recomputes the summary and invalidates
// the cached copy. Used by the collector sweep.
func (s *Service) RecordSnapshot(ctx context.Context, snap *models.ChannelSnapshot) error {
	if err := s.repo.InsertSnapshot(ctx, snap); err != nil {
		return err
	}

	now := time.Now()
	snapshots, err := s.repo.ListSnapshotsSince(ctx, snap.ChannelID, now.Add(-snapshotWindow))
	if err != nil {
		return err
	}
	if err := s.repo.UpsertSummary(ctx, summarize(snap.ChannelID, snapshots, now)); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, statsCacheKey(snap.ChannelID)); err != nil {
		s.log.Warn().Err(err).Int64("channel_id", snap.ChannelID).Msg("failed to invalidate stats cache")
	}
	return nil
}
