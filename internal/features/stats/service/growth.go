package service

import (
	"time"

	"adboard-backend/internal/features/stats/models"
)

// Growth horizons for the channel summary.
const (
	Horizon24h = 24 * time.Hour
	Horizon7d  = 7 * 24 * time.Hour
	Horizon30d = 30 * 24 * time.Hour
)

// GrowthOver computes subscriber growth over a horizon from raw snapshots.
// The baseline is the newest snapshot captured at or before now minus the
// horizon; growth is the newest count minus the baseline count. Without a
// baseline (channel tracked for less than the horizon) growth is 0, never an
// extrapolation.
//
// snapshots may be in any order; empty input yields 0.
func GrowthOver(snapshots []models.ChannelSnapshot, now time.Time, horizon time.Duration) int64 {
	latest, ok := nearestAtOrBefore(snapshots, now)
	if !ok {
		return 0
	}
	baseline, ok := nearestAtOrBefore(snapshots, now.Add(-horizon))
	if !ok {
		return 0
	}
	return latest.Subscribers - baseline.Subscribers
}

func nearestAtOrBefore(snapshots []models.ChannelSnapshot, at time.Time) (models.ChannelSnapshot, bool) {
	var best models.ChannelSnapshot
	found := false
	for _, s := range snapshots {
		if s.CapturedAt.After(at) {
			continue
		}
		if !found || s.CapturedAt.After(best.CapturedAt) {
			best = s
			found = true
		}
	}
	return best, found
}

// summarize derives the full summary from snapshots. The latest snapshot
// supplies the headline count and title.
func summarize(channelID int64, snapshots []models.ChannelSnapshot, now time.Time) *models.ChannelStats {
	stats := &models.ChannelStats{ChannelID: channelID}
	latest, ok := nearestAtOrBefore(snapshots, now)
	if !ok {
		return stats
	}
	stats.Title = latest.Title
	stats.Subscribers = latest.Subscribers
	stats.AvgViews = latest.AvgViews
	stats.EngagementRate = latest.EngagementRate
	stats.Growth24h = GrowthOver(snapshots, now, Horizon24h)
	stats.Growth7d = GrowthOver(snapshots, now, Horizon7d)
	stats.Growth30d = GrowthOver(snapshots, now, Horizon30d)
	return stats
}
