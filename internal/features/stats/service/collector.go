package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"adboard-backend/internal/common/config"
	"adboard-backend/internal/common/logger"
	"adboard-backend/internal/features/stats/models"
)

// ChannelSource yields the channels worth polling. Implemented by the deal
// repository: only channels with a non-terminal deal are tracked.
type ChannelSource interface {
	ListActiveChannelIDs(ctx context.Context) ([]int64, error)
}

// ChannelInspector reads channel facts from the messaging platform.
// Implemented by platform/telegram.
type ChannelInspector interface {
	GetChatMemberCount(ctx context.Context, chatID int64) (int64, error)
	GetChatTitle(ctx context.Context, chatID int64) (string, error)
}

// Collector periodically samples subscriber counts for every channel with an
// active deal. Calls to the platform are throttled to the configured rate so
// a large sweep cannot trip rate limits.
type Collector struct {
	stats     *Service
	channels  ChannelSource
	inspector ChannelInspector
	cfg       *config.Config
	log       zerolog.Logger
}

func NewCollector(stats *Service, channels ChannelSource, inspector ChannelInspector, cfg *config.Config) *Collector {
	return &Collector{
		stats:     stats,
		channels:  channels,
		inspector: inspector,
		cfg:       cfg,
		log:       logger.With("stats-collector"),
	}
}

// Run sweeps immediately, then on every poll interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.sweep(ctx)

	ticker := time.NewTicker(c.cfg.Stats.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Collector) sweep(ctx context.Context) {
	ids, err := c.channels.ListActiveChannelIDs(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list active channels")
		return
	}
	if len(ids) == 0 {
		return
	}

	cps := c.cfg.Stats.CallsPerSecond
	if cps <= 0 {
		cps = 1
	}
	limiter := time.NewTicker(time.Second / time.Duration(cps))
	defer limiter.Stop()

	collected := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		case <-limiter.C:
		}
		if err := c.collectOne(ctx, id); err != nil {
			// One bad channel must not abort the sweep.
			c.log.Warn().Err(err).Int64("channel_id", id).Msg("snapshot collection failed")
			continue
		}
		collected++
	}

	c.log.Info().Int("channels", len(ids)).Int("collected", collected).Msg("stats sweep finished")
}

// RefreshChannel takes a fresh snapshot for one channel outside the sweep
// cycle. Used by the on-demand refresh endpoint.
func (c *Collector) RefreshChannel(ctx context.Context, channelID int64) error {
	return c.collectOne(ctx, channelID)
}

func (c *Collector) collectOne(ctx context.Context, channelID int64) error {
	count, err := c.inspector.GetChatMemberCount(ctx, channelID)
	if err != nil {
		return err
	}
	title, err := c.inspector.GetChatTitle(ctx, channelID)
	if err != nil {
		// The count alone still makes a valid snapshot.
		c.log.Debug().Err(err).Int64("channel_id", channelID).Msg("failed to fetch chat title")
	}

	return c.stats.RecordSnapshot(ctx, &models.ChannelSnapshot{
		ChannelID:   channelID,
		Subscribers: count,
		Title:       title,
		CapturedAt:  time.Now().UTC(),
	})
}
