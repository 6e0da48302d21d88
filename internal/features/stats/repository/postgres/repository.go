package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"adboard-backend/internal/features/stats/models"
	"adboard-backend/internal/features/stats/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.StatsRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) InsertSnapshot(ctx context.Context, snap *models.ChannelSnapshot) error {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO channel_snapshots (channel_id, subscribers, title, avg_views, engagement_rate, captured_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		snap.ChannelID, snap.Subscribers, snap.Title, snap.AvgViews, snap.EngagementRate, snap.CapturedAt,
	).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("insert channel snapshot: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListSnapshotsSince(ctx context.Context, channelID int64, since time.Time) ([]models.ChannelSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, channel_id, subscribers, title, avg_views, engagement_rate, captured_at
		FROM channel_snapshots
		WHERE channel_id = $1 AND captured_at >= $2
		ORDER BY captured_at DESC`,
		channelID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.ChannelSnapshot
	for rows.Next() {
		var s models.ChannelSnapshot
		if err := rows.Scan(&s.ID, &s.ChannelID, &s.Subscribers, &s.Title, &s.AvgViews, &s.EngagementRate, &s.CapturedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (r *postgresRepository) UpsertSummary(ctx context.Context, stats *models.ChannelStats) error {
	stats.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_stats (channel_id, title, subscribers, avg_views, engagement_rate, growth_24h, growth_7d, growth_30d, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (channel_id) DO UPDATE SET
			title = EXCLUDED.title,
			subscribers = EXCLUDED.subscribers,
			avg_views = EXCLUDED.avg_views,
			engagement_rate = EXCLUDED.engagement_rate,
			growth_24h = EXCLUDED.growth_24h,
			growth_7d = EXCLUDED.growth_7d,
			growth_30d = EXCLUDED.growth_30d,
			updated_at = EXCLUDED.updated_at`,
		stats.ChannelID, stats.Title, stats.Subscribers, stats.AvgViews, stats.EngagementRate,
		stats.Growth24h, stats.Growth7d, stats.Growth30d, stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert channel stats: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetSummary(ctx context.Context, channelID int64) (*models.ChannelStats, error) {
	var s models.ChannelStats
	err := r.db.QueryRowContext(ctx, `
		SELECT channel_id, title, subscribers, avg_views, engagement_rate, growth_24h, growth_7d, growth_30d, updated_at
		FROM channel_stats WHERE channel_id = $1`,
		channelID,
	).Scan(&s.ChannelID, &s.Title, &s.Subscribers, &s.AvgViews, &s.EngagementRate, &s.Growth24h, &s.Growth7d, &s.Growth30d, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrStatsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
