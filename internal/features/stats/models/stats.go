package models

import "time"

// ChannelSnapshot is one append-only subscriber sample. Snapshots are never
// updated or deleted; growth is always derived from them.
type ChannelSnapshot struct {
	ID          int64  `json:"id"`
	ChannelID   int64  `json:"channel_id"`
	Subscribers int64  `json:"subscribers"`
	Title       string `json:"title"`
	// View metrics stay zero while the only source is the Bot API, which does
	// not expose them.
	AvgViews       int64     `json:"avg_views"`
	EngagementRate float64   `json:"engagement_rate"`
	CapturedAt     time.Time `json:"captured_at"`
}

// ChannelStats is the derived summary served to clients and consulted by the
// deal engine as a trust signal.
type ChannelStats struct {
	ChannelID      int64     `json:"channel_id"`
	Title          string    `json:"title"`
	Subscribers    int64     `json:"subscribers"`
	AvgViews       int64     `json:"avg_views"`
	EngagementRate float64   `json:"engagement_rate"`
	Growth24h      int64     `json:"growth_24h"`
	Growth7d       int64     `json:"growth_7d"`
	Growth30d      int64     `json:"growth_30d"`
	UpdatedAt      time.Time `json:"updated_at"`
}
