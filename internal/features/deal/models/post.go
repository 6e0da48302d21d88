package models

import (
	"time"

	"github.com/google/uuid"
)

// PublishedPost statuses.
const (
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusDeleted   = "deleted"
)

// PublishedPost is one physical placement instance tied to a deal. The
// external message id is set only once the post is actually on the channel;
// the verification counter only ever grows.
type PublishedPost struct {
	ID                uuid.UUID  `json:"id"`
	DealID            uuid.UUID  `json:"deal_id"`
	ChannelID         int64      `json:"channel_id"`
	ExternalMessageID *int64     `json:"external_message_id,omitempty"`
	Status            string     `json:"status"`
	Pinned            bool       `json:"pinned"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	LastVerifiedAt    *time.Time `json:"last_verified_at,omitempty"`
	VerificationCount int        `json:"verification_count"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}
