package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"adboard-backend/internal/features/deal/models"
)

var (
	ErrDealNotFound = errors.New("deal not found")
	ErrPostNotFound = errors.New("published post not found")
	// ErrStatusConflict means the deal's current status no longer matches the
	// expected one. Racing transitions resolve through this error: exactly one
	// writer wins, the other observes the conflict and no-ops.
	ErrStatusConflict = errors.New("deal status conflict")
)

// DealRepository persists deals, their published posts and the audit timeline.
type DealRepository interface {
	Create(ctx context.Context, deal *models.Deal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	GetByRef(ctx context.Context, ref string) (*models.Deal, error)
	// UpdateStatusAtomic applies a transition only if the deal still sits in
	// OldStatus. Returns ErrStatusConflict otherwise.
	UpdateStatusAtomic(ctx context.Context, upd models.DealStatusUpdate) error

	AppendTimeline(ctx context.Context, rec *models.TimelineRecord) error
	ListTimeline(ctx context.Context, dealID uuid.UUID) ([]models.TimelineRecord, error)

	// ListActiveChannelIDs returns the distinct channels of all non-terminal
	// deals. Used by the stats collection sweep.
	ListActiveChannelIDs(ctx context.Context) ([]int64, error)

	CreatePost(ctx context.Context, post *models.PublishedPost) error
	GetPost(ctx context.Context, id uuid.UUID) (*models.PublishedPost, error)
	// GetActivePostByDeal returns the deal's single non-deleted post.
	GetActivePostByDeal(ctx context.Context, dealID uuid.UUID) (*models.PublishedPost, error)
	MarkPostPublished(ctx context.Context, postID uuid.UUID, externalMessageID int64, pinned bool) error
	RecordVerification(ctx context.Context, postID uuid.UUID) error
	// MarkPostDeleted is idempotent: deleting an already deleted post is a
	// no-op success.
	MarkPostDeleted(ctx context.Context, postID uuid.UUID) error
}
