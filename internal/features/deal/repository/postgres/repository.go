package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"adboard-backend/internal/features/deal/models"
	"adboard-backend/internal/features/deal/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.DealRepository {
	return &postgresRepository{db: db}
}

const dealColumns = `id, ref, advertiser_id, owner_id, channel_id, ad_format,
	amount_nano, duration_hours, permanent, scheduled_at, status, brief,
	creative_ref, revision_count, submission_count, escrow_held,
	refund_address, payout_address, created_at, updated_at`

func scanDeal(row interface{ Scan(...interface{}) error }) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(
		&d.ID, &d.Ref, &d.AdvertiserID, &d.OwnerID, &d.ChannelID, &d.AdFormat,
		&d.AmountNano, &d.DurationHours, &d.Permanent, &d.ScheduledAt, &d.Status, &d.Brief,
		&d.CreativeRef, &d.RevisionCount, &d.SubmissionCount, &d.EscrowHeld,
		&d.RefundAddress, &d.PayoutAddress, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrDealNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *postgresRepository) Create(ctx context.Context, deal *models.Deal) error {
	now := time.Now().UTC()
	deal.CreatedAt = now
	deal.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deals (id, ref, advertiser_id, owner_id, channel_id, ad_format,
			amount_nano, duration_hours, permanent, scheduled_at, status, brief,
			creative_ref, revision_count, submission_count, escrow_held,
			refund_address, payout_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		deal.ID, deal.Ref, deal.AdvertiserID, deal.OwnerID, deal.ChannelID, deal.AdFormat,
		deal.AmountNano, deal.DurationHours, deal.Permanent, deal.ScheduledAt, deal.Status, deal.Brief,
		deal.CreativeRef, deal.RevisionCount, deal.SubmissionCount, deal.EscrowHeld,
		deal.RefundAddress, deal.PayoutAddress, deal.CreatedAt, deal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = $1`, id)
	return scanDeal(row)
}

func (r *postgresRepository) GetByRef(ctx context.Context, ref string) (*models.Deal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE ref = $1`, ref)
	return scanDeal(row)
}

func (r *postgresRepository) UpdateStatusAtomic(ctx context.Context, upd models.DealStatusUpdate) error {
	sets := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{upd.NewStatus, time.Now().UTC()}
	n := 3

	add := func(expr string, value interface{}) {
		sets = append(sets, fmt.Sprintf(expr, n))
		args = append(args, value)
		n++
	}

	if upd.SetCreativeRef != nil {
		add("creative_ref = $%d", *upd.SetCreativeRef)
	}
	if upd.SetScheduledAt != nil {
		add("scheduled_at = $%d", *upd.SetScheduledAt)
	}
	if upd.SetEscrowHeld != nil {
		add("escrow_held = $%d", *upd.SetEscrowHeld)
	}
	if upd.IncRevision {
		sets = append(sets, "revision_count = revision_count + 1")
	}
	if upd.IncSubmission {
		sets = append(sets, "submission_count = submission_count + 1")
	}

	query := fmt.Sprintf(
		`UPDATE deals SET %s WHERE id = $%d AND status = $%d`,
		strings.Join(sets, ", "), n, n+1)
	args = append(args, upd.DealID, upd.OldStatus)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update deal status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the deal is gone or another writer advanced it first.
		if _, err := r.GetByID(ctx, upd.DealID); err != nil {
			return err
		}
		return repository.ErrStatusConflict
	}
	return nil
}

func (r *postgresRepository) AppendTimeline(ctx context.Context, rec *models.TimelineRecord) error {
	rec.CreatedAt = time.Now().UTC()
	return r.db.QueryRowContext(ctx, `
		INSERT INTO deal_timeline (deal_id, actor_id, from_status, to_status, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		rec.DealID, rec.ActorID, rec.FromStatus, rec.ToStatus, rec.Reason, rec.CreatedAt,
	).Scan(&rec.ID)
}

func (r *postgresRepository) ListTimeline(ctx context.Context, dealID uuid.UUID) ([]models.TimelineRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, deal_id, actor_id, from_status, to_status, reason, created_at
		FROM deal_timeline WHERE deal_id = $1 ORDER BY id`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TimelineRecord
	for rows.Next() {
		var rec models.TimelineRecord
		if err := rows.Scan(&rec.ID, &rec.DealID, &rec.ActorID, &rec.FromStatus,
			&rec.ToStatus, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *postgresRepository) ListActiveChannelIDs(ctx context.Context) ([]int64, error) {
	terminal := []string{
		models.DealStatusCompleted, models.DealStatusRefunded,
		models.DealStatusCancelled, models.DealStatusExpired,
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT channel_id FROM deals WHERE status <> ALL($1)`,
		pq.Array(terminal))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresRepository) CreatePost(ctx context.Context, post *models.PublishedPost) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO published_posts (id, deal_id, channel_id, external_message_id,
			status, pinned, published_at, last_verified_at, verification_count, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		post.ID, post.DealID, post.ChannelID, post.ExternalMessageID,
		post.Status, post.Pinned, post.PublishedAt, post.LastVerifiedAt,
		post.VerificationCount, post.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert published post: %w", err)
	}
	return nil
}

const postColumns = `id, deal_id, channel_id, external_message_id, status, pinned,
	published_at, last_verified_at, verification_count, deleted_at`

func scanPost(row interface{ Scan(...interface{}) error }) (*models.PublishedPost, error) {
	var p models.PublishedPost
	err := row.Scan(&p.ID, &p.DealID, &p.ChannelID, &p.ExternalMessageID,
		&p.Status, &p.Pinned, &p.PublishedAt, &p.LastVerifiedAt,
		&p.VerificationCount, &p.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepository) GetPost(ctx context.Context, id uuid.UUID) (*models.PublishedPost, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM published_posts WHERE id = $1`, id)
	return scanPost(row)
}

func (r *postgresRepository) GetActivePostByDeal(ctx context.Context, dealID uuid.UUID) (*models.PublishedPost, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM published_posts
		 WHERE deal_id = $1 AND status <> $2
		 ORDER BY published_at DESC NULLS LAST LIMIT 1`,
		dealID, models.PostStatusDeleted)
	return scanPost(row)
}

func (r *postgresRepository) MarkPostPublished(ctx context.Context, postID uuid.UUID, externalMessageID int64, pinned bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE published_posts
		SET status = $1, external_message_id = $2, pinned = $3, published_at = $4
		WHERE id = $5 AND status = $6`,
		models.PostStatusPublished, externalMessageID, pinned, time.Now().UTC(),
		postID, models.PostStatusScheduled)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrPostNotFound
	}
	return nil
}

func (r *postgresRepository) RecordVerification(ctx context.Context, postID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE published_posts
		SET verification_count = verification_count + 1, last_verified_at = $1
		WHERE id = $2`,
		time.Now().UTC(), postID)
	return err
}

func (r *postgresRepository) MarkPostDeleted(ctx context.Context, postID uuid.UUID) error {
	// No status guard: repeated deletion is a success, not an error.
	_, err := r.db.ExecContext(ctx, `
		UPDATE published_posts
		SET status = $1, deleted_at = COALESCE(deleted_at, $2)
		WHERE id = $3`,
		models.PostStatusDeleted, time.Now().UTC(), postID)
	return err
}
