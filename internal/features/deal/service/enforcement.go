package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "adboard-backend/internal/common/errors"
	"adboard-backend/internal/features/deal/models"
	"adboard-backend/internal/features/deal/repository"
	"adboard-backend/internal/platform/telegram"
	"adboard-backend/internal/scheduler"
)

// QueueDeals carries every deadline and post enforcement job.
const QueueDeals = "deals"

// Job types on the deals queue.
const (
	JobTypeExpire   = "deal.expire"
	JobTypePublish  = "post.publish"
	JobTypeVerify   = "post.verify"
	JobTypeWarn     = "post.warn"
	JobTypeDelete   = "post.delete"
	JobTypeComplete = "deal.complete"
)

// Hold before a permanent placement is considered delivered and escrow
// releases. Permanent posts are never deleted.
const permanentHold = 24 * time.Hour

type expirePayload struct {
	DealID         uuid.UUID `json:"deal_id"`
	ExpectedStatus string    `json:"expected_status"`
}

type publishPayload struct {
	DealID uuid.UUID `json:"deal_id"`
}

type postPayload struct {
	DealID uuid.UUID `json:"deal_id"`
	PostID uuid.UUID `json:"post_id"`
}

// JobRegistry is the subset of the scheduler used for handler registration.
type JobRegistry interface {
	Register(queue, jobType string, h scheduler.HandlerFunc)
}

// RegisterJobHandlers binds every deal job handler on the deals queue.
func (s *Service) RegisterJobHandlers(reg JobRegistry) {
	reg.Register(QueueDeals, JobTypeExpire, s.handleExpire)
	reg.Register(QueueDeals, JobTypePublish, s.handlePublish)
	reg.Register(QueueDeals, JobTypeVerify, s.handleVerify)
	reg.Register(QueueDeals, JobTypeWarn, s.handleWarn)
	reg.Register(QueueDeals, JobTypeDelete, s.handleDelete)
	reg.Register(QueueDeals, JobTypeComplete, s.handleComplete)
}

func (s *Service) scheduleExpiry(ctx context.Context, dealID uuid.UUID, expectedStatus string, deadline time.Duration) {
	_, err := s.jobs.Enqueue(ctx, QueueDeals, JobTypeExpire,
		expirePayload{DealID: dealID, ExpectedStatus: expectedStatus},
		scheduler.Options{
			Delay:     deadline,
			DedupeKey: fmt.Sprintf("%s:%s:%s", JobTypeExpire, dealID, expectedStatus),
		})
	if err != nil {
		s.log.Error().Err(err).Str("deal_id", dealID.String()).Msg("failed to schedule expiry job")
	}
}

func (s *Service) schedulePublish(ctx context.Context, deal *models.Deal, at time.Time) {
	_, err := s.jobs.Enqueue(ctx, QueueDeals, JobTypePublish,
		publishPayload{DealID: deal.ID},
		scheduler.Options{
			NotBefore: at,
			DedupeKey: fmt.Sprintf("%s:%s", JobTypePublish, deal.ID),
		})
	if err != nil {
		s.log.Error().Err(err).Str("deal_id", deal.ID.String()).Msg("failed to schedule publish job")
	}
}

// scheduleEnforcement arms the post jobs relative to the actual publish time:
// verification now, the takedown warning at duration minus the warning
// window, deletion at duration. Permanent placements get a completion check
// after a fixed hold instead of a deletion.
func (s *Service) scheduleEnforcement(ctx context.Context, deal *models.Deal, postID uuid.UUID) {
	payload := postPayload{DealID: deal.ID, PostID: postID}

	enqueue := func(jobType string, delay time.Duration, dedupe bool) {
		opts := scheduler.Options{Delay: delay}
		if dedupe {
			opts.DedupeKey = fmt.Sprintf("%s:%s", jobType, deal.ID)
		}
		if _, err := s.jobs.Enqueue(ctx, QueueDeals, jobType, payload, opts); err != nil {
			s.log.Error().Err(err).
				Str("deal_id", deal.ID.String()).
				Str("type", jobType).
				Msg("failed to schedule enforcement job")
		}
	}

	enqueue(JobTypeVerify, 0, false)

	if deal.Permanent {
		enqueue(JobTypeComplete, permanentHold, true)
		return
	}

	duration := time.Duration(deal.DurationHours) * time.Hour
	if warnAt := duration - s.cfg.Deals.WarningWindow; warnAt > 0 {
		enqueue(JobTypeWarn, warnAt, false)
	}
	enqueue(JobTypeDelete, duration, true)
}

// outcomeFor maps collaborator errors onto scheduler outcomes. Transient
// failures retry with backoff; everything unknown retries too, bounded by the
// job's attempt limit.
func outcomeFor(err error) scheduler.Outcome {
	if appErr, ok := apperrors.AsAppError(err); ok {
		if appErr.Code == apperrors.ErrCodeTelegramPermanent || appErr.Code == apperrors.ErrCodeDataInvariant {
			return scheduler.Permanent(err)
		}
	}
	return scheduler.Retry(err)
}

// handleExpire fires when a state deadline lapses. A deal that progressed in
// the meantime no longer matches the expected status and the job no-ops.
func (s *Service) handleExpire(ctx context.Context, job *scheduler.Job) scheduler.Outcome {
	var p expirePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return scheduler.Permanent(err)
	}

	deal, err := s.repo.GetByID(ctx, p.DealID)
	if errors.Is(err, repository.ErrDealNotFound) {
		return scheduler.Permanent(err)
	}
	if err != nil {
		return scheduler.Retry(err)
	}
	if deal.Status != p.ExpectedStatus {
		return scheduler.Success() // deal progressed before the deadline
	}

	// Refund before the CAS: if the refund fails the deal stays put and the
	// job retries. Without escrow there is nothing to return.
	if deal.EscrowHeld {
		if err := s.escrow.Refund(ctx, deal.Ref, deal.RefundAddress, deal.AmountNano); err != nil {
			return scheduler.Retry(err)
		}
	}

	err = s.applyTransition(ctx, deal, p.ExpectedStatus, models.DealStatusExpired,
		SystemActor, "deadline expired", nil)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeInvalidTransition {
			return scheduler.Success() // lost the race to a progressing action
		}
		return scheduler.Retry(err)
	}
	s.emit(ctx, deal, EventDealExpired, SystemActor)

	s.log.Info().Str("deal_id", deal.ID.String()).Str("from", p.ExpectedStatus).Msg("deal expired")
	return scheduler.Success()
}

// handlePublish posts the approved creative at the scheduled time and drives
// the deal to POSTED.
func (s *Service) handlePublish(ctx context.Context, job *scheduler.Job) scheduler.Outcome {
	var p publishPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return scheduler.Permanent(err)
	}

	deal, err := s.repo.GetByID(ctx, p.DealID)
	if errors.Is(err, repository.ErrDealNotFound) {
		return scheduler.Permanent(err)
	}
	if err != nil {
		return scheduler.Retry(err)
	}
	if deal.Status != models.DealStatusScheduled {
		return scheduler.Success() // disputed, cancelled or already posted
	}
	if deal.CreativeRef == nil {
		return scheduler.Permanent(apperrors.NewDataInvariantError("scheduled deal has no creative").
			WithDetail("deal_id", deal.ID.String()))
	}

	post, err := s.repo.GetActivePostByDeal(ctx, p.DealID)
	if err != nil {
		return scheduler.Retry(err)
	}
	if post.Status == models.PostStatusPublished {
		// Crash between publish and CAS on a previous delivery; just finish
		// the transition.
		return s.markPostedOutcome(ctx, deal.ID, *post.ExternalMessageID, post.Pinned)
	}

	messageID, err := s.messenger.Publish(ctx, deal.ChannelID, *deal.CreativeRef)
	if err != nil {
		return outcomeFor(err)
	}
	return s.markPostedOutcome(ctx, deal.ID, messageID, false)
}

// markPostedOutcome folds a MarkPosted result into a job outcome. A guard
// rejection means the deal moved (usually into a dispute) between the status
// check and the CAS; the job no-ops.
func (s *Service) markPostedOutcome(ctx context.Context, dealID uuid.UUID, messageID int64, pinned bool) scheduler.Outcome {
	_, err := s.MarkPosted(ctx, dealID, SystemActor, messageID, pinned)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsGuardViolation() {
			return scheduler.Success()
		}
		return outcomeFor(err)
	}
	return scheduler.Success()
}

// handleVerify confirms the placement still exists on the channel. A missing
// post raises a dispute-eligible signal instead of silently succeeding.
func (s *Service) handleVerify(ctx context.Context, job *scheduler.Job) scheduler.Outcome {
	var p postPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return scheduler.Permanent(err)
	}

	deal, err := s.repo.GetByID(ctx, p.DealID)
	if errors.Is(err, repository.ErrDealNotFound) {
		return scheduler.Permanent(err)
	}
	if err != nil {
		return scheduler.Retry(err)
	}
	if deal.Status != models.DealStatusPosted {
		return scheduler.Success()
	}

	post, err := s.repo.GetPost(ctx, p.PostID)
	if err != nil {
		return scheduler.Retry(err)
	}
	if post.Status != models.PostStatusPublished || post.ExternalMessageID == nil {
		return scheduler.Success()
	}

	// Trust signal: warn when the channel dropped below the configured floor.
	if s.stats != nil && s.cfg.Deals.MinSubscribers > 0 {
		if count, ok, err := s.stats.SubscriberCount(ctx, deal.ChannelID); err == nil && ok && count < s.cfg.Deals.MinSubscribers {
			s.log.Warn().
				Str("deal_id", deal.ID.String()).
				Int64("subscribers", count).
				Int64("min", s.cfg.Deals.MinSubscribers).
				Msg("channel below minimum subscriber count")
			s.notifier.Notify(ctx, deal.AdvertiserID,
				fmt.Sprintf("Deal %s: the channel has dropped below the required subscriber count.", deal.Ref))
		}
	}

	exists, err := s.messenger.MessageExists(ctx, post.ChannelID, *post.ExternalMessageID)
	if err != nil {
		return outcomeFor(err)
	}
	if !exists {
		s.emit(ctx, deal, EventPostMissing, SystemActor)
		s.appendTimeline(ctx, deal.ID, SystemActor, deal.Status, deal.Status, "placement missing during verification")
		s.notifier.Notify(ctx, deal.AdvertiserID,
			fmt.Sprintf("Deal %s: the published post is no longer on the channel. You may open a dispute.", deal.Ref))
		s.notifier.Notify(ctx, deal.OwnerID,
			fmt.Sprintf("Deal %s: the published post was not found during verification.", deal.Ref))
		return scheduler.Success()
	}

	if err := s.repo.RecordVerification(ctx, post.ID); err != nil {
		return scheduler.Retry(err)
	}
	return scheduler.Success()
}

// handleWarn notifies both parties of the imminent takedown. Best effort:
// notification failures never block the deletion job.
func (s *Service) handleWarn(ctx context.Context, job *scheduler.Job) scheduler.Outcome {
	var p postPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return scheduler.Permanent(err)
	}

	deal, err := s.repo.GetByID(ctx, p.DealID)
	if err != nil {
		if errors.Is(err, repository.ErrDealNotFound) {
			return scheduler.Permanent(err)
		}
		return scheduler.Retry(err)
	}
	if deal.Status != models.DealStatusPosted {
		return scheduler.Success()
	}

	remaining := s.cfg.Deals.WarningWindow
	text := fmt.Sprintf("Deal %s: the placement will be removed in %s.", deal.Ref, remaining)
	s.notifier.Notify(ctx, deal.AdvertiserID, text)
	s.notifier.Notify(ctx, deal.OwnerID, text)
	return scheduler.Success()
}

// handleDelete removes the placement once its paid duration elapsed, then
// finishes the deal. An already-deleted message counts as success.
func (s *Service) handleDelete(ctx context.Context, job *scheduler.Job) scheduler.Outcome {
	var p postPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return scheduler.Permanent(err)
	}

	deal, err := s.repo.GetByID(ctx, p.DealID)
	if errors.Is(err, repository.ErrDealNotFound) {
		return scheduler.Permanent(err)
	}
	if err != nil {
		return scheduler.Retry(err)
	}

	switch deal.Status {
	case models.DealStatusPosted:
		// fall through to the takedown below
	case models.DealStatusVerifying, models.DealStatusVerified:
		// Redelivery after a crash mid-completion; just finish.
		if err := s.finishDeal(ctx, deal, SystemActor); err != nil {
			return outcomeFor(err)
		}
		return scheduler.Success()
	default:
		return scheduler.Success() // disputed or already terminal
	}

	post, err := s.repo.GetPost(ctx, p.PostID)
	if err != nil {
		return scheduler.Retry(err)
	}

	if post.Status != models.PostStatusDeleted && post.ExternalMessageID != nil {
		if post.Pinned {
			if err := s.messenger.UnpinMessage(ctx, post.ChannelID, *post.ExternalMessageID); err != nil {
				return outcomeFor(err)
			}
		}
		err := s.messenger.DeleteMessage(ctx, post.ChannelID, *post.ExternalMessageID)
		if err != nil && !errors.Is(err, telegram.ErrMessageNotFound) {
			return outcomeFor(err)
		}
		if err := s.repo.MarkPostDeleted(ctx, post.ID); err != nil {
			return scheduler.Retry(err)
		}
		s.appendTimeline(ctx, deal.ID, SystemActor, deal.Status, deal.Status, "placement removed after paid duration")
		s.emit(ctx, deal, EventPostDurationEnded, SystemActor)
	}

	if err := s.applyTransition(ctx, deal, models.DealStatusPosted, models.DealStatusVerifying,
		SystemActor, "duration elapsed", nil); err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeInvalidTransition {
			return scheduler.Success()
		}
		return scheduler.Retry(err)
	}

	if err := s.finishDeal(ctx, deal, SystemActor); err != nil {
		return outcomeFor(err)
	}
	return scheduler.Success()
}

// handleComplete closes out a permanent placement after the hold, provided
// the post is still up. A missing post leaves the deal in POSTED and signals
// both parties.
func (s *Service) handleComplete(ctx context.Context, job *scheduler.Job) scheduler.Outcome {
	var p postPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return scheduler.Permanent(err)
	}

	deal, err := s.repo.GetByID(ctx, p.DealID)
	if errors.Is(err, repository.ErrDealNotFound) {
		return scheduler.Permanent(err)
	}
	if err != nil {
		return scheduler.Retry(err)
	}

	switch deal.Status {
	case models.DealStatusPosted:
	case models.DealStatusVerifying, models.DealStatusVerified:
		if err := s.finishDeal(ctx, deal, SystemActor); err != nil {
			return outcomeFor(err)
		}
		return scheduler.Success()
	default:
		return scheduler.Success()
	}

	post, err := s.repo.GetPost(ctx, p.PostID)
	if err != nil {
		return scheduler.Retry(err)
	}
	if post.ExternalMessageID == nil {
		return scheduler.Permanent(apperrors.NewDataInvariantError("published post has no message id"))
	}

	exists, err := s.messenger.MessageExists(ctx, post.ChannelID, *post.ExternalMessageID)
	if err != nil {
		return outcomeFor(err)
	}
	if !exists {
		s.emit(ctx, deal, EventPostMissing, SystemActor)
		s.notifier.Notify(ctx, deal.AdvertiserID,
			fmt.Sprintf("Deal %s: the permanent placement disappeared before the hold ended. You may open a dispute.", deal.Ref))
		s.notifier.Notify(ctx, deal.OwnerID,
			fmt.Sprintf("Deal %s: the permanent placement was not found; completion is on hold.", deal.Ref))
		return scheduler.Success()
	}

	if err := s.repo.RecordVerification(ctx, post.ID); err != nil {
		return scheduler.Retry(err)
	}

	if err := s.applyTransition(ctx, deal, models.DealStatusPosted, models.DealStatusVerifying,
		SystemActor, "hold elapsed", nil); err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeInvalidTransition {
			return scheduler.Success()
		}
		return scheduler.Retry(err)
	}
	if err := s.finishDeal(ctx, deal, SystemActor); err != nil {
		return outcomeFor(err)
	}
	return scheduler.Success()
}
