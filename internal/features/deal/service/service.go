package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"adboard-backend/internal/common/config"
	apperrors "adboard-backend/internal/common/errors"
	"adboard-backend/internal/common/logger"
	"adboard-backend/internal/features/deal/models"
	"adboard-backend/internal/features/deal/repository"
	"adboard-backend/internal/platform/ton"
)

// Actor id used for time-driven and system transitions.
const SystemActor int64 = 0

var validAdFormats = map[string]bool{"post": true, "repost": true, "story": true}

// Service is the deal state machine. Every mutation of a deal goes through a
// transition operation here; there are no direct field writes elsewhere.
type Service struct {
	repo      repository.DealRepository
	escrow    EscrowCollaborator
	messenger Messenger
	notifier  Notifier
	events    EventPublisher
	jobs      JobEnqueuer
	stats     StatsReader
	cfg       *config.Config
	log       zerolog.Logger
}

func NewService(
	repo repository.DealRepository,
	escrow EscrowCollaborator,
	messenger Messenger,
	notifier Notifier,
	events EventPublisher,
	jobs JobEnqueuer,
	stats StatsReader,
	cfg *config.Config,
) *Service {
	return &Service{
		repo:      repo,
		escrow:    escrow,
		messenger: messenger,
		notifier:  notifier,
		events:    events,
		jobs:      jobs,
		stats:     stats,
		cfg:       cfg,
		log:       logger.With("deal-service"),
	}
}

// PlatformFee is floor(amount * percent / 100) in minor units.
func PlatformFee(amount, percent int64) int64 {
	return amount * percent / 100
}

func newDealRef() string {
	return "AD-" + strings.ToUpper(uuid.New().String()[:8])
}

// CreateDealInput carries everything an advertiser supplies at creation.
type CreateDealInput struct {
	AdvertiserID  int64
	OwnerID       int64
	ChannelID     int64
	AdFormat      string
	AmountNano    int64
	DurationHours int
	Permanent     bool
	Brief         string
	ScheduledAt   *time.Time
	RefundAddress string
	PayoutAddress string
}

// CreateDeal validates the input and persists a new deal in CREATED, then
// schedules the acceptance deadline.
func (s *Service) CreateDeal(ctx context.Context, in CreateDealInput) (*models.Deal, error) {
	if in.AmountNano < s.cfg.Deals.MinAmount || in.AmountNano > s.cfg.Deals.MaxAmount {
		return nil, apperrors.New(apperrors.ErrCodeAmountOutOfRange, "deal amount out of allowed range").
			WithDetail("amount", in.AmountNano).
			WithDetail("min", s.cfg.Deals.MinAmount).
			WithDetail("max", s.cfg.Deals.MaxAmount)
	}
	if !validAdFormats[in.AdFormat] {
		return nil, apperrors.NewValidationError("ad_format", "must be one of post, repost, story")
	}
	if !in.Permanent && in.DurationHours <= 0 {
		return nil, apperrors.NewValidationError("duration_hours", "must be positive for non-permanent placements")
	}

	deal := &models.Deal{
		ID:            uuid.New(),
		Ref:           newDealRef(),
		AdvertiserID:  in.AdvertiserID,
		OwnerID:       in.OwnerID,
		ChannelID:     in.ChannelID,
		AdFormat:      in.AdFormat,
		AmountNano:    in.AmountNano,
		DurationHours: in.DurationHours,
		Permanent:     in.Permanent,
		ScheduledAt:   in.ScheduledAt,
		Status:        models.DealStatusCreated,
		Brief:         in.Brief,
		RefundAddress: in.RefundAddress,
		PayoutAddress: in.PayoutAddress,
	}

	if err := s.repo.Create(ctx, deal); err != nil {
		return nil, apperrors.NewDatabaseError("create deal", err)
	}

	s.appendTimeline(ctx, deal.ID, in.AdvertiserID, "", models.DealStatusCreated, "deal created")
	s.emit(ctx, deal, EventDealCreated, in.AdvertiserID)
	s.scheduleExpiry(ctx, deal.ID, models.DealStatusCreated, s.cfg.Deals.PaymentDeadline)

	s.log.Info().
		Str("deal_id", deal.ID.String()).
		Str("ref", deal.Ref).
		Int64("amount", deal.AmountNano).
		Msg("deal created")
	return deal, nil
}

// GetDeal returns a deal by id.
func (s *Service) GetDeal(ctx context.Context, dealID uuid.UUID) (*models.Deal, error) {
	deal, err := s.repo.GetByID(ctx, dealID)
	if errors.Is(err, repository.ErrDealNotFound) {
		return nil, apperrors.NewNotFoundError("deal", dealID.String())
	}
	return deal, err
}

// ConfirmFundingByRef is the webhook entry point; the payment processor only
// knows the transfer comment, which carries the deal ref.
func (s *Service) ConfirmFundingByRef(ctx context.Context, ref string) (*models.Deal, error) {
	deal, err := s.repo.GetByRef(ctx, ref)
	if errors.Is(err, repository.ErrDealNotFound) {
		return nil, apperrors.NewNotFoundError("deal", ref)
	}
	if err != nil {
		return nil, err
	}
	return s.ConfirmFunding(ctx, deal.ID)
}

// GetTimeline returns the deal's audit trail.
func (s *Service) GetTimeline(ctx context.Context, dealID uuid.UUID) ([]models.TimelineRecord, error) {
	return s.repo.ListTimeline(ctx, dealID)
}

// Accept moves CREATED -> PENDING_PAYMENT. Owner only.
func (s *Service) Accept(ctx context.Context, dealID uuid.UUID, actorID int64) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != deal.OwnerID {
		return nil, apperrors.NewNotOwnerError(dealID.String(), actorID)
	}

	if err := s.applyTransition(ctx, deal, models.DealStatusCreated, models.DealStatusPendingPayment,
		actorID, "owner accepted", nil); err != nil {
		return nil, err
	}

	s.emit(ctx, deal, EventDealAccepted, actorID)
	s.scheduleExpiry(ctx, deal.ID, models.DealStatusPendingPayment, s.cfg.Deals.PaymentDeadline)
	return deal, nil
}

// Reject moves CREATED -> CANCELLED. Owner only. No funds exist yet.
func (s *Service) Reject(ctx context.Context, dealID uuid.UUID, actorID int64) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != deal.OwnerID {
		return nil, apperrors.NewNotOwnerError(dealID.String(), actorID)
	}

	if err := s.applyTransition(ctx, deal, models.DealStatusCreated, models.DealStatusCancelled,
		actorID, "owner rejected", nil); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventDealCancelled, actorID)
	return deal, nil
}

// ConfirmFunding verifies the escrow deposit and, once confirmed, advances
// PENDING_PAYMENT -> PAYMENT_RECEIVED -> IN_PROGRESS -> CREATIVE_PENDING and
// arms the creative deadline. A client-supplied "I paid" never reaches here;
// the escrow collaborator's answer is the only accepted signal.
func (s *Service) ConfirmFunding(ctx context.Context, dealID uuid.UUID) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Status != models.DealStatusPendingPayment {
		if deal.Status == models.DealStatusPaymentReceived || deal.Status == models.DealStatusInProgress ||
			deal.Status == models.DealStatusCreativePending {
			return deal, nil // already funded; idempotent for webhook redelivery
		}
		return nil, apperrors.NewInvalidTransition(deal.Status, models.DealStatusPaymentReceived)
	}

	status, err := s.escrow.CheckDeposit(ctx, deal.Ref, deal.AmountNano)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeEscrowTransient, "escrow deposit check failed").
			WithDetail("deal_id", dealID.String())
	}
	switch status {
	case ton.FundPending:
		return nil, apperrors.New(apperrors.ErrCodeEscrowTransient, "escrow deposit not yet confirmed").
			WithDetail("deal_id", dealID.String())
	case ton.FundFailed:
		return nil, apperrors.New(apperrors.ErrCodeEscrowRejected, "escrow deposit rejected").
			WithDetail("deal_id", dealID.String())
	}

	held := true
	if err := s.applyTransition(ctx, deal, models.DealStatusPendingPayment, models.DealStatusPaymentReceived,
		SystemActor, "escrow deposit confirmed", &models.DealStatusUpdate{SetEscrowHeld: &held}); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventDealFunded, SystemActor)

	// Auto-advance into the creative phase.
	if err := s.applyTransition(ctx, deal, models.DealStatusPaymentReceived, models.DealStatusInProgress,
		SystemActor, "work started", nil); err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, deal, models.DealStatusInProgress, models.DealStatusCreativePending,
		SystemActor, "awaiting creative", nil); err != nil {
		return nil, err
	}
	s.scheduleExpiry(ctx, deal.ID, models.DealStatusCreativePending, s.cfg.Deals.CreativeDeadline)

	s.log.Info().Str("deal_id", dealID.String()).Msg("deal funded")
	return deal, nil
}

// SubmitCreative moves CREATIVE_PENDING (or a requested revision) ->
// CREATIVE_SUBMITTED. Owner only.
func (s *Service) SubmitCreative(ctx context.Context, dealID uuid.UUID, actorID int64, creativeRef string) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != deal.OwnerID {
		return nil, apperrors.NewNotOwnerError(dealID.String(), actorID)
	}
	if creativeRef == "" {
		return nil, apperrors.NewValidationError("creative_ref", "must not be empty")
	}

	from := deal.Status
	if from != models.DealStatusCreativePending && from != models.DealStatusCreativeRevisionRequested {
		return nil, apperrors.NewInvalidTransition(from, models.DealStatusCreativeSubmitted)
	}

	if err := s.applyTransition(ctx, deal, from, models.DealStatusCreativeSubmitted,
		actorID, "creative submitted", &models.DealStatusUpdate{
			SetCreativeRef: &creativeRef,
			IncSubmission:  true,
		}); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventCreativeSubmitted, actorID)
	return deal, nil
}

// RequestRevision moves CREATIVE_SUBMITTED -> CREATIVE_REVISION_REQUESTED.
// Advertiser only. The revision cap is enforced before any state change; past
// the cap the parties must resolve via dispute.
func (s *Service) RequestRevision(ctx context.Context, dealID uuid.UUID, actorID int64, reason string) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != deal.AdvertiserID {
		return nil, apperrors.New(apperrors.ErrCodeNotAdvertiser, "actor is not the deal's advertiser").
			WithDetail("deal_id", dealID.String())
	}
	if deal.RevisionCount >= s.cfg.Deals.MaxRevisions {
		return nil, apperrors.New(apperrors.ErrCodeRevisionLimitExceeded, "revision limit exceeded").
			WithDetail("deal_id", dealID.String()).
			WithDetail("limit", s.cfg.Deals.MaxRevisions)
	}

	if err := s.applyTransition(ctx, deal, models.DealStatusCreativeSubmitted, models.DealStatusCreativeRevisionRequested,
		actorID, reason, &models.DealStatusUpdate{IncRevision: true}); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventRevisionRequested, actorID)
	return deal, nil
}

// ApproveCreative moves CREATIVE_SUBMITTED -> CREATIVE_APPROVED (and on to
// SCHEDULED when a publish time is set), creates the placement record and
// schedules the publication job. Advertiser only.
func (s *Service) ApproveCreative(ctx context.Context, dealID uuid.UUID, actorID int64, scheduledAt *time.Time) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != deal.AdvertiserID {
		return nil, apperrors.New(apperrors.ErrCodeNotAdvertiser, "actor is not the deal's advertiser").
			WithDetail("deal_id", dealID.String())
	}

	upd := &models.DealStatusUpdate{}
	if scheduledAt != nil {
		upd.SetScheduledAt = scheduledAt
	}
	if err := s.applyTransition(ctx, deal, models.DealStatusCreativeSubmitted, models.DealStatusCreativeApproved,
		actorID, "creative approved", upd); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventCreativeApproved, actorID)

	post := &models.PublishedPost{
		ID:        uuid.New(),
		DealID:    deal.ID,
		ChannelID: deal.ChannelID,
		Status:    models.PostStatusScheduled,
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, apperrors.NewDatabaseError("create published post", err)
	}

	if scheduledAt != nil {
		if err := s.applyTransition(ctx, deal, models.DealStatusCreativeApproved, models.DealStatusScheduled,
			SystemActor, "publication scheduled", nil); err != nil {
			return nil, err
		}
		s.schedulePublish(ctx, deal, *scheduledAt)
	}
	// Without a schedule the owner publishes manually and reports via MarkPosted.

	return deal, nil
}

// MarkPosted records the physical placement and moves the deal to POSTED.
// Callable by the owner (manual publication) or the system publish job. The
// post enforcement jobs are armed here, relative to the actual publish time.
func (s *Service) MarkPosted(ctx context.Context, dealID uuid.UUID, actorID int64, externalMessageID int64, pinned bool) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != SystemActor && actorID != deal.OwnerID {
		return nil, apperrors.NewNotOwnerError(dealID.String(), actorID)
	}

	from := deal.Status
	if from != models.DealStatusScheduled && from != models.DealStatusCreativeApproved {
		return nil, apperrors.NewInvalidTransition(from, models.DealStatusPosted)
	}

	post, err := s.repo.GetActivePostByDeal(ctx, dealID)
	if errors.Is(err, repository.ErrPostNotFound) {
		return nil, apperrors.NewDataInvariantError("deal has no placement record").
			WithDetail("deal_id", dealID.String())
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load published post", err)
	}

	if post.Status == models.PostStatusScheduled {
		if err := s.repo.MarkPostPublished(ctx, post.ID, externalMessageID, pinned); err != nil {
			return nil, apperrors.NewDatabaseError("mark post published", err)
		}
	}

	if err := s.applyTransition(ctx, deal, from, models.DealStatusPosted,
		actorID, "post published", nil); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventDealPosted, actorID)

	s.scheduleEnforcement(ctx, deal, post.ID)
	return deal, nil
}

// ConfirmCompletion lets the advertiser (or the system after a successful
// final verification) drive VERIFYING -> VERIFIED -> COMPLETED and release
// escrow to the owner net of the platform fee.
func (s *Service) ConfirmCompletion(ctx context.Context, dealID uuid.UUID, actorID int64) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != SystemActor && actorID != deal.AdvertiserID {
		return nil, apperrors.New(apperrors.ErrCodeNotAdvertiser, "actor is not the deal's advertiser").
			WithDetail("deal_id", dealID.String())
	}
	return deal, s.finishDeal(ctx, deal, actorID)
}

// finishDeal performs VERIFYING -> VERIFIED -> COMPLETED with the escrow
// release. Safe to re-run: an already-completed deal is success.
func (s *Service) finishDeal(ctx context.Context, deal *models.Deal, actorID int64) error {
	if deal.Status == models.DealStatusCompleted {
		return nil
	}

	if deal.Status == models.DealStatusVerifying {
		if err := s.applyTransition(ctx, deal, models.DealStatusVerifying, models.DealStatusVerified,
			actorID, "placement verified", nil); err != nil {
			return err
		}
		s.emit(ctx, deal, EventDealVerified, actorID)
	}

	if deal.Status != models.DealStatusVerified {
		return apperrors.NewInvalidTransition(deal.Status, models.DealStatusCompleted)
	}

	// Release before the final CAS: if the release fails the deal stays in
	// VERIFIED and the caller retries. The payout signer dedupes by deal ref.
	fee := PlatformFee(deal.AmountNano, s.cfg.Deals.FeePercent)
	if deal.EscrowHeld {
		if err := s.escrow.Release(ctx, deal.Ref, deal.PayoutAddress, deal.AmountNano-fee); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeEscrowTransient, "escrow release failed").
				WithDetail("deal_id", deal.ID.String())
		}
	}

	if err := s.applyTransition(ctx, deal, models.DealStatusVerified, models.DealStatusCompleted,
		actorID, fmt.Sprintf("completed, released %d (fee %d)", deal.AmountNano-fee, fee), nil); err != nil {
		return err
	}
	s.emit(ctx, deal, EventDealCompleted, actorID)

	s.log.Info().
		Str("deal_id", deal.ID.String()).
		Int64("released", deal.AmountNano-fee).
		Int64("fee", fee).
		Msg("deal completed")
	return nil
}

// OpenDispute moves any non-terminal deal to DISPUTED. Either party.
// Enforcement jobs are not cancelled; they re-check deal state on execution
// and no-op once the deal left their expected status.
func (s *Service) OpenDispute(ctx context.Context, dealID uuid.UUID, actorID int64, reason string) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != deal.OwnerID && actorID != deal.AdvertiserID {
		return nil, apperrors.New(apperrors.ErrCodeForbidden, "actor is not a party to this deal").
			WithDetail("deal_id", dealID.String())
	}
	if models.IsTerminalStatus(deal.Status) {
		return nil, apperrors.New(apperrors.ErrCodeAlreadyTerminal, "deal is already in a terminal state").
			WithDetail("status", deal.Status)
	}

	if err := s.applyTransition(ctx, deal, deal.Status, models.DealStatusDisputed,
		actorID, reason, nil); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventDealDisputed, actorID)
	return deal, nil
}

// ResolveDispute is the operator path out of DISPUTED. The split between the
// owner payout and the advertiser refund is operator-computed, never derived
// here; it only has to add up to the escrowed amount.
func (s *Service) ResolveDispute(ctx context.Context, dealID uuid.UUID, operatorID int64, ownerAmount, refundAmount int64) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Status != models.DealStatusDisputed {
		return nil, apperrors.NewInvalidTransition(deal.Status, models.DealStatusRefunded)
	}
	if ownerAmount < 0 || refundAmount < 0 {
		return nil, apperrors.NewValidationError("amounts", "must be non-negative")
	}
	if deal.EscrowHeld && ownerAmount+refundAmount != deal.AmountNano {
		return nil, apperrors.NewValidationError("amounts", "must sum to the escrowed amount").
			WithDetail("escrowed", deal.AmountNano)
	}
	if !deal.EscrowHeld && (ownerAmount != 0 || refundAmount != 0) {
		return nil, apperrors.NewValidationError("amounts", "no escrow held for this deal")
	}

	if deal.EscrowHeld {
		if ownerAmount > 0 {
			if err := s.escrow.Release(ctx, deal.Ref, deal.PayoutAddress, ownerAmount); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeEscrowTransient, "escrow release failed")
			}
		}
		if refundAmount > 0 {
			if err := s.escrow.Refund(ctx, deal.Ref, deal.RefundAddress, refundAmount); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeEscrowTransient, "escrow refund failed")
			}
		}
	}

	target := models.DealStatusRefunded
	eventType := EventDealRefunded
	if ownerAmount > 0 && refundAmount == 0 {
		target = models.DealStatusCompleted
		eventType = EventDealCompleted
	}

	if err := s.applyTransition(ctx, deal, models.DealStatusDisputed, target,
		operatorID, fmt.Sprintf("dispute resolved: owner %d, refund %d", ownerAmount, refundAmount), nil); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, eventType, operatorID)
	return deal, nil
}

// Cancel is the advertiser's self-service exit, permitted only before the
// creative is approved. Always a full refund of whatever is escrowed.
func (s *Service) Cancel(ctx context.Context, dealID uuid.UUID, actorID int64) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actorID != deal.AdvertiserID {
		return nil, apperrors.New(apperrors.ErrCodeNotAdvertiser, "actor is not the deal's advertiser").
			WithDetail("deal_id", dealID.String())
	}

	from := deal.Status
	switch from {
	case models.DealStatusCreated, models.DealStatusPendingPayment, models.DealStatusCreativePending:
	default:
		return nil, apperrors.NewInvalidTransition(from, models.DealStatusCancelled)
	}

	if deal.EscrowHeld {
		if err := s.escrow.Refund(ctx, deal.Ref, deal.RefundAddress, deal.AmountNano); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeEscrowTransient, "escrow refund failed").
				WithDetail("deal_id", dealID.String())
		}
	}

	if err := s.applyTransition(ctx, deal, from, models.DealStatusCancelled,
		actorID, "cancelled by advertiser", nil); err != nil {
		return nil, err
	}
	s.emit(ctx, deal, EventDealCancelled, actorID)
	return deal, nil
}

// applyTransition runs the graph check and the CAS write, then appends the
// timeline record. The in-memory deal is updated to the new status on success.
func (s *Service) applyTransition(ctx context.Context, deal *models.Deal, from, to string, actorID int64, reason string, extra *models.DealStatusUpdate) error {
	if !models.IsValidTransition(from, to) {
		return apperrors.NewInvalidTransition(from, to)
	}

	upd := models.DealStatusUpdate{}
	if extra != nil {
		upd = *extra
	}
	upd.DealID = deal.ID
	upd.OldStatus = from
	upd.NewStatus = to
	upd.ActorID = actorID
	upd.Reason = reason

	err := s.repo.UpdateStatusAtomic(ctx, upd)
	if errors.Is(err, repository.ErrStatusConflict) {
		return apperrors.NewInvalidTransition(from, to).
			WithDetail("reason", "deal advanced concurrently")
	}
	if err != nil {
		return apperrors.NewDatabaseError("update deal status", err)
	}

	deal.Status = to
	if upd.SetCreativeRef != nil {
		deal.CreativeRef = upd.SetCreativeRef
	}
	if upd.SetScheduledAt != nil {
		deal.ScheduledAt = upd.SetScheduledAt
	}
	if upd.SetEscrowHeld != nil {
		deal.EscrowHeld = *upd.SetEscrowHeld
	}
	if upd.IncRevision {
		deal.RevisionCount++
	}
	if upd.IncSubmission {
		deal.SubmissionCount++
	}

	s.appendTimeline(ctx, deal.ID, actorID, from, to, reason)
	return nil
}

func (s *Service) appendTimeline(ctx context.Context, dealID uuid.UUID, actorID int64, from, to, reason string) {
	rec := &models.TimelineRecord{
		DealID:     dealID,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
	}
	if err := s.repo.AppendTimeline(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("deal_id", dealID.String()).Msg("failed to append timeline record")
	}
}

func (s *Service) emit(ctx context.Context, deal *models.Deal, eventType string, actorID int64) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, Event{
		Type:         eventType,
		DealID:       deal.ID.String(),
		Status:       deal.Status,
		ActorID:      actorID,
		AdvertiserID: deal.AdvertiserID,
		OwnerID:      deal.OwnerID,
	})
	if err != nil {
		s.log.Error().Err(err).Str("deal_id", deal.ID.String()).Str("type", eventType).Msg("failed to publish event")
	}
}
