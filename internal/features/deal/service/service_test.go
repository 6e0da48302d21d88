package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "adboard-backend/internal/common/errors"
	"adboard-backend/internal/features/deal/models"
	"adboard-backend/internal/platform/ton"
	"adboard-backend/internal/scheduler"
)

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestPlatformFee(t *testing.T) {
	assert.Equal(t, int64(50_000_000), PlatformFee(1_000_000_000, 5))
	assert.Equal(t, int64(500_000_000), PlatformFee(10_000_000_000, 5))
	// Integer division floors; no rounding up.
	assert.Equal(t, int64(0), PlatformFee(19, 5))
	assert.Equal(t, int64(1), PlatformFee(21, 5))
}

func TestCreateDealValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	base := CreateDealInput{
		AdvertiserID:  100,
		OwnerID:       200,
		ChannelID:     -1001,
		AdFormat:      "post",
		AmountNano:    10_000_000_000,
		DurationHours: 48,
		Brief:         "brief",
		RefundAddress: "EQA",
		PayoutAddress: "EQB",
	}

	tooSmall := base
	tooSmall.AmountNano = 999_999_999
	_, err := env.svc.CreateDeal(ctx, tooSmall)
	assertCode(t, err, apperrors.ErrCodeAmountOutOfRange)

	badFormat := base
	badFormat.AdFormat = "banner"
	_, err = env.svc.CreateDeal(ctx, badFormat)
	assertCode(t, err, apperrors.ErrCodeValidation)

	noDuration := base
	noDuration.DurationHours = 0
	_, err = env.svc.CreateDeal(ctx, noDuration)
	assertCode(t, err, apperrors.ErrCodeValidation)

	// Permanent placements carry no duration.
	permanent := base
	permanent.DurationHours = 0
	permanent.Permanent = true
	deal, err := env.svc.CreateDeal(ctx, permanent)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCreated, deal.Status)
}

func TestCreateDealSchedulesAcceptanceDeadline(t *testing.T) {
	env := newTestEnv()

	deal, err := env.svc.CreateDeal(context.Background(), CreateDealInput{
		AdvertiserID: 100, OwnerID: 200, ChannelID: -1001,
		AdFormat: "post", AmountNano: 2_000_000_000, DurationHours: 24,
		Brief: "b", RefundAddress: "EQA", PayoutAddress: "EQB",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, deal.Ref)

	require.Len(t, env.jobs.jobs, 1)
	job := env.jobs.jobs[0]
	assert.Equal(t, JobTypeExpire, job.Type)
	assert.Equal(t, 24*time.Hour, job.Opts.Delay)
}

func TestAcceptOwnerOnly(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreated, nil)

	_, err := env.svc.Accept(context.Background(), deal.ID, deal.AdvertiserID)
	assertCode(t, err, apperrors.ErrCodeNotOwner)

	got, err := env.svc.Accept(context.Background(), deal.ID, deal.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusPendingPayment, got.Status)
}

func TestAcceptFromWrongStatus(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, nil)

	_, err := env.svc.Accept(context.Background(), deal.ID, deal.OwnerID)
	assertCode(t, err, apperrors.ErrCodeInvalidTransition)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusPosted, got.Status)
}

func TestConfirmFundingAdvancesToCreativePending(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPendingPayment, nil)

	got, err := env.svc.ConfirmFunding(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCreativePending, got.Status)
	assert.True(t, got.EscrowHeld)

	// Creative deadline armed against the new status.
	types := env.jobs.typesEnqueued()
	require.Contains(t, types, JobTypeExpire)
}

func TestConfirmFundingPendingDepositDoesNotAdvance(t *testing.T) {
	env := newTestEnv()
	env.escrow.depositStatus = ton.FundPending
	deal := env.seedDeal(models.DealStatusPendingPayment, nil)

	_, err := env.svc.ConfirmFunding(context.Background(), deal.ID)
	assertCode(t, err, apperrors.ErrCodeEscrowTransient)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusPendingPayment, got.Status)
	assert.False(t, got.EscrowHeld)
}

func TestConfirmFundingIdempotentAfterFunding(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreativePending, func(d *models.Deal) {
		d.EscrowHeld = true
	})

	got, err := env.svc.ConfirmFunding(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCreativePending, got.Status)
}

func TestRevisionLimitEnforcedBeforeStateChange(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreativePending, func(d *models.Deal) {
		d.EscrowHeld = true
	})
	ctx := context.Background()

	// Three full submit/revision cycles, then a final submission.
	for i := 0; i < 3; i++ {
		_, err := env.svc.SubmitCreative(ctx, deal.ID, deal.OwnerID, "creative text")
		require.NoError(t, err)
		_, err = env.svc.RequestRevision(ctx, deal.ID, deal.AdvertiserID, "tighten the copy")
		require.NoError(t, err)
	}
	_, err := env.svc.SubmitCreative(ctx, deal.ID, deal.OwnerID, "creative text v4")
	require.NoError(t, err)

	// The fourth request must fail and leave the deal untouched.
	_, err = env.svc.RequestRevision(ctx, deal.ID, deal.AdvertiserID, "one more")
	assertCode(t, err, apperrors.ErrCodeRevisionLimitExceeded)

	got, _ := env.repo.GetByID(ctx, deal.ID)
	assert.Equal(t, models.DealStatusCreativeSubmitted, got.Status)
	assert.Equal(t, 3, got.RevisionCount)
	assert.Equal(t, 4, got.SubmissionCount)
}

func TestApproveWithScheduleMovesToScheduled(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreativeSubmitted, func(d *models.Deal) {
		d.EscrowHeld = true
		ref := "creative text"
		d.CreativeRef = &ref
	})

	at := time.Now().Add(2 * time.Hour)
	got, err := env.svc.ApproveCreative(context.Background(), deal.ID, deal.AdvertiserID, &at)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusScheduled, got.Status)

	require.Contains(t, env.jobs.typesEnqueued(), JobTypePublish)

	post, err := env.repo.GetActivePostByDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
}

func TestCancelBeforeApprovalRefundsExactEscrow(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreativePending, func(d *models.Deal) {
		d.EscrowHeld = true
	})

	got, err := env.svc.Cancel(context.Background(), deal.ID, deal.AdvertiserID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCancelled, got.Status)

	require.Len(t, env.escrow.refunds, 1)
	assert.Equal(t, deal.AmountNano, env.escrow.refunds[0].Amount)
	assert.Equal(t, deal.RefundAddress, env.escrow.refunds[0].To)
	assert.Empty(t, env.escrow.releases)
}

func TestCancelWithoutEscrowRefundsNothing(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreated, nil)

	got, err := env.svc.Cancel(context.Background(), deal.ID, deal.AdvertiserID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCancelled, got.Status)
	assert.Empty(t, env.escrow.refunds)
}

func TestCancelAfterApprovalRejected(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreativeApproved, func(d *models.Deal) {
		d.EscrowHeld = true
	})

	_, err := env.svc.Cancel(context.Background(), deal.ID, deal.AdvertiserID)
	assertCode(t, err, apperrors.ErrCodeInvalidTransition)
	assert.Empty(t, env.escrow.refunds)
}

func TestOpenDisputeRejectsTerminal(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCompleted, nil)

	_, err := env.svc.OpenDispute(context.Background(), deal.ID, deal.AdvertiserID, "late")
	assertCode(t, err, apperrors.ErrCodeAlreadyTerminal)
}

func TestOpenDisputePartiesOnly(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, nil)

	_, err := env.svc.OpenDispute(context.Background(), deal.ID, 999, "not mine")
	assertCode(t, err, apperrors.ErrCodeForbidden)

	got, err := env.svc.OpenDispute(context.Background(), deal.ID, deal.OwnerID, "payment concern")
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusDisputed, got.Status)
}

func TestResolveDisputeSplitMustSumToEscrow(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusDisputed, func(d *models.Deal) {
		d.EscrowHeld = true
	})

	_, err := env.svc.ResolveDispute(context.Background(), deal.ID, 1, 1_000_000_000, 1_000_000_000)
	assertCode(t, err, apperrors.ErrCodeValidation)

	got, err := env.svc.ResolveDispute(context.Background(), deal.ID, 1,
		6_000_000_000, 4_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusRefunded, got.Status)

	require.Len(t, env.escrow.releases, 1)
	assert.Equal(t, int64(6_000_000_000), env.escrow.releases[0].Amount)
	require.Len(t, env.escrow.refunds, 1)
	assert.Equal(t, int64(4_000_000_000), env.escrow.refunds[0].Amount)
}

func TestResolveDisputeFullPayoutCompletes(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusDisputed, func(d *models.Deal) {
		d.EscrowHeld = true
	})

	got, err := env.svc.ResolveDispute(context.Background(), deal.ID, 1, deal.AmountNano, 0)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCompleted, got.Status)
}

// TestHappyPath walks a 10 TON deal through the whole lifecycle: create,
// accept, fund, creative exchange, manual posting and the duration-end job.
func TestHappyPath(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	deal, err := env.svc.CreateDeal(ctx, CreateDealInput{
		AdvertiserID:  100,
		OwnerID:       200,
		ChannelID:     -1001,
		AdFormat:      "post",
		AmountNano:    10_000_000_000,
		DurationHours: 48,
		Brief:         "product launch",
		RefundAddress: "EQAdvertiser",
		PayoutAddress: "EQOwner",
	})
	require.NoError(t, err)

	_, err = env.svc.Accept(ctx, deal.ID, 200)
	require.NoError(t, err)

	_, err = env.svc.ConfirmFunding(ctx, deal.ID)
	require.NoError(t, err)

	_, err = env.svc.SubmitCreative(ctx, deal.ID, 200, "the creative")
	require.NoError(t, err)

	_, err = env.svc.ApproveCreative(ctx, deal.ID, 100, nil)
	require.NoError(t, err)

	got, err := env.svc.MarkPosted(ctx, deal.ID, 200, 555, false)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusPosted, got.Status)

	post, err := env.repo.GetActivePostByDeal(ctx, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, post.ExternalMessageID)
	assert.Equal(t, int64(555), *post.ExternalMessageID)

	// Duration elapses; the deletion job tears down and completes.
	outcome := env.svc.handleDelete(ctx, makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	require.NoError(t, outcome.Err)
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	final, err := env.repo.GetByID(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DealStatusCompleted, final.Status)

	// 5% fee on 10 TON: owner receives 9.5 TON, exactly once.
	require.Len(t, env.escrow.releases, 1)
	assert.Equal(t, int64(9_500_000_000), env.escrow.releases[0].Amount)
	assert.Equal(t, "EQOwner", env.escrow.releases[0].To)
	assert.Empty(t, env.escrow.refunds)

	assert.Contains(t, env.messenger.deleted, int64(555))
	assert.Contains(t, env.events.types(), EventDealCompleted)
}
