package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adboard-backend/internal/features/deal/models"
	"adboard-backend/internal/platform/telegram"
	"adboard-backend/internal/scheduler"
)

func makeJob(t *testing.T, payload interface{}) *scheduler.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &scheduler.Job{ID: "test-job", Queue: QueueDeals, Payload: raw, Attempts: 1, MaxAttempts: 5}
}

func TestExpireCreatedWithoutRefund(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreated, nil)

	outcome := env.svc.handleExpire(context.Background(),
		makeJob(t, expirePayload{DealID: deal.ID, ExpectedStatus: models.DealStatusCreated}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusExpired, got.Status)
	assert.Empty(t, env.escrow.refunds, "nothing escrowed, nothing to refund")
}

func TestExpirePendingPaymentWithoutRefund(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPendingPayment, nil)

	outcome := env.svc.handleExpire(context.Background(),
		makeJob(t, expirePayload{DealID: deal.ID, ExpectedStatus: models.DealStatusPendingPayment}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusExpired, got.Status)
	assert.Empty(t, env.escrow.refunds)
}

func TestExpireCreativeDeadlineRefundsEscrow(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreativePending, func(d *models.Deal) {
		d.EscrowHeld = true
	})

	outcome := env.svc.handleExpire(context.Background(),
		makeJob(t, expirePayload{DealID: deal.ID, ExpectedStatus: models.DealStatusCreativePending}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusExpired, got.Status)
	require.Len(t, env.escrow.refunds, 1)
	assert.Equal(t, deal.AmountNano, env.escrow.refunds[0].Amount)
}

func TestExpireNoopsWhenDealProgressed(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusCreativeSubmitted, func(d *models.Deal) {
		d.EscrowHeld = true
	})

	// The deadline job raced a submission; the deal moved on.
	outcome := env.svc.handleExpire(context.Background(),
		makeJob(t, expirePayload{DealID: deal.ID, ExpectedStatus: models.DealStatusCreativePending}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusCreativeSubmitted, got.Status)
	assert.Empty(t, env.escrow.refunds)
}

func TestPublishJobPostsAndMarks(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusScheduled, func(d *models.Deal) {
		d.EscrowHeld = true
		ref := "approved creative"
		d.CreativeRef = &ref
	})
	env.seedPost(deal, models.PostStatusScheduled, 0)

	outcome := env.svc.handlePublish(context.Background(), makeJob(t, publishPayload{DealID: deal.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusPosted, got.Status)
	assert.Equal(t, []string{"approved creative"}, env.messenger.published)

	post, err := env.repo.GetActivePostByDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, post.Status)
}

func TestPublishJobNoopsOffSchedule(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusDisputed, nil)

	outcome := env.svc.handlePublish(context.Background(), makeJob(t, publishPayload{DealID: deal.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)
	assert.Empty(t, env.messenger.published)
}

func TestVerifyRecordsWhenPresent(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) { d.EscrowHeld = true })
	post := env.seedPost(deal, models.PostStatusPublished, 777)

	outcome := env.svc.handleVerify(context.Background(),
		makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetPost(context.Background(), post.ID)
	assert.Equal(t, 1, got.VerificationCount)
	assert.NotContains(t, env.events.types(), EventPostMissing)
}

func TestVerifySignalsMissingPost(t *testing.T) {
	env := newTestEnv()
	env.messenger.exists = false
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) { d.EscrowHeld = true })
	post := env.seedPost(deal, models.PostStatusPublished, 777)

	outcome := env.svc.handleVerify(context.Background(),
		makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	// The deal stays POSTED; a missing post is a dispute signal, not an
	// automatic state change.
	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusPosted, got.Status)
	assert.Contains(t, env.events.types(), EventPostMissing)
	assert.NotEmpty(t, env.notifier.texts)

	gotPost, _ := env.repo.GetPost(context.Background(), post.ID)
	assert.Equal(t, 0, gotPost.VerificationCount)
}

func TestDeleteCompletesDeal(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) { d.EscrowHeld = true })
	post := env.seedPost(deal, models.PostStatusPublished, 888)

	outcome := env.svc.handleDelete(context.Background(),
		makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusCompleted, got.Status)
	assert.Contains(t, env.messenger.deleted, int64(888))

	gotPost, _ := env.repo.GetPost(context.Background(), post.ID)
	assert.Equal(t, models.PostStatusDeleted, gotPost.Status)
}

func TestDeleteTreatsGoneMessageAsSuccess(t *testing.T) {
	env := newTestEnv()
	env.messenger.deleteErr = telegram.ErrMessageNotFound
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) { d.EscrowHeld = true })
	post := env.seedPost(deal, models.PostStatusPublished, 888)

	outcome := env.svc.handleDelete(context.Background(),
		makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusCompleted, got.Status)

	gotPost, _ := env.repo.GetPost(context.Background(), post.ID)
	assert.Equal(t, models.PostStatusDeleted, gotPost.Status)
}

func TestDeleteRedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) { d.EscrowHeld = true })
	post := env.seedPost(deal, models.PostStatusPublished, 888)
	job := makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID})

	first := env.svc.handleDelete(context.Background(), job)
	assert.Equal(t, scheduler.ResultSuccess, first.Result)
	second := env.svc.handleDelete(context.Background(), job)
	assert.Equal(t, scheduler.ResultSuccess, second.Result)

	// Escrow released exactly once, message deleted exactly once.
	assert.Len(t, env.escrow.releases, 1)
	assert.Len(t, env.messenger.deleted, 1)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusCompleted, got.Status)
}

func TestDeleteNoopsOnDispute(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusDisputed, func(d *models.Deal) { d.EscrowHeld = true })
	post := env.seedPost(deal, models.PostStatusPublished, 888)

	outcome := env.svc.handleDelete(context.Background(),
		makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusDisputed, got.Status)
	assert.Empty(t, env.messenger.deleted)
	assert.Empty(t, env.escrow.releases)
}

func TestWarnNotifiesBothParties(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) { d.EscrowHeld = true })

	outcome := env.svc.handleWarn(context.Background(), makeJob(t, postPayload{DealID: deal.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)
	assert.Len(t, env.notifier.texts, 2)
}

func TestPermanentCompleteAfterHold(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) {
		d.EscrowHeld = true
		d.Permanent = true
		d.DurationHours = 0
	})
	post := env.seedPost(deal, models.PostStatusPublished, 999)

	outcome := env.svc.handleComplete(context.Background(),
		makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusCompleted, got.Status)

	// Permanent placements are never deleted.
	assert.Empty(t, env.messenger.deleted)
	require.Len(t, env.escrow.releases, 1)
	assert.Equal(t, int64(9_500_000_000), env.escrow.releases[0].Amount)
}

func TestPermanentCompleteHoldsWhenPostGone(t *testing.T) {
	env := newTestEnv()
	env.messenger.exists = false
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) {
		d.EscrowHeld = true
		d.Permanent = true
	})
	post := env.seedPost(deal, models.PostStatusPublished, 999)

	outcome := env.svc.handleComplete(context.Background(),
		makeJob(t, postPayload{DealID: deal.ID, PostID: post.ID}))
	assert.Equal(t, scheduler.ResultSuccess, outcome.Result)

	got, _ := env.repo.GetByID(context.Background(), deal.ID)
	assert.Equal(t, models.DealStatusPosted, got.Status)
	assert.Empty(t, env.escrow.releases)
	assert.Contains(t, env.events.types(), EventPostMissing)
}

func TestScheduleEnforcementJobSet(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) {
		d.EscrowHeld = true
		d.DurationHours = 48
	})
	post := env.seedPost(deal, models.PostStatusPublished, 1)

	env.svc.scheduleEnforcement(context.Background(), deal, post.ID)

	types := env.jobs.typesEnqueued()
	assert.Equal(t, []string{JobTypeVerify, JobTypeWarn, JobTypeDelete}, types)

	// Deletion lands exactly at duration, the warning one window before.
	for _, job := range env.jobs.jobs {
		switch job.Type {
		case JobTypeDelete:
			assert.Equal(t, 48*time.Hour, job.Opts.Delay)
			assert.NotEmpty(t, job.Opts.DedupeKey)
		case JobTypeWarn:
			assert.Equal(t, 47*time.Hour, job.Opts.Delay)
		}
	}
}

func TestScheduleEnforcementPermanent(t *testing.T) {
	env := newTestEnv()
	deal := env.seedDeal(models.DealStatusPosted, func(d *models.Deal) {
		d.EscrowHeld = true
		d.Permanent = true
		d.DurationHours = 0
	})
	post := env.seedPost(deal, models.PostStatusPublished, 1)

	env.svc.scheduleEnforcement(context.Background(), deal, post.ID)

	types := env.jobs.typesEnqueued()
	assert.Equal(t, []string{JobTypeVerify, JobTypeComplete}, types)
}
