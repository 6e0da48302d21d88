package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"adboard-backend/internal/common/config"
	"adboard-backend/internal/features/deal/models"
	"adboard-backend/internal/features/deal/repository"
	"adboard-backend/internal/platform/ton"
	"adboard-backend/internal/scheduler"
)

// memRepo is an in-memory DealRepository with the same CAS semantics as the
// Postgres implementation.
type memRepo struct {
	mu       sync.Mutex
	deals    map[uuid.UUID]*models.Deal
	posts    map[uuid.UUID]*models.PublishedPost
	timeline []models.TimelineRecord
}

func newMemRepo() *memRepo {
	return &memRepo{
		deals: make(map[uuid.UUID]*models.Deal),
		posts: make(map[uuid.UUID]*models.PublishedPost),
	}
}

func (r *memRepo) Create(ctx context.Context, deal *models.Deal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	deal.CreatedAt = now
	deal.UpdatedAt = now
	cp := *deal
	r.deals[deal.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deals[id]
	if !ok {
		return nil, repository.ErrDealNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) GetByRef(ctx context.Context, ref string) (*models.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deals {
		if d.Ref == ref {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrDealNotFound
}

func (r *memRepo) UpdateStatusAtomic(ctx context.Context, upd models.DealStatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deals[upd.DealID]
	if !ok {
		return repository.ErrDealNotFound
	}
	if d.Status != upd.OldStatus {
		return repository.ErrStatusConflict
	}
	d.Status = upd.NewStatus
	d.UpdatedAt = time.Now().UTC()
	if upd.SetCreativeRef != nil {
		ref := *upd.SetCreativeRef
		d.CreativeRef = &ref
	}
	if upd.SetScheduledAt != nil {
		at := *upd.SetScheduledAt
		d.ScheduledAt = &at
	}
	if upd.SetEscrowHeld != nil {
		d.EscrowHeld = *upd.SetEscrowHeld
	}
	if upd.IncRevision {
		d.RevisionCount++
	}
	if upd.IncSubmission {
		d.SubmissionCount++
	}
	return nil
}

func (r *memRepo) AppendTimeline(ctx context.Context, rec *models.TimelineRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = int64(len(r.timeline) + 1)
	rec.CreatedAt = time.Now().UTC()
	r.timeline = append(r.timeline, *rec)
	return nil
}

func (r *memRepo) ListTimeline(ctx context.Context, dealID uuid.UUID) ([]models.TimelineRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TimelineRecord
	for _, rec := range r.timeline {
		if rec.DealID == dealID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) ListActiveChannelIDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, d := range r.deals {
		if !models.IsTerminalStatus(d.Status) && !seen[d.ChannelID] {
			seen[d.ChannelID] = true
			ids = append(ids, d.ChannelID)
		}
	}
	return ids, nil
}

func (r *memRepo) CreatePost(ctx context.Context, post *models.PublishedPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *post
	r.posts[post.ID] = &cp
	return nil
}

func (r *memRepo) GetPost(ctx context.Context, id uuid.UUID) (*models.PublishedPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, repository.ErrPostNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetActivePostByDeal(ctx context.Context, dealID uuid.UUID) (*models.PublishedPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.DealID == dealID && p.Status != models.PostStatusDeleted {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrPostNotFound
}

func (r *memRepo) MarkPostPublished(ctx context.Context, postID uuid.UUID, externalMessageID int64, pinned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok || p.Status != models.PostStatusScheduled {
		return repository.ErrPostNotFound
	}
	now := time.Now().UTC()
	p.Status = models.PostStatusPublished
	p.ExternalMessageID = &externalMessageID
	p.Pinned = pinned
	p.PublishedAt = &now
	return nil
}

func (r *memRepo) RecordVerification(ctx context.Context, postID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok {
		return repository.ErrPostNotFound
	}
	now := time.Now().UTC()
	p.VerificationCount++
	p.LastVerifiedAt = &now
	return nil
}

func (r *memRepo) MarkPostDeleted(ctx context.Context, postID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok {
		return repository.ErrPostNotFound
	}
	if p.Status != models.PostStatusDeleted {
		now := time.Now().UTC()
		p.Status = models.PostStatusDeleted
		p.DeletedAt = &now
	}
	return nil
}

type payout struct {
	Ref    string
	To     string
	Amount int64
}

type fakeEscrow struct {
	mu            sync.Mutex
	depositStatus ton.FundStatus
	depositErr    error
	releaseErr    error
	refundErr     error
	releases      []payout
	refunds       []payout
}

func (e *fakeEscrow) CheckDeposit(ctx context.Context, dealRef string, amount int64) (ton.FundStatus, error) {
	return e.depositStatus, e.depositErr
}

func (e *fakeEscrow) Release(ctx context.Context, dealRef, toAddress string, amount int64) error {
	if e.releaseErr != nil {
		return e.releaseErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releases = append(e.releases, payout{dealRef, toAddress, amount})
	return nil
}

func (e *fakeEscrow) Refund(ctx context.Context, dealRef, toAddress string, amount int64) error {
	if e.refundErr != nil {
		return e.refundErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refunds = append(e.refunds, payout{dealRef, toAddress, amount})
	return nil
}

type fakeMessenger struct {
	mu         sync.Mutex
	nextMsgID  int64
	exists     bool
	existsErr  error
	publishErr error
	deleteErr  error
	published  []string
	deleted    []int64
	unpinned   []int64
}

func (m *fakeMessenger) Publish(ctx context.Context, channelID int64, content string) (int64, error) {
	if m.publishErr != nil {
		return 0, m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsgID++
	m.published = append(m.published, content)
	return m.nextMsgID, nil
}

func (m *fakeMessenger) MessageExists(ctx context.Context, channelID, messageID int64) (bool, error) {
	return m.exists, m.existsErr
}

func (m *fakeMessenger) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) PinMessage(ctx context.Context, chatID, messageID int64) error {
	return nil
}

func (m *fakeMessenger) UnpinMessage(ctx context.Context, chatID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unpinned = append(m.unpinned, messageID)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Notify(ctx context.Context, userID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []Event
}

func (e *fakeEvents) Publish(ctx context.Context, event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type enqueuedJob struct {
	Queue   string
	Type    string
	Payload interface{}
	Opts    scheduler.Options
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []enqueuedJob
}

func (j *fakeJobs) Enqueue(ctx context.Context, queue, jobType string, payload interface{}, opts scheduler.Options) (*scheduler.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs = append(j.jobs, enqueuedJob{Queue: queue, Type: jobType, Payload: payload, Opts: opts})
	return &scheduler.Job{ID: uuid.New().String(), Queue: queue, Type: jobType}, nil
}

func (j *fakeJobs) typesEnqueued() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, job := range j.jobs {
		out = append(out, job.Type)
	}
	return out
}

type fakeStats struct {
	count int64
	ok    bool
}

func (s *fakeStats) SubscriberCount(ctx context.Context, channelID int64) (int64, bool, error) {
	return s.count, s.ok, nil
}

type testEnv struct {
	svc       *Service
	repo      *memRepo
	escrow    *fakeEscrow
	messenger *fakeMessenger
	notifier  *fakeNotifier
	events    *fakeEvents
	jobs      *fakeJobs
	stats     *fakeStats
	cfg       *config.Config
}

func newTestEnv() *testEnv {
	cfg := &config.Config{}
	cfg.Deals.MinAmount = 1_000_000_000
	cfg.Deals.MaxAmount = 100_000_000_000_000
	cfg.Deals.FeePercent = 5
	cfg.Deals.MaxRevisions = 3
	cfg.Deals.PaymentDeadline = 24 * time.Hour
	cfg.Deals.CreativeDeadline = 48 * time.Hour
	cfg.Deals.WarningWindow = time.Hour

	env := &testEnv{
		repo:      newMemRepo(),
		escrow:    &fakeEscrow{depositStatus: ton.FundConfirmed},
		messenger: &fakeMessenger{exists: true},
		notifier:  &fakeNotifier{},
		events:    &fakeEvents{},
		jobs:      &fakeJobs{},
		stats:     &fakeStats{},
		cfg:       cfg,
	}
	env.svc = NewService(env.repo, env.escrow, env.messenger, env.notifier,
		env.events, env.jobs, env.stats, cfg)
	return env
}

// seedDeal inserts a deal directly in the given status, bypassing the state
// machine.
func (env *testEnv) seedDeal(status string, mutate func(*models.Deal)) *models.Deal {
	deal := &models.Deal{
		ID:            uuid.New(),
		Ref:           newDealRef(),
		AdvertiserID:  100,
		OwnerID:       200,
		ChannelID:     -1001,
		AdFormat:      "post",
		AmountNano:    10_000_000_000,
		DurationHours: 48,
		Status:        status,
		Brief:         "launch announcement",
		RefundAddress: "EQAdvertiser",
		PayoutAddress: "EQOwner",
	}
	if mutate != nil {
		mutate(deal)
	}
	if err := env.repo.Create(context.Background(), deal); err != nil {
		panic(err)
	}
	return deal
}

// seedPost inserts a placement record for a deal.
func (env *testEnv) seedPost(deal *models.Deal, status string, messageID int64) *models.PublishedPost {
	post := &models.PublishedPost{
		ID:        uuid.New(),
		DealID:    deal.ID,
		ChannelID: deal.ChannelID,
		Status:    status,
	}
	if status == models.PostStatusPublished {
		now := time.Now().UTC()
		post.ExternalMessageID = &messageID
		post.PublishedAt = &now
	}
	if err := env.repo.CreatePost(context.Background(), post); err != nil {
		panic(err)
	}
	return post
}
