package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adboard-backend/internal/common/config"
	"adboard-backend/internal/common/logger"
)

const (
	keyPrefixJob     = "jobs:data:"
	keyPrefixDone    = "jobs:done:"
	doneTTL          = 7 * 24 * time.Hour
	promoteBatchSize = 100
	popTimeout       = 5 * time.Second
)

func delayedKey(queue string) string    { return "jobs:" + queue + ":delayed" }
func readyKey(queue string) string      { return "jobs:" + queue + ":ready" }
func processingKey(queue string) string { return "jobs:" + queue + ":processing" }
func deadKey(queue string) string       { return "jobs:" + queue + ":dead" }

// Scheduler is a durable named-queue job runner backed by Redis. Delayed jobs
// wait in a per-queue sorted set scored by execution time; a promoter loop
// moves due jobs onto a ready list that worker goroutines consume through a
// processing list, so a crash mid-handler leaves the job recoverable.
type Scheduler struct {
	rdb *redis.Client
	cfg *config.Config
	log zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queues   map[string]bool

	wg sync.WaitGroup
}

func New(rdb *redis.Client, cfg *config.Config) *Scheduler {
	return &Scheduler{
		rdb:      rdb,
		cfg:      cfg,
		log:      logger.With("scheduler"),
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]bool),
	}
}

func handlerKey(queue, jobType string) string {
	return queue + "/" + jobType
}

// Register binds a handler to (queue, jobType). Must be called before Run.
func (s *Scheduler) Register(queue, jobType string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[handlerKey(queue, jobType)] = h
	s.queues[queue] = true
}

func (s *Scheduler) resolve(queue, jobType string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[handlerKey(queue, jobType)]
	return h, ok
}

// Enqueue stores a job and places it on the delayed set or the ready list.
// Returns the stored job as a handle.
func (s *Scheduler) Enqueue(ctx context.Context, queue, jobType string, payload interface{}, opts Options) (*Job, error) {
	if opts.DedupeKey != "" {
		done, err := s.rdb.Exists(ctx, keyPrefixDone+opts.DedupeKey).Result()
		if err != nil {
			return nil, fmt.Errorf("dedupe check: %w", err)
		}
		if done > 0 {
			s.log.Debug().Str("dedupe_key", opts.DedupeKey).Msg("job already completed, dropping")
			return nil, nil
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now()
	notBefore := now
	if !opts.NotBefore.IsZero() {
		notBefore = opts.NotBefore
	} else if opts.Delay > 0 {
		notBefore = now.Add(opts.Delay)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.Scheduler.MaxAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = s.cfg.Scheduler.BaseBackoff
	}
	backoff := opts.Backoff
	if backoff == "" {
		backoff = BackoffExponential
	}

	job := &Job{
		ID:          uuid.New().String(),
		Queue:       queue,
		Type:        jobType,
		Payload:     data,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		BaseDelay:   baseDelay,
		NotBefore:   notBefore,
		DedupeKey:   opts.DedupeKey,
		EnqueuedAt:  now,
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, keyPrefixJob+job.ID, raw, 0)
	if notBefore.After(now) {
		pipe.ZAdd(ctx, delayedKey(queue), redis.Z{
			Score:  float64(notBefore.Unix()),
			Member: job.ID,
		})
	} else {
		pipe.LPush(ctx, readyKey(queue), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.log.Debug().
		Str("job_id", job.ID).
		Str("queue", queue).
		Str("type", jobType).
		Time("not_before", notBefore).
		Msg("job enqueued")
	return job, nil
}

// Run starts the promoter and worker pool and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.RLock()
	queues := make([]string, 0, len(s.queues))
	for q := range s.queues {
		queues = append(queues, q)
	}
	s.mu.RUnlock()

	for _, queue := range queues {
		s.recoverOrphans(ctx, queue)

		s.wg.Add(1)
		go func(q string) {
			defer s.wg.Done()
			s.promoteLoop(ctx, q)
		}(queue)

		for i := 0; i < s.cfg.Scheduler.Workers; i++ {
			s.wg.Add(1)
			go func(q string) {
				defer s.wg.Done()
				s.workerLoop(ctx, q)
			}(queue)
		}
	}

	s.log.Info().
		Strs("queues", queues).
		Int("workers_per_queue", s.cfg.Scheduler.Workers).
		Msg("scheduler started")

	<-ctx.Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// recoverOrphans requeues jobs stranded on the processing list by a previous
// crash. Redelivery of a partially executed job is expected; handlers are
// idempotent.
func (s *Scheduler) recoverOrphans(ctx context.Context, queue string) {
	ids, err := s.rdb.LRange(ctx, processingKey(queue), 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	pipe := s.rdb.Pipeline()
	for _, id := range ids {
		pipe.RPush(ctx, readyKey(queue), id)
	}
	pipe.Del(ctx, processingKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("queue", queue).Msg("failed to recover orphaned jobs")
		return
	}
	s.log.Warn().Str("queue", queue).Int("count", len(ids)).Msg("requeued orphaned jobs")
}

// promoteLoop moves due jobs from the delayed set to the ready list. ZRem
// guards against double promotion when several processes race.
func (s *Scheduler) promoteLoop(ctx context.Context, queue string) {
	ticker := time.NewTicker(s.cfg.Scheduler.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.promoteDue(ctx, queue)
		}
	}
}

func (s *Scheduler) promoteDue(ctx context.Context, queue string) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	ids, err := s.rdb.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		s.log.Error().Err(err).Str("queue", queue).Msg("failed to read delayed jobs")
		return
	}

	for _, id := range ids {
		removed, err := s.rdb.ZRem(ctx, delayedKey(queue), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := s.rdb.LPush(ctx, readyKey(queue), id).Err(); err != nil {
			s.log.Error().Err(err).Str("job_id", id).Msg("failed to promote job")
			// Put it back so it is not lost.
			s.rdb.ZAdd(ctx, delayedKey(queue), redis.Z{Score: float64(time.Now().Unix()), Member: id})
		}
	}
}

func (s *Scheduler) workerLoop(ctx context.Context, queue string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id, err := s.rdb.BLMove(ctx, readyKey(queue), processingKey(queue), "RIGHT", "LEFT", popTimeout).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				s.log.Error().Err(err).Str("queue", queue).Msg("failed to pop job")
				time.Sleep(time.Second)
			}
			continue
		}

		s.execute(ctx, queue, id)
	}
}

func (s *Scheduler) execute(ctx context.Context, queue, id string) {
	defer s.rdb.LRem(context.WithoutCancel(ctx), processingKey(queue), 1, id)

	raw, err := s.rdb.Get(ctx, keyPrefixJob+id).Result()
	if err == redis.Nil {
		return // already completed elsewhere
	}
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("failed to load job")
		s.rdb.RPush(ctx, readyKey(queue), id)
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("corrupt job payload, dead-lettering")
		s.moveToDead(ctx, &job, queue, id)
		return
	}

	handler, ok := s.resolve(queue, job.Type)
	if !ok {
		s.log.Error().Str("job_id", id).Str("type", job.Type).Msg("no handler registered, dead-lettering")
		s.moveToDead(ctx, &job, queue, id)
		return
	}

	job.Attempts++

	handlerCtx, cancel := context.WithTimeout(ctx, s.cfg.Scheduler.HandlerTimeout)
	outcome := s.runHandler(handlerCtx, handler, &job)
	cancel()

	switch outcome.Result {
	case ResultSuccess:
		s.complete(ctx, &job)
	case ResultRetry:
		s.retry(ctx, &job, outcome.Err)
	case ResultPermanentFailure:
		s.log.Error().
			Err(outcome.Err).
			Str("job_id", job.ID).
			Str("type", job.Type).
			Msg("job failed permanently")
		s.moveToDead(ctx, &job, queue, id)
	}
}

// runHandler isolates handler panics so a bad job cannot take down a worker.
func (s *Scheduler) runHandler(ctx context.Context, handler HandlerFunc, job *Job) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Retry(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, job)
}

func (s *Scheduler) complete(ctx context.Context, job *Job) {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, keyPrefixJob+job.ID)
	if job.DedupeKey != "" {
		pipe.Set(ctx, keyPrefixDone+job.DedupeKey, 1, doneTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to finalize job")
	}
	s.log.Debug().
		Str("job_id", job.ID).
		Str("type", job.Type).
		Int("attempts", job.Attempts).
		Msg("job completed")
}

func (s *Scheduler) retry(ctx context.Context, job *Job, cause error) {
	if cause != nil {
		job.LastError = cause.Error()
	}

	if job.Attempts >= job.MaxAttempts {
		s.log.Error().
			Err(cause).
			Str("job_id", job.ID).
			Str("type", job.Type).
			Int("attempts", job.Attempts).
			Msg("job exhausted retries")
		s.moveToDead(ctx, job, job.Queue, job.ID)
		return
	}

	delay := NextDelay(job.Backoff, job.BaseDelay, job.Attempts, s.cfg.Scheduler.MaxBackoff)
	job.NotBefore = time.Now().Add(delay)

	raw, err := json.Marshal(job)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to marshal job for retry")
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, keyPrefixJob+job.ID, raw, 0)
	pipe.ZAdd(ctx, delayedKey(job.Queue), redis.Z{
		Score:  float64(job.NotBefore.Unix()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to requeue job")
		return
	}

	s.log.Warn().
		Err(cause).
		Str("job_id", job.ID).
		Str("type", job.Type).
		Int("attempt", job.Attempts).
		Dur("delay", delay).
		Msg("job scheduled for retry")
}

// moveToDead parks a failed job for operator inspection. Dead jobs are never
// silently dropped; the error log above each call site is the alert path.
func (s *Scheduler) moveToDead(ctx context.Context, job *Job, queue, id string) {
	if raw, err := json.Marshal(job); err == nil && job.ID != "" {
		s.rdb.Set(ctx, keyPrefixJob+job.ID, raw, 0)
	}
	if err := s.rdb.LPush(ctx, deadKey(queue), id).Err(); err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("failed to dead-letter job")
	}
}
