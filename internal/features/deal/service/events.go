package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Domain event types published on the deal event stream.
const (
	EventDealCreated       = "deal.created"
	EventDealAccepted      = "deal.accepted"
	EventDealFunded        = "deal.funded"
	EventCreativeSubmitted = "deal.creative.submitted"
	EventRevisionRequested = "deal.creative.revision_requested"
	EventCreativeApproved  = "deal.creative.approved"
	EventDealPosted        = "deal.posted"
	EventDealVerified      = "deal.verified"
	EventDealCompleted     = "deal.completed"
	EventDealDisputed      = "deal.disputed"
	EventDealRefunded      = "deal.refunded"
	EventDealCancelled     = "deal.cancelled"
	EventDealExpired       = "deal.expired"
	EventPostMissing       = "post.missing"
	EventPostExpiryWarning = "post.expiry.warning"
	EventPostDurationEnded = "post.duration.ended"
)

// EventStream is the Redis stream carrying deal domain events.
const EventStream = "deal:events"

// Event is one domain event. Consumers read it from the Redis stream and fan
// out notifications; nothing in the core waits on them.
type Event struct {
	Type         string
	DealID       string
	Status       string
	ActorID      int64
	AdvertiserID int64
	OwnerID      int64
	At           time.Time
}

type redisEventPublisher struct {
	rdb *redis.Client
}

func NewRedisEventPublisher(rdb *redis.Client) EventPublisher {
	return &redisEventPublisher{rdb: rdb}
}

func (p *redisEventPublisher) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStream,
		Values: map[string]interface{}{
			"type":          event.Type,
			"deal_id":       event.DealID,
			"status":        event.Status,
			"actor_id":      strconv.FormatInt(event.ActorID, 10),
			"advertiser_id": strconv.FormatInt(event.AdvertiserID, 10),
			"owner_id":      strconv.FormatInt(event.OwnerID, 10),
			"at":            event.At.Format(time.RFC3339),
		},
	}).Err()
}
