package workers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	go_redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adboard-backend/internal/common/logger"
	"adboard-backend/internal/features/deal/service"
	"adboard-backend/internal/platform/redis"
)

const (
	consumerGroup = "adboard_backend_consumers"
	consumerName  = "adboard_worker_1"
)

// Notifier mirrors the deal service collaborator; the consumer reuses the
// same implementation.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string)
}

// EventConsumer reads the deal event stream and fans events out as user
// notifications. The deal engine never waits on it; a lagging consumer only
// delays messages.
type EventConsumer struct {
	rdb      *redis.Client
	notifier Notifier
	log      zerolog.Logger
}

func NewEventConsumer(rdb *redis.Client, notifier Notifier) *EventConsumer {
	return &EventConsumer{
		rdb:      rdb,
		notifier: notifier,
		log:      logger.With("event-consumer"),
	}
}

// Run blocks until ctx is done.
func (w *EventConsumer) Run(ctx context.Context) {
	err := w.rdb.XGroupCreateMkStream(ctx, service.EventStream, consumerGroup, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		w.log.Error().Err(err).Msg("failed to create consumer group")
	}

	w.log.Info().Str("stream", service.EventStream).Msg("event consumer started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("event consumer stopping")
			return
		default:
		}

		entries, err := w.rdb.XReadGroup(ctx, &go_redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{service.EventStream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == go_redis.Nil || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("failed to read event stream")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range entries {
			for _, msg := range stream.Messages {
				w.processMessage(ctx, msg.Values)
				w.rdb.XAck(ctx, service.EventStream, consumerGroup, msg.ID)
			}
		}
	}
}

func (w *EventConsumer) processMessage(ctx context.Context, values map[string]interface{}) {
	eventType, _ := values["type"].(string)
	dealID, _ := values["deal_id"].(string)
	advertiserID := parseID(values["advertiser_id"])
	ownerID := parseID(values["owner_id"])

	advertiserText, ownerText := messagesFor(eventType, dealID)
	if advertiserText == "" && ownerText == "" {
		return
	}

	if advertiserText != "" {
		w.notifier.Notify(ctx, advertiserID, advertiserText)
	}
	if ownerText != "" {
		w.notifier.Notify(ctx, ownerID, ownerText)
	}
}

// messagesFor maps an event to the texts each party receives. Empty string
// means no message for that side. Enforcement-driven warnings are sent
// directly by the jobs with richer context, so they are skipped here.
func messagesFor(eventType, dealID string) (advertiser, owner string) {
	short := dealID
	if len(short) > 8 {
		short = short[:8]
	}

	switch eventType {
	case service.EventDealCreated:
		return "", fmt.Sprintf("New deal request %s awaits your review.", short)
	case service.EventDealAccepted:
		return fmt.Sprintf("Deal %s accepted. Please fund the escrow.", short), ""
	case service.EventDealFunded:
		return fmt.Sprintf("Deal %s funded.", short),
			fmt.Sprintf("Deal %s funded. Please prepare the creative.", short)
	case service.EventCreativeSubmitted:
		return fmt.Sprintf("Creative submitted for deal %s.", short), ""
	case service.EventRevisionRequested:
		return "", fmt.Sprintf("Revision requested for deal %s.", short)
	case service.EventCreativeApproved:
		return "", fmt.Sprintf("Creative approved for deal %s.", short)
	case service.EventDealPosted:
		return fmt.Sprintf("Deal %s has been posted.", short), ""
	case service.EventDealCompleted:
		return fmt.Sprintf("Deal %s completed.", short),
			fmt.Sprintf("Deal %s completed. Payout released.", short)
	case service.EventDealDisputed:
		text := fmt.Sprintf("Deal %s is now disputed.", short)
		return text, text
	case service.EventDealRefunded:
		return fmt.Sprintf("Deal %s refunded.", short),
			fmt.Sprintf("Deal %s resolved with a refund.", short)
	case service.EventDealCancelled:
		text := fmt.Sprintf("Deal %s cancelled.", short)
		return text, text
	case service.EventDealExpired:
		text := fmt.Sprintf("Deal %s expired.", short)
		return text, text
	default:
		return "", ""
	}
}

func parseID(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
