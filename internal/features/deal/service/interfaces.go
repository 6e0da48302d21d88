package service

import (
	"context"

	"adboard-backend/internal/platform/ton"
	"adboard-backend/internal/scheduler"
)

// EscrowCollaborator holds and moves deal funds. The engine never assumes a
// deposit succeeded without an explicit confirmed answer from it.
type EscrowCollaborator interface {
	CheckDeposit(ctx context.Context, dealRef string, amount int64) (ton.FundStatus, error)
	Release(ctx context.Context, dealRef, toAddress string, amount int64) error
	Refund(ctx context.Context, dealRef, toAddress string, amount int64) error
}

// Messenger is the channel messaging collaborator (publish, existence probe,
// delete, pin management). Implemented by platform/telegram.
type Messenger interface {
	Publish(ctx context.Context, channelID int64, content string) (int64, error)
	MessageExists(ctx context.Context, channelID, messageID int64) (bool, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	PinMessage(ctx context.Context, chatID, messageID int64) error
	UnpinMessage(ctx context.Context, chatID, messageID int64) error
}

// Notifier delivers fire-and-forget messages to deal parties. Failures are
// logged by implementations and never fail the calling operation.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string)
}

// EventPublisher emits domain events for downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// JobEnqueuer schedules enforcement and deadline jobs. Satisfied by
// *scheduler.Scheduler.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, queue, jobType string, payload interface{}, opts scheduler.Options) (*scheduler.Job, error)
}

// StatsReader exposes the trust signal the deal engine consults before
// verification. ok is false while no snapshot has been collected yet.
type StatsReader interface {
	SubscriberCount(ctx context.Context, channelID int64) (count int64, ok bool, err error)
}
