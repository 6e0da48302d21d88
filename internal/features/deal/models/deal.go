package models

import (
	"time"

	"github.com/google/uuid"
)

// Deal statuses. The graph below is the only legal set of edges; every
// mutation goes through a status CAS so an illegal edge can never persist.
const (
	DealStatusCreated                   = "created"
	DealStatusPendingPayment            = "pending_payment"
	DealStatusPaymentReceived           = "payment_received"
	DealStatusInProgress                = "in_progress"
	DealStatusCreativePending           = "creative_pending"
	DealStatusCreativeSubmitted         = "creative_submitted"
	DealStatusCreativeRevisionRequested = "creative_revision_requested"
	DealStatusCreativeApproved          = "creative_approved"
	DealStatusScheduled                 = "scheduled"
	DealStatusPosted                    = "posted"
	DealStatusVerifying                 = "verifying"
	DealStatusVerified                  = "verified"
	DealStatusCompleted                 = "completed"
	DealStatusDisputed                  = "disputed"
	DealStatusRefunded                  = "refunded"
	DealStatusCancelled                 = "cancelled"
	DealStatusExpired                   = "expired"
)

// ValidDealTransitions maps each status to the statuses reachable from it.
var ValidDealTransitions = map[string][]string{
	DealStatusCreated:                   {DealStatusPendingPayment, DealStatusCancelled, DealStatusExpired, DealStatusDisputed},
	DealStatusPendingPayment:            {DealStatusPaymentReceived, DealStatusCancelled, DealStatusExpired, DealStatusDisputed},
	DealStatusPaymentReceived:           {DealStatusInProgress, DealStatusDisputed},
	DealStatusInProgress:                {DealStatusCreativePending, DealStatusDisputed},
	DealStatusCreativePending:           {DealStatusCreativeSubmitted, DealStatusCancelled, DealStatusExpired, DealStatusDisputed},
	DealStatusCreativeSubmitted:         {DealStatusCreativeApproved, DealStatusCreativeRevisionRequested, DealStatusDisputed},
	DealStatusCreativeRevisionRequested: {DealStatusCreativeSubmitted, DealStatusDisputed},
	DealStatusCreativeApproved:          {DealStatusScheduled, DealStatusPosted, DealStatusDisputed},
	DealStatusScheduled:                 {DealStatusPosted, DealStatusDisputed},
	DealStatusPosted:                    {DealStatusVerifying, DealStatusDisputed},
	DealStatusVerifying:                 {DealStatusVerified, DealStatusDisputed},
	DealStatusVerified:                  {DealStatusCompleted, DealStatusDisputed},
	DealStatusDisputed:                  {DealStatusCompleted, DealStatusRefunded},
	DealStatusCompleted:                 {},
	DealStatusRefunded:                  {},
	DealStatusCancelled:                 {},
	DealStatusExpired:                   {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidDealTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	switch status {
	case DealStatusCompleted, DealStatusRefunded, DealStatusCancelled, DealStatusExpired:
		return true
	}
	return false
}

// Deal is a financial contract between an advertiser and a channel owner for
// one advertising placement. Amounts are nano-TON, never floating point.
type Deal struct {
	ID              uuid.UUID  `json:"id"`
	Ref             string     `json:"ref"` // human-readable reference, also the escrow transfer comment
	AdvertiserID    int64      `json:"advertiser_id"`
	OwnerID         int64      `json:"owner_id"`
	ChannelID       int64      `json:"channel_id"`
	AdFormat        string     `json:"ad_format"` // post / repost / story
	AmountNano      int64      `json:"amount_nano"`
	DurationHours   int        `json:"duration_hours"`
	Permanent       bool       `json:"permanent"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Status          string     `json:"status"`
	Brief           string     `json:"brief"`
	CreativeRef     *string    `json:"creative_ref,omitempty"`
	RevisionCount   int        `json:"revision_count"`
	SubmissionCount int        `json:"submission_count"`
	EscrowHeld      bool       `json:"escrow_held"`
	RefundAddress   string     `json:"refund_address"`
	PayoutAddress   string     `json:"payout_address"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DealStatusUpdate is an atomic compare-and-set on a deal's status plus the
// field changes that belong to the same transition.
type DealStatusUpdate struct {
	DealID    uuid.UUID
	OldStatus string
	NewStatus string
	ActorID   int64 // 0 for system transitions
	Reason    string

	SetCreativeRef *string
	SetScheduledAt *time.Time
	SetEscrowHeld  *bool
	IncRevision    bool
	IncSubmission  bool
}

// TimelineRecord is one append-only entry in a deal's audit trail.
type TimelineRecord struct {
	ID         int64     `json:"id"`
	DealID     uuid.UUID `json:"deal_id"`
	ActorID    int64     `json:"actor_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
