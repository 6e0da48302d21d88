package scheduler

import (
	"context"
	"encoding/json"
	"time"
)

// Backoff selects the delay strategy between retry attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// Job is one unit of scheduled work. The payload is opaque to the scheduler.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     Backoff         `json:"backoff"`
	BaseDelay   time.Duration   `json:"base_delay"`
	NotBefore   time.Time       `json:"not_before"`
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Options controls enqueue behavior. Zero values fall back to scheduler
// defaults.
type Options struct {
	// Delay postpones the first execution by this offset.
	Delay time.Duration
	// NotBefore sets an absolute earliest execution time. Takes precedence
	// over Delay when non-zero.
	NotBefore time.Time
	// MaxAttempts bounds total deliveries, including the first.
	MaxAttempts int
	Backoff     Backoff
	BaseDelay   time.Duration
	// DedupeKey drops the job at enqueue time if a job with the same key has
	// already completed successfully.
	DedupeKey string
}

// Result classifies a handler's outcome. Retry decisions are explicit return
// values, never exceptions smuggled through panics.
type Result int

const (
	ResultSuccess Result = iota
	ResultRetry
	ResultPermanentFailure
)

// Outcome pairs a result with the error that produced it.
type Outcome struct {
	Result Result
	Err    error
}

func Success() Outcome {
	return Outcome{Result: ResultSuccess}
}

// Retry asks for redelivery with backoff. Attempts are bounded by the job's
// MaxAttempts.
func Retry(err error) Outcome {
	return Outcome{Result: ResultRetry, Err: err}
}

// Permanent marks the job failed without further retries. It lands in the
// dead letter list and raises an operational alert.
func Permanent(err error) Outcome {
	return Outcome{Result: ResultPermanentFailure, Err: err}
}

// HandlerFunc processes one job delivery. Delivery is at-least-once: handlers
// must re-read domain state and treat "already in target state" as success.
type HandlerFunc func(ctx context.Context, job *Job) Outcome

// NextDelay returns the backoff delay before the given attempt (1-based).
func NextDelay(strategy Backoff, base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch strategy {
	case BackoffFixed:
		d = base
	default:
		d = time.Duration(attempt) * base
	}

	if max > 0 && d > max {
		return max
	}
	return d
}
