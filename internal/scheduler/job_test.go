package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayExponential(t *testing.T) {
	base := 10 * time.Second
	max := 10 * time.Minute

	assert.Equal(t, 10*time.Second, NextDelay(BackoffExponential, base, 1, max))
	assert.Equal(t, 20*time.Second, NextDelay(BackoffExponential, base, 2, max))
	assert.Equal(t, 50*time.Second, NextDelay(BackoffExponential, base, 5, max))
}

func TestNextDelayCapped(t *testing.T) {
	assert.Equal(t, time.Minute, NextDelay(BackoffExponential, 30*time.Second, 100, time.Minute))
}

func TestNextDelayFixed(t *testing.T) {
	base := 15 * time.Second
	assert.Equal(t, base, NextDelay(BackoffFixed, base, 1, 0))
	assert.Equal(t, base, NextDelay(BackoffFixed, base, 7, 0))
}

func TestNextDelayDefaults(t *testing.T) {
	// Zero base and below-range attempts fall back to sane values.
	assert.Equal(t, time.Second, NextDelay(BackoffExponential, 0, 0, 0))
}

func TestOutcomeConstructors(t *testing.T) {
	ok := Success()
	assert.Equal(t, ResultSuccess, ok.Result)
	assert.NoError(t, ok.Err)

	cause := errors.New("boom")
	retry := Retry(cause)
	assert.Equal(t, ResultRetry, retry.Result)
	assert.Equal(t, cause, retry.Err)

	perm := Permanent(cause)
	assert.Equal(t, ResultPermanentFailure, perm.Result)
	assert.Equal(t, cause, perm.Err)
}

func TestHandlerRegistryResolution(t *testing.T) {
	s := &Scheduler{handlers: make(map[string]HandlerFunc), queues: make(map[string]bool)}
	s.Register("deals", "deal.expire", func(ctx context.Context, job *Job) Outcome { return Success() })

	_, ok := s.resolve("deals", "deal.expire")
	assert.True(t, ok)
	_, ok = s.resolve("deals", "deal.unknown")
	assert.False(t, ok)
	_, ok = s.resolve("other", "deal.expire")
	assert.False(t, ok)
}
