package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, status := range []string{DealStatusCompleted, DealStatusRefunded, DealStatusCancelled, DealStatusExpired} {
		assert.True(t, IsTerminalStatus(status))
		assert.Empty(t, ValidDealTransitions[status], "terminal status %q must have no outgoing edges", status)
	}
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, IsValidTransition(DealStatusCreated, DealStatusPendingPayment))
	assert.True(t, IsValidTransition(DealStatusCreativeSubmitted, DealStatusCreativeRevisionRequested))
	assert.True(t, IsValidTransition(DealStatusCreativeRevisionRequested, DealStatusCreativeSubmitted))
	assert.True(t, IsValidTransition(DealStatusDisputed, DealStatusRefunded))

	// No shortcuts around payment or verification.
	assert.False(t, IsValidTransition(DealStatusCreated, DealStatusPosted))
	assert.False(t, IsValidTransition(DealStatusPendingPayment, DealStatusInProgress))
	assert.False(t, IsValidTransition(DealStatusPosted, DealStatusCompleted))
	assert.False(t, IsValidTransition(DealStatusCompleted, DealStatusDisputed))
	assert.False(t, IsValidTransition("bogus", DealStatusCreated))
}

func TestEveryEdgeTargetIsKnown(t *testing.T) {
	for from, targets := range ValidDealTransitions {
		for _, to := range targets {
			_, known := ValidDealTransitions[to]
			assert.True(t, known, "edge %s -> %s points at unknown status", from, to)
		}
	}
}
