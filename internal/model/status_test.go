package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{
		StatusReceived, StatusDigitizing, StatusVerified, StatusValidationRequired,
		StatusMatchDiscrepancy, StatusPendingApproval, StatusPaid, StatusRejected,
	} {
		assert.True(t, s.IsValid(), "status %s", s)
	}
	assert.False(t, Status("SHIPPED").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusPaid.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	for _, s := range []Status{
		StatusReceived, StatusDigitizing, StatusVerified,
		StatusValidationRequired, StatusMatchDiscrepancy, StatusPendingApproval,
	} {
		assert.False(t, s.IsTerminal(), "status %s", s)
	}
}

func TestLastActivityAt(t *testing.T) {
	received := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	processed := received.Add(2 * time.Hour)

	inv := Invoice{ReceivedAt: received}
	assert.Equal(t, received, inv.LastActivityAt())

	inv.ProcessedAt = &processed
	assert.Equal(t, processed, inv.LastActivityAt())
}
