package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIdempotencyKey(t *testing.T) {
	a := DeriveIdempotencyKey("secret", 100, MethodPayout, 1)
	assert.Len(t, a, 64)
	assert.Equal(t, a, DeriveIdempotencyKey("secret", 100, MethodPayout, 1))

	assert.NotEqual(t, a, DeriveIdempotencyKey("secret", 100, MethodPayout, 2))
	assert.NotEqual(t, a, DeriveIdempotencyKey("secret", 100, MethodRefund, 1))
	assert.NotEqual(t, a, DeriveIdempotencyKey("secret", 101, MethodPayout, 1))
	assert.NotEqual(t, a, DeriveIdempotencyKey("other", 100, MethodPayout, 1))

	long := string(make([]byte, 200))
	assert.Len(t, DeriveIdempotencyKey(long, 100, MethodPayout, 1), 64)
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusPendingReview, StatusProcessing},
		{StatusPendingReview, StatusManualReview},
		{StatusPendingReview, StatusRejected},
		{StatusManualReview, StatusProcessing},
		{StatusManualReview, StatusRejected},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusFailed, StatusProcessing},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusCompleted, StatusProcessing},
		{StatusCompleted, StatusFailed},
		{StatusRejected, StatusProcessing},
		{StatusRejected, StatusManualReview},
		{StatusProcessing, StatusPendingReview},
		{StatusFailed, StatusCompleted},
		{StatusManualReview, StatusCompleted},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusRejected))
	assert.False(t, IsTerminal(StatusFailed))
	assert.True(t, HoldsSlot(StatusFailed))
	assert.False(t, HoldsSlot(StatusRejected))
}

func TestSettlementRequestVariants(t *testing.T) {
	var req SettlementRequest = PayoutRequest{BookingID: 1, OwnerID: 2, RenterID: 3, Amounts: Amounts{Total: 100}}
	assert.Equal(t, MethodPayout, req.Method())
	assert.Equal(t, int64(2), req.Payee())

	req = RefundRequest{BookingID: 1, RenterID: 3, Amount: 500}
	assert.Equal(t, MethodRefund, req.Method())
	assert.Equal(t, int64(3), req.Payee())
	assert.Equal(t, int64(500), req.Money().Net())
}
