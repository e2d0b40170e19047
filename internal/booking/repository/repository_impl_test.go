package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/payoutd/internal/booking/domain"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByID(t *testing.T) {
	db := testutil.OpenDB(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.Exec(
		`INSERT INTO bookings (id, vehicle_id, owner_id, renter_id, status, total_amount, currency, paid_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		100, 55, 7, 9, domain.StatusPaid, 150_00, "BRL", now, now, now,
	).Error)

	r := Provide()
	b, err := r.FindByID(context.Background(), db, 100)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, int64(7), b.OwnerID)
	assert.True(t, b.PayoutEligible())
	assert.True(t, b.RefundEligible())

	missing, err := r.FindByID(context.Background(), db, 101)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEligibility(t *testing.T) {
	tests := []struct {
		status domain.Status
		payout bool
		refund bool
	}{
		{domain.StatusPending, false, false},
		{domain.StatusPaid, true, true},
		{domain.StatusConfirmed, true, true},
		{domain.StatusCompleted, true, false},
		{domain.StatusCancelled, false, true},
	}
	for _, tt := range tests {
		b := domain.Booking{Status: tt.status}
		assert.Equal(t, tt.payout, b.PayoutEligible(), tt.status)
		assert.Equal(t, tt.refund, b.RefundEligible(), tt.status)
	}
}
