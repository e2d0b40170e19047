package seed

import (
	"context"
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/payoutd/internal/account/domain"
	bookingdomain "github.com/smallbiznis/payoutd/internal/booking/domain"
	"github.com/smallbiznis/payoutd/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDevFixturesIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	first, err := EnsureDevFixtures(ctx, db, now)
	require.NoError(t, err)
	assert.Len(t, first.Accounts, 3)
	assert.Len(t, first.Bookings, 4)

	second, err := EnsureDevFixtures(ctx, db, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, second.Bookings, 4)

	var accounts int64
	require.NoError(t, db.Model(&accountdomain.Account{}).Count(&accounts).Error)
	assert.EqualValues(t, 3, accounts)

	var booking bookingdomain.Booking
	require.NoError(t, db.Where("id = ?", DevPaidBookingID).First(&booking).Error)
	assert.Equal(t, bookingdomain.StatusPaid, booking.Status)
	assert.True(t, booking.PayoutEligible())
	assert.EqualValues(t, 150000, booking.TotalAmount)
	assert.True(t, second.Bookings[0].UpdatedAt.Equal(now))
}

func TestEnsureDevFixturesCoversSettlementStates(t *testing.T) {
	db := testutil.OpenDB(t)

	fixtures, err := EnsureDevFixtures(context.Background(), db, time.Now())
	require.NoError(t, err)

	byID := map[int64]bookingdomain.Booking{}
	for _, b := range fixtures.Bookings {
		byID[b.ID] = b
	}
	assert.True(t, byID[DevPaidBookingID].PayoutEligible())
	assert.True(t, byID[DevCancelledID].RefundEligible())
	assert.False(t, byID[DevPendingID].PayoutEligible())
	assert.Equal(t, DevNewOwnerID, byID[DevNewOwnerBookID].OwnerID)
}

func TestEnsureDevFixturesRequiresHandle(t *testing.T) {
	_, err := EnsureDevFixtures(context.Background(), nil, time.Now())
	assert.Error(t, err)
}
