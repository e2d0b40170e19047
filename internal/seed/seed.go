package seed

import (
	"context"
	"errors"
	"time"

	accountdomain "github.com/smallbiznis/payoutd/internal/account/domain"
	bookingdomain "github.com/smallbiznis/payoutd/internal/booking/domain"
	"gorm.io/gorm"
)

// Fixed ids keep the fixtures stable across runs so local curl scripts can
// target them directly.
const (
	DevOwnerID        int64 = 1001
	DevRenterID       int64 = 2001
	DevNewOwnerID     int64 = 1002
	DevVehicleID      int64 = 3001
	DevPaidBookingID  int64 = 5001
	DevCancelledID    int64 = 5002
	DevPendingID      int64 = 5003
	DevNewOwnerBookID int64 = 5004

	devCurrency = "BRL"
)

// Fixtures lists what EnsureDevFixtures guarantees to exist.
type Fixtures struct {
	Accounts []accountdomain.Account
	Bookings []bookingdomain.Booking
}

// EnsureDevFixtures seeds the party lookup tables with a small marketplace:
// an established owner, a freshly registered owner, a renter, and bookings
// in each state the settlement flow distinguishes. Rows that already exist
// are left untouched.
func EnsureDevFixtures(ctx context.Context, db *gorm.DB, now time.Time) (Fixtures, error) {
	if db == nil {
		return Fixtures{}, errors.New("seed database handle is required")
	}
	now = now.UTC()
	established := now.AddDate(-1, 0, 0)
	paidAt := now.Add(-2 * time.Hour)

	fixtures := Fixtures{
		Accounts: []accountdomain.Account{
			{ID: DevOwnerID, DisplayName: "Ana Souza", Email: "ana.owner@example.com", CreatedAt: &established, ProfileUpdatedAt: &established},
			{ID: DevNewOwnerID, DisplayName: "Bruno Lima", Email: "bruno.owner@example.com", CreatedAt: &now, ProfileUpdatedAt: &now},
			{ID: DevRenterID, DisplayName: "Carla Dias", Email: "carla.renter@example.com", CreatedAt: &established, ProfileUpdatedAt: &established},
		},
		Bookings: []bookingdomain.Booking{
			devBooking(DevPaidBookingID, DevOwnerID, bookingdomain.StatusPaid, 150000, &paidAt, now),
			devBooking(DevCancelledID, DevOwnerID, bookingdomain.StatusCancelled, 90000, &paidAt, now),
			devBooking(DevPendingID, DevOwnerID, bookingdomain.StatusPending, 45000, nil, now),
			devBooking(DevNewOwnerBookID, DevNewOwnerID, bookingdomain.StatusCompleted, 320000, &paidAt, now),
		},
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range fixtures.Accounts {
			if err := ensureRow(ctx, tx, &fixtures.Accounts[i], fixtures.Accounts[i].ID); err != nil {
				return err
			}
		}
		for i := range fixtures.Bookings {
			if err := ensureRow(ctx, tx, &fixtures.Bookings[i], fixtures.Bookings[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Fixtures{}, err
	}
	return fixtures, nil
}

func devBooking(id, ownerID int64, status bookingdomain.Status, total int64, paidAt *time.Time, now time.Time) bookingdomain.Booking {
	return bookingdomain.Booking{
		ID:          id,
		VehicleID:   DevVehicleID,
		OwnerID:     ownerID,
		RenterID:    DevRenterID,
		Status:      status,
		TotalAmount: total,
		Currency:    devCurrency,
		PaidAt:      paidAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ensureRow inserts row unless a row with id already exists, in which case
// row is overwritten with the stored values.
func ensureRow[T any](ctx context.Context, tx *gorm.DB, row *T, id int64) error {
	var existing T
	err := tx.WithContext(ctx).Where("id = ?", id).First(&existing).Error
	if err == nil {
		*row = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return tx.WithContext(ctx).Create(row).Error
}
