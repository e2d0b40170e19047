package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Booking is the read-only view of a rental owned by the booking subsystem.
type Booking struct {
	ID          int64      `json:"id"`
	VehicleID   int64      `json:"vehicle_id"`
	OwnerID     int64      `json:"owner_id"`
	RenterID    int64      `json:"renter_id"`
	Status      Status     `json:"status"`
	TotalAmount int64      `json:"total_amount"`
	Currency    string     `json:"currency"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// PayoutEligible reports whether the owner may be paid for the booking.
func (b Booking) PayoutEligible() bool {
	switch b.Status {
	case StatusPaid, StatusConfirmed, StatusCompleted:
		return true
	}
	return false
}

// RefundEligible reports whether funds may be returned to the renter.
func (b Booking) RefundEligible() bool {
	switch b.Status {
	case StatusCancelled, StatusPaid, StatusConfirmed:
		return true
	}
	return false
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Booking, error)
}
