package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is the payout ledger. Every method takes the handle to run on so
// callers can compose them inside one transaction.
type Repository interface {
	// LockPayee creates the payee lock row if needed and locks it for the
	// remainder of the transaction.
	LockPayee(ctx context.Context, db *gorm.DB, payeeID int64) error
	// FindActiveByBooking returns the booking's live record of either method.
	// A booking holds at most one record that is not rejected.
	FindActiveByBooking(ctx context.Context, db *gorm.DB, bookingID int64) (*Payout, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	UpdateStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (bool, error)
	InsertTransition(ctx context.Context, db *gorm.DB, transition *Transition) error
	InsertAttempt(ctx context.Context, db *gorm.DB, attempt *Attempt) error
	FinishAttempt(ctx context.Context, db *gorm.DB, result AttemptResult) (bool, error)
	ListAttempts(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]Attempt, error)
	ListTransitions(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]Transition, error)
	// PayeeStats summarizes records created for the payee since the given time.
	// RecentAmounts holds at most recentLimit net amounts, newest first.
	PayeeStats(ctx context.Context, db *gorm.DB, payeeID int64, since time.Time, recentLimit int) (PayeeWindowStats, error)
	// SettledSum adds up completed and processing net amounts of the given
	// method settled for the payee in [from, to).
	SettledSum(ctx context.Context, db *gorm.DB, payeeID int64, method Method, from, to time.Time) (int64, error)
	ClaimRetryable(ctx context.Context, db *gorm.DB, updatedBefore time.Time, maxRetries, limit int) ([]*Payout, error)
	ClaimStale(ctx context.Context, db *gorm.DB, startedBefore time.Time, limit int) ([]*Payout, error)
	// TouchAttempt restarts the stale clock of a processing record.
	TouchAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, cursor *pagination.Cursor, limit int) ([]*Payout, error)
}

type AttemptResult struct {
	PayoutID      snowflake.ID
	AttemptNo     int
	Status        AttemptStatus
	Reference     *string
	FailureReason *string
	At            time.Time
}

type ListFilter struct {
	Status    Status
	Method    Method
	BookingID int64
	From      *time.Time
	To        *time.Time
}
