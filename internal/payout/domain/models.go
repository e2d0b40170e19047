package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodPayout Method = "payout"
	MethodRefund Method = "refund"
)

func (m Method) Valid() bool {
	return m == MethodPayout || m == MethodRefund
}

type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusManualReview  Status = "manual_review"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusRejected      Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingReview, StatusManualReview, StatusProcessing, StatusCompleted, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// Payout is one settlement record in the ledger. Money is in minor units.
type Payout struct {
	ID               snowflake.ID                `json:"id" gorm:"primaryKey"`
	BookingID        int64                       `json:"booking_id"`
	Method           Method                      `json:"method"`
	Status           Status                      `json:"status"`
	OwnerID          *int64                      `json:"owner_id,omitempty"`
	PayeeID          int64                       `json:"payee_id"`
	RenterID         int64                       `json:"renter_id"`
	TotalAmount      int64                       `json:"total_amount"`
	ServiceFee       int64                       `json:"service_fee"`
	InsuranceFee     int64                       `json:"insurance_fee"`
	CouponDiscount   int64                       `json:"coupon_discount"`
	NetAmount        int64                       `json:"net_amount"`
	Currency         string                      `json:"currency"`
	PayeeAddress     string                      `json:"payee_address"`
	PayeeAddressType AddressType                 `json:"payee_address_type"`
	Reference        *string                     `json:"reference,omitempty"`
	FailureReason    *string                     `json:"failure_reason,omitempty"`
	Retryable        bool                        `json:"retryable"`
	RiskScore        int                         `json:"risk_score"`
	RiskFlags        datatypes.JSONSlice[string] `json:"risk_flags"`
	AttemptCount     int                         `json:"attempt_count"`
	RefundReason     *string                     `json:"refund_reason,omitempty"`
	ReviewNote       *string                     `json:"review_note,omitempty"`
	ReviewedBy       *string                     `json:"reviewed_by,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	ProcessedAt      *time.Time                  `json:"processed_at,omitempty"`
	LastAttemptAt    *time.Time                  `json:"last_attempt_at,omitempty"`
}

func (Payout) TableName() string { return "payouts" }

type AttemptStatus string

const (
	AttemptInFlight  AttemptStatus = "in_flight"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt is one submission of a payout to the transfer gateway.
type Attempt struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	PayoutID       snowflake.ID  `json:"payout_id"`
	AttemptNo      int           `json:"attempt_no"`
	IdempotencyKey string        `json:"idempotency_key"`
	Status         AttemptStatus `json:"status"`
	Reference      *string       `json:"reference,omitempty"`
	FailureReason  *string       `json:"failure_reason,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}

func (Attempt) TableName() string { return "payout_attempts" }

// Transition is an append-only record of a status change.
type Transition struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	PayoutID   snowflake.ID `json:"payout_id"`
	FromStatus *Status      `json:"from_status,omitempty"`
	ToStatus   Status       `json:"to_status"`
	Reason     *string      `json:"reason,omitempty"`
	Actor      string       `json:"actor"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func (Transition) TableName() string { return "payout_transitions" }

// StatusUpdate describes a guarded status change: it applies only while the
// record is still in From.
type StatusUpdate struct {
	ID               snowflake.ID
	From             Status
	To               Status
	At               time.Time
	Reference        *string
	FailureReason    *string
	ClearFailure     bool
	Retryable        *bool
	ProcessedAt      *time.Time
	ReviewNote       *string
	ReviewedBy       *string
	RiskScore        *int
	RiskFlags        []string
	IncrementAttempt bool
}

// PayeeWindowStats summarizes a payee's ledger activity over the risk window.
type PayeeWindowStats struct {
	Count         int
	FailedCount   int
	RecentAmounts []int64
}

// Outcome is what the inbound trigger reports back to the booking subsystem.
type Outcome string

const (
	OutcomeAcceptedAndSettled Outcome = "accepted_and_settled"
	OutcomeAcceptedAndQueued  Outcome = "accepted_and_queued"
	OutcomeAcceptedForReview  Outcome = "accepted_for_review"
	OutcomeRejected           Outcome = "rejected"
	OutcomeAlreadyProcessed   Outcome = "already_processed"
)

type SettlementResult struct {
	Outcome   Outcome      `json:"outcome"`
	PayoutID  snowflake.ID `json:"payout_id,omitempty"`
	Status    Status       `json:"status,omitempty"`
	Reference string       `json:"reference,omitempty"`
	Flags     []string     `json:"flags,omitempty"`
	Message   string       `json:"message,omitempty"`
}
