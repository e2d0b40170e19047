package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
)

// SettlementService handles inbound payout and refund triggers.
type SettlementService interface {
	RequestPayout(ctx context.Context, req PayoutRequest) (SettlementResult, error)
	RequestRefund(ctx context.Context, req RefundRequest) (SettlementResult, error)
}

type ListRequest struct {
	Status    string
	Method    string
	BookingID int64
	From      *time.Time
	To        *time.Time
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Payouts []Payout `json:"payouts"`
}

type ReviewRequest struct {
	ID    snowflake.ID
	Actor string
	Note  string
}

type RetryRequest struct {
	BookingID int64
	Method    Method
	Actor     string
	// Force allows a retry past the configured attempt limit.
	Force bool
}

// AdminService is the operator surface over the ledger.
type AdminService interface {
	Get(ctx context.Context, id snowflake.ID) (Payout, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Attempts(ctx context.Context, id snowflake.ID) ([]Attempt, error)
	Transitions(ctx context.Context, id snowflake.ID) ([]Transition, error)
	Approve(ctx context.Context, req ReviewRequest) (SettlementResult, error)
	Reject(ctx context.Context, req ReviewRequest) (Payout, error)
	Retry(ctx context.Context, req RetryRequest) (SettlementResult, error)
}

type SweepResult struct {
	Claimed   int
	Completed int
	Failed    int
	Deferred  int
}

// SweepService is driven by the scheduler.
type SweepService interface {
	RetryFailed(ctx context.Context, limit int) (SweepResult, error)
	RecoverStale(ctx context.Context, limit int) (int, error)
}
