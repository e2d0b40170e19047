package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/payoutd/pkg/db/pagination"
)

const (
	ActionRequestInvalid  = "settlement.request_invalid"
	ActionRequestAccepted = "settlement.request_accepted"
	ActionRequestRejected = "settlement.request_rejected"
	ActionPayoutApproved  = "payout.approved"
	ActionPayoutRejected  = "payout.rejected"
	ActionPayoutRetried   = "payout.retried"
	ActionPayoutExported  = "payout.exported"
	ActionAPIKeyCreated   = "api_key.created"
	ActionAPIKeyRevoked   = "api_key.revoked"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	// BookingID selects the whole settlement trail of one booking.
	BookingID  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
