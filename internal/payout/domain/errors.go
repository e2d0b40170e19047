package domain

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidPayeeAddress  = errors.New("invalid_payee_address")
	ErrBookingNotFound      = errors.New("booking_not_found")
	ErrBookingNotPaid       = errors.New("booking_not_paid")
	ErrPartyMismatch        = errors.New("party_mismatch")
	ErrRefundExceedsBooking = errors.New("refund_exceeds_booking")
	ErrAlreadyProcessed     = errors.New("already_processed")
	ErrRetryPending         = errors.New("retry_pending")
	ErrConcurrentRequest    = errors.New("concurrent_request")
	ErrPayoutNotFound       = errors.New("payout_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrPayoutNotInReview    = errors.New("payout_not_in_review")
	ErrPayoutNotRetryable   = errors.New("payout_not_retryable")
	ErrRetriesExhausted     = errors.New("retries_exhausted")
	ErrDailyLimitExceeded   = errors.New("daily_limit_exceeded")
	ErrReasonRequired       = errors.New("reason_required")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrInvalidTimeRange     = errors.New("invalid_time_range")
	ErrReceiptUnavailable   = errors.New("receipt_unavailable")
	ErrInvalidMethod        = errors.New("invalid_method")
	ErrInvalidStatusFilter  = errors.New("invalid_status")
	ErrGatewayNotConfigured = errors.New("gateway_not_configured")
)
