package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/payoutd/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/authorization"
	"github.com/smallbiznis/payoutd/internal/export"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    conflictType(err),
			Message: conflictMessage(err),
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    domainCode(err),
			Message: unprocessableMessage(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, payoutdomain.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the access log the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError && err != nil {
		return payload.Type, "internal"
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, payoutdomain.ErrInvalidRequest),
		errors.Is(err, payoutdomain.ErrInvalidAmount),
		errors.Is(err, payoutdomain.ErrInvalidPayeeAddress),
		errors.Is(err, payoutdomain.ErrReasonRequired),
		errors.Is(err, payoutdomain.ErrInvalidPageToken),
		errors.Is(err, payoutdomain.ErrInvalidTimeRange),
		errors.Is(err, payoutdomain.ErrInvalidMethod),
		errors.Is(err, payoutdomain.ErrInvalidStatusFilter),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidRole),
		errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, payoutdomain.ErrPayoutNotFound),
		errors.Is(err, payoutdomain.ErrBookingNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, payoutdomain.ErrAlreadyProcessed),
		errors.Is(err, payoutdomain.ErrRetryPending),
		errors.Is(err, payoutdomain.ErrConcurrentRequest),
		errors.Is(err, payoutdomain.ErrInvalidTransition),
		errors.Is(err, payoutdomain.ErrPayoutNotInReview),
		errors.Is(err, payoutdomain.ErrPayoutNotRetryable),
		errors.Is(err, payoutdomain.ErrReceiptUnavailable):
		return true
	default:
		return false
	}
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, payoutdomain.ErrBookingNotPaid),
		errors.Is(err, payoutdomain.ErrPartyMismatch),
		errors.Is(err, payoutdomain.ErrRefundExceedsBooking),
		errors.Is(err, payoutdomain.ErrDailyLimitExceeded),
		errors.Is(err, payoutdomain.ErrRetriesExhausted),
		errors.Is(err, export.ErrExportTooLarge):
		return true
	default:
		return false
	}
}

// domainCode returns the sentinel code underneath any wrapping.
func domainCode(err error) string {
	for _, sentinel := range []error{
		payoutdomain.ErrAlreadyProcessed,
		payoutdomain.ErrRetryPending,
		payoutdomain.ErrConcurrentRequest,
		payoutdomain.ErrInvalidTransition,
		payoutdomain.ErrPayoutNotInReview,
		payoutdomain.ErrPayoutNotRetryable,
		payoutdomain.ErrReceiptUnavailable,
		payoutdomain.ErrBookingNotPaid,
		payoutdomain.ErrPartyMismatch,
		payoutdomain.ErrRefundExceedsBooking,
		payoutdomain.ErrDailyLimitExceeded,
		payoutdomain.ErrRetriesExhausted,
		export.ErrExportTooLarge,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "conflict"
}

func conflictType(err error) string {
	return domainCode(err)
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, payoutdomain.ErrAlreadyProcessed):
		return "booking already has a settlement in progress or completed"
	case errors.Is(err, payoutdomain.ErrRetryPending):
		return "booking has a failed settlement awaiting retry, retry it with POST /admin/v1/bookings/{booking_id}/retry"
	case errors.Is(err, payoutdomain.ErrConcurrentRequest):
		return "another request for this booking is in progress"
	case errors.Is(err, payoutdomain.ErrPayoutNotInReview):
		return "payout is not awaiting review"
	case errors.Is(err, payoutdomain.ErrPayoutNotRetryable):
		return "payout is not in a retryable state"
	case errors.Is(err, payoutdomain.ErrReceiptUnavailable):
		return "receipt is only available for completed payouts"
	case errors.Is(err, payoutdomain.ErrInvalidTransition):
		return "invalid status transition"
	default:
		return "conflict"
	}
}

func unprocessableMessage(err error) string {
	switch {
	case errors.Is(err, payoutdomain.ErrBookingNotPaid):
		return "booking is not paid"
	case errors.Is(err, payoutdomain.ErrPartyMismatch):
		return "request parties do not match the booking"
	case errors.Is(err, payoutdomain.ErrRefundExceedsBooking):
		return "refund amount exceeds the booking total"
	case errors.Is(err, payoutdomain.ErrDailyLimitExceeded):
		return "daily payout limit reached for payee"
	case errors.Is(err, payoutdomain.ErrRetriesExhausted):
		return "retry limit reached, use force to override"
	case errors.Is(err, export.ErrExportTooLarge):
		return "export exceeds row limit, narrow the filters"
	default:
		return "unprocessable request"
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, payoutdomain.ErrPayoutNotFound):
		return "payout not found"
	case errors.Is(err, payoutdomain.ErrBookingNotFound):
		return "booking not found"
	case errors.Is(err, apikeydomain.ErrNotFound):
		return "api key not found"
	default:
		return "not found"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, payoutdomain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, payoutdomain.ErrReasonRequired):
		return "reason_required"
	default:
		for current := err; current != nil; current = errors.Unwrap(current) {
			if errors.Unwrap(current) == nil {
				return current.Error()
			}
		}
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "reason_required":
		return "reason"
	case "invalid_payee_address":
		return "payee_address"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_amount":
		return "amounts must be non-negative decimals with at most two fractional digits and a positive net"
	case "invalid_payee_address":
		return "payee address is not a valid tax id, email, phone, or random key"
	case "reason_required":
		return "reason is required"
	case "invalid_page_token":
		return "invalid page token"
	case "invalid_time_range":
		return "from must be before to"
	default:
		return "invalid value"
	}
}
