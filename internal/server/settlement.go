package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"go.uber.org/zap"
)

type payoutRequestBody struct {
	BookingID      int64  `json:"booking_id"`
	OwnerID        int64  `json:"owner_id"`
	RenterID       int64  `json:"renter_id"`
	TotalAmount    string `json:"total_amount"`
	ServiceFee     string `json:"service_fee"`
	InsuranceFee   string `json:"insurance_fee"`
	CouponDiscount string `json:"coupon_discount"`
	PayeeAddress   string `json:"payee_address"`
	AddressType    string `json:"address_type"`
}

type refundRequestBody struct {
	BookingID    int64  `json:"booking_id"`
	RenterID     int64  `json:"renter_id"`
	Amount       string `json:"amount"`
	PayeeAddress string `json:"payee_address"`
	AddressType  string `json:"address_type"`
	Reason       string `json:"reason"`
}

func (s *Server) RequestPayout(c *gin.Context) {
	var body payoutRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amounts, err := parseAmounts(body)
	if err != nil {
		s.auditInvalidRequest(c, payoutdomain.MethodPayout, body.BookingID, err)
		AbortWithError(c, err)
		return
	}
	hint, err := parseAddressType(body.AddressType)
	if err != nil {
		s.auditInvalidRequest(c, payoutdomain.MethodPayout, body.BookingID, err)
		AbortWithError(c, err)
		return
	}

	ctx := obscontext.WithBookingID(c.Request.Context(), strconv.FormatInt(body.BookingID, 10))
	result, err := s.settlementSvc.RequestPayout(ctx, payoutdomain.PayoutRequest{
		BookingID:       body.BookingID,
		OwnerID:         body.OwnerID,
		RenterID:        body.RenterID,
		Amounts:         amounts,
		PayeeAddress:    body.PayeeAddress,
		AddressTypeHint: hint,
	})
	s.respondSettlement(c, result, err)
}

func (s *Server) RequestRefund(c *gin.Context) {
	var body refundRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount, err := payoutdomain.ParseAmount(body.Amount)
	if err != nil {
		err = newValidationError("amount", "invalid_amount", "amount must be a positive decimal with at most two fractional digits")
		s.auditInvalidRequest(c, payoutdomain.MethodRefund, body.BookingID, err)
		AbortWithError(c, err)
		return
	}
	hint, err := parseAddressType(body.AddressType)
	if err != nil {
		s.auditInvalidRequest(c, payoutdomain.MethodRefund, body.BookingID, err)
		AbortWithError(c, err)
		return
	}

	ctx := obscontext.WithBookingID(c.Request.Context(), strconv.FormatInt(body.BookingID, 10))
	result, err := s.settlementSvc.RequestRefund(ctx, payoutdomain.RefundRequest{
		BookingID:       body.BookingID,
		RenterID:        body.RenterID,
		Amount:          amount,
		PayeeAddress:    body.PayeeAddress,
		AddressTypeHint: hint,
		Reason:          strings.TrimSpace(body.Reason),
	})
	s.respondSettlement(c, result, err)
}

// respondSettlement reports the outcome to the booking subsystem. A
// duplicate still carries the existing record so the caller can reconcile.
func (s *Server) respondSettlement(c *gin.Context, result payoutdomain.SettlementResult, err error) {
	if err != nil {
		if errors.Is(err, payoutdomain.ErrAlreadyProcessed) || errors.Is(err, payoutdomain.ErrRetryPending) {
			status, payload := mapError(err)
			c.JSON(status, gin.H{"data": result, "error": payload})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(statusForOutcome(result.Outcome), gin.H{"data": result})
}

// auditInvalidRequest records triggers refused before they reach the
// orchestrator, which audits its own refusals.
func (s *Server) auditInvalidRequest(c *gin.Context, method payoutdomain.Method, bookingID int64, err error) {
	if s.auditSvc == nil {
		return
	}
	code := validationErrorCode(err)
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		code = vErr.Errors[0].Code
	}
	targetID := strconv.FormatInt(bookingID, 10)
	if auditErr := s.auditSvc.AuditLog(c.Request.Context(), "", nil, auditdomain.ActionRequestInvalid, "booking", &targetID, map[string]any{
		"method": string(method),
		"error":  code,
	}); auditErr != nil {
		s.log.Warn("audit invalid settlement request failed", zap.Error(auditErr))
	}
}

func statusForOutcome(outcome payoutdomain.Outcome) int {
	switch outcome {
	case payoutdomain.OutcomeAcceptedAndQueued, payoutdomain.OutcomeAcceptedForReview:
		return http.StatusAccepted
	case payoutdomain.OutcomeRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

func parseAmounts(body payoutRequestBody) (payoutdomain.Amounts, error) {
	total, err := payoutdomain.ParseAmount(body.TotalAmount)
	if err != nil {
		return payoutdomain.Amounts{}, newValidationError("total_amount", "invalid_amount", "total_amount must be a non-negative decimal with at most two fractional digits")
	}
	serviceFee, err := payoutdomain.ParseOptionalAmount(body.ServiceFee)
	if err != nil {
		return payoutdomain.Amounts{}, newValidationError("service_fee", "invalid_amount", "service_fee must be a non-negative decimal")
	}
	insuranceFee, err := payoutdomain.ParseOptionalAmount(body.InsuranceFee)
	if err != nil {
		return payoutdomain.Amounts{}, newValidationError("insurance_fee", "invalid_amount", "insurance_fee must be a non-negative decimal")
	}
	couponDiscount, err := payoutdomain.ParseOptionalAmount(body.CouponDiscount)
	if err != nil {
		return payoutdomain.Amounts{}, newValidationError("coupon_discount", "invalid_amount", "coupon_discount must be a non-negative decimal")
	}
	return payoutdomain.Amounts{
		Total:          total,
		ServiceFee:     serviceFee,
		InsuranceFee:   insuranceFee,
		CouponDiscount: couponDiscount,
	}, nil
}

func parseAddressType(raw string) (payoutdomain.AddressType, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", nil
	}
	hint := payoutdomain.AddressType(trimmed)
	if !hint.Valid() {
		return "", newValidationError("address_type", "invalid_address_type", "address_type must be one of tax_id, email, phone, random_key")
	}
	return hint, nil
}
