package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
)

type listPayoutsQuery struct {
	Status    string `form:"status"`
	Method    string `form:"method"`
	BookingID string `form:"booking_id"`
	From      string `form:"from"`
	To        string `form:"to"`
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type reviewRequestBody struct {
	Reason string `json:"reason"`
}

type retryRequestBody struct {
	Method string `json:"method"`
	Force  bool   `json:"force"`
}

// payoutResponse adds display amounts next to the minor units.
type payoutResponse struct {
	payoutdomain.Payout
	TotalAmountFormatted    string `json:"total_amount_formatted"`
	ServiceFeeFormatted     string `json:"service_fee_formatted"`
	InsuranceFeeFormatted   string `json:"insurance_fee_formatted"`
	CouponDiscountFormatted string `json:"coupon_discount_formatted"`
	NetAmountFormatted      string `json:"net_amount_formatted"`
}

func newPayoutResponse(p payoutdomain.Payout) payoutResponse {
	return payoutResponse{
		Payout:                  p,
		TotalAmountFormatted:    payoutdomain.FormatMinor(p.TotalAmount),
		ServiceFeeFormatted:     payoutdomain.FormatMinor(p.ServiceFee),
		InsuranceFeeFormatted:   payoutdomain.FormatMinor(p.InsuranceFee),
		CouponDiscountFormatted: payoutdomain.FormatMinor(p.CouponDiscount),
		NetAmountFormatted:      payoutdomain.FormatMinor(p.NetAmount),
	}
}

func (s *Server) ListPayouts(c *gin.Context) {
	var query listPayoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	bookingID, err := parseOptionalInt64(query.BookingID)
	if err != nil || (bookingID != nil && *bookingID <= 0) {
		AbortWithError(c, newValidationError("booking_id", "invalid_booking_id", "invalid booking_id"))
		return
	}
	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	req := payoutdomain.ListRequest{
		Status:    strings.TrimSpace(query.Status),
		Method:    strings.TrimSpace(query.Method),
		From:      from,
		To:        to,
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	}
	if bookingID != nil {
		req.BookingID = *bookingID
	}

	resp, err := s.adminSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]payoutResponse, 0, len(resp.Payouts))
	for _, p := range resp.Payouts {
		data = append(data, newPayoutResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "page_info": resp.PageInfo})
}

func (s *Server) GetPayout(c *gin.Context) {
	id, err := parsePayoutID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	p, err := s.adminSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPayoutResponse(p)})
}

func (s *Server) ListPayoutAttempts(c *gin.Context) {
	id, err := parsePayoutID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	attempts, err := s.adminSvc.Attempts(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if attempts == nil {
		attempts = []payoutdomain.Attempt{}
	}

	c.JSON(http.StatusOK, gin.H{"data": attempts})
}

func (s *Server) ListPayoutTransitions(c *gin.Context) {
	id, err := parsePayoutID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	transitions, err := s.adminSvc.Transitions(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if transitions == nil {
		transitions = []payoutdomain.Transition{}
	}

	c.JSON(http.StatusOK, gin.H{"data": transitions})
}

func (s *Server) ApprovePayout(c *gin.Context) {
	id, err := parsePayoutID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body reviewRequestBody
	if err := bindOptionalJSON(c, &body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actor, ok := s.reviewActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.adminSvc.Approve(c.Request.Context(), payoutdomain.ReviewRequest{
		ID:    id,
		Actor: actor,
		Note:  strings.TrimSpace(body.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RejectPayout(c *gin.Context) {
	id, err := parsePayoutID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body reviewRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(body.Reason) == "" {
		AbortWithError(c, newValidationError("reason", "reason_required", "reason is required"))
		return
	}

	actor, ok := s.reviewActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	p, err := s.adminSvc.Reject(c.Request.Context(), payoutdomain.ReviewRequest{
		ID:    id,
		Actor: actor,
		Note:  strings.TrimSpace(body.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPayoutResponse(p)})
}

func (s *Server) RetryBooking(c *gin.Context) {
	bookingID, err := parseOptionalInt64(c.Param("booking_id"))
	if err != nil || bookingID == nil || *bookingID <= 0 {
		AbortWithError(c, newValidationError("booking_id", "invalid_booking_id", "invalid booking_id"))
		return
	}

	var body retryRequestBody
	if err := bindOptionalJSON(c, &body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	method := payoutdomain.MethodPayout
	if raw := strings.ToLower(strings.TrimSpace(body.Method)); raw != "" {
		method = payoutdomain.Method(raw)
		if !method.Valid() {
			AbortWithError(c, newValidationError("method", "invalid_method", "method must be payout or refund"))
			return
		}
	}

	actor, ok := s.reviewActor(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.adminSvc.Retry(c.Request.Context(), payoutdomain.RetryRequest{
		BookingID: *bookingID,
		Method:    method,
		Actor:     actor,
		Force:     body.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func parsePayoutID(c *gin.Context) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		return 0, newValidationError("id", "invalid_id", "invalid payout id")
	}
	return *id, nil
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}
