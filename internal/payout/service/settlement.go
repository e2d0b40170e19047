package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	accountdomain "github.com/smallbiznis/payoutd/internal/account/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	bookingdomain "github.com/smallbiznis/payoutd/internal/booking/domain"
	"github.com/smallbiznis/payoutd/internal/notification"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/internal/payout/risk"
	"github.com/smallbiznis/payoutd/internal/ratelimit"
	"github.com/smallbiznis/payoutd/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) RequestPayout(ctx context.Context, req domain.PayoutRequest) (domain.SettlementResult, error) {
	return s.request(ctx, req)
}

func (s *Service) RequestRefund(ctx context.Context, req domain.RefundRequest) (domain.SettlementResult, error) {
	return s.request(ctx, req)
}

// prepared is a request that passed input validation.
type prepared struct {
	req         domain.SettlementRequest
	booking     *bookingdomain.Booking
	amounts     domain.Amounts
	address     string
	addressType domain.AddressType
}

func (s *Service) request(ctx context.Context, req domain.SettlementRequest) (domain.SettlementResult, error) {
	method := req.Method()
	log := s.log.With(
		zap.Int64("booking_id", req.Booking()),
		zap.String("method", string(method)),
	)

	if s.locker != nil && s.lockTTL > 0 {
		release, err := s.locker.LockSettlement(ctx, req.Booking(), s.lockTTL)
		switch {
		case errors.Is(err, ratelimit.ErrLockHeld):
			s.metrics.RecordSettlementRequest(ctx, string(method), "concurrent")
			return domain.SettlementResult{}, domain.ErrConcurrentRequest
		case err != nil:
			log.Warn("booking lock unavailable, relying on ledger", zap.Error(err))
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release booking lock failed", zap.Error(err))
				}
			}()
		}
	}

	in, err := s.validate(ctx, req)
	if err != nil {
		s.rejectInput(ctx, req, err)
		return domain.SettlementResult{}, err
	}

	var (
		payout     *domain.Payout
		assessment risk.Assessment
		attemptNo  int
		duplicate  *domain.Payout
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockPayee(ctx, tx, req.Payee()); err != nil {
			return err
		}

		active, err := s.repo.FindActiveByBooking(ctx, tx, req.Booking())
		if err != nil {
			return err
		}
		if active != nil {
			// a booking settles once, whichever way the money goes
			duplicate = active
			if active.Status == domain.StatusFailed && active.Method == method {
				return domain.ErrRetryPending
			}
			return domain.ErrAlreadyProcessed
		}

		now := s.now()
		assessment, err = s.assess(ctx, tx, in, now)
		if err != nil {
			return err
		}

		payout = s.newPayout(in, assessment, now)
		target := domain.StatusRejected
		switch {
		case assessment.IsApproved:
			target = domain.StatusProcessing
		case assessment.RequiresManualReview:
			target = domain.StatusManualReview
		}
		if !domain.CanTransition(payout.Status, target) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, payout.Status, target)
		}
		payout.Status = target
		if target == domain.StatusProcessing {
			attemptNo = 1
			payout.AttemptCount = 1
			payout.LastAttemptAt = &now
		}

		if err := s.repo.Insert(ctx, tx, payout); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyProcessed
			}
			return err
		}
		if err := s.repo.InsertTransition(ctx, tx, &domain.Transition{
			ID:         s.genID.Generate(),
			PayoutID:   payout.ID,
			ToStatus:   target,
			Reason:     decisionReason(assessment),
			Actor:      requestActor(ctx),
			OccurredAt: now,
		}); err != nil {
			return err
		}
		s.sweep.IncTransition(string(method), "", string(target))

		if attemptNo > 0 {
			return s.repo.InsertAttempt(ctx, tx, s.newAttempt(payout, attemptNo, now))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) || errors.Is(err, domain.ErrRetryPending) {
			s.rejectInput(ctx, req, err)
			result := domain.SettlementResult{Outcome: domain.OutcomeAlreadyProcessed, Message: err.Error()}
			if duplicate != nil {
				result.PayoutID = duplicate.ID
				result.Status = duplicate.Status
			}
			return result, err
		}
		log.Error("settlement request failed", zap.Error(err))
		s.metrics.RecordSettlementRequest(ctx, string(method), "error")
		return domain.SettlementResult{}, err
	}

	log = log.With(zap.String("payout_id", payout.ID.String()), zap.String("status", string(payout.Status)))

	switch payout.Status {
	case domain.StatusRejected:
		log.Info("settlement rejected", zap.Strings("flags", payout.RiskFlags))
		s.metrics.RecordSettlementRequest(ctx, string(method), string(domain.OutcomeRejected))
		s.auditLog(ctx, "", auditdomain.ActionRequestRejected, payout, payout.BookingID, map[string]any{
			"flags": []string(payout.RiskFlags),
		})
		return domain.SettlementResult{
			Outcome:  domain.OutcomeRejected,
			PayoutID: payout.ID,
			Status:   payout.Status,
			Flags:    []string(payout.RiskFlags),
		}, nil

	case domain.StatusManualReview:
		log.Info("settlement parked for review", zap.Int("risk_score", payout.RiskScore))
		s.metrics.RecordSettlementRequest(ctx, string(method), string(domain.OutcomeAcceptedForReview))
		s.auditLog(ctx, "", auditdomain.ActionRequestAccepted, payout, payout.BookingID, nil)
		s.notifier.NotifyManualReview(ctx, notification.ReviewNotice{
			PayoutID:  payout.ID,
			BookingID: payout.BookingID,
			Method:    string(payout.Method),
			NetAmount: domain.FormatMinor(payout.NetAmount),
			Currency:  payout.Currency,
			RiskScore: payout.RiskScore,
			Flags:     []string(payout.RiskFlags),
		})
		return domain.SettlementResult{
			Outcome:  domain.OutcomeAcceptedForReview,
			PayoutID: payout.ID,
			Status:   payout.Status,
			Flags:    []string(payout.RiskFlags),
		}, nil
	}

	s.auditLog(ctx, "", auditdomain.ActionRequestAccepted, payout, payout.BookingID, nil)
	result, err := s.submit(ctx, payout, attemptNo)
	if err == nil {
		s.metrics.RecordSettlementRequest(ctx, string(method), string(result.Outcome))
	}
	return result, err
}

// validate checks everything that can be refused without touching the ledger.
func (s *Service) validate(ctx context.Context, req domain.SettlementRequest) (prepared, error) {
	if !req.Method().Valid() || req.Booking() <= 0 || req.Payee() <= 0 {
		return prepared{}, domain.ErrInvalidRequest
	}

	amounts := req.Money()
	if err := amounts.Validate(); err != nil {
		return prepared{}, err
	}

	raw, hint := req.Address()
	address, addressType, err := domain.NormalizeAddress(raw, hint)
	if err != nil {
		return prepared{}, err
	}

	booking, err := s.bookings.FindByID(ctx, s.db, req.Booking())
	if err != nil {
		return prepared{}, err
	}
	if booking == nil {
		return prepared{}, domain.ErrBookingNotFound
	}
	eligible := booking.PayoutEligible()
	if req.Method() == domain.MethodRefund {
		eligible = booking.RefundEligible()
	}
	if !eligible {
		return prepared{}, domain.ErrBookingNotPaid
	}
	// an owner mismatch is a policy rejection scored by the evaluator; a
	// renter that is not the booking's renter is bad input
	if req.Renter() != booking.RenterID {
		return prepared{}, domain.ErrPartyMismatch
	}
	if req.Method() == domain.MethodRefund && amounts.Total > booking.TotalAmount {
		return prepared{}, domain.ErrRefundExceedsBooking
	}

	return prepared{
		req:         req,
		booking:     booking,
		amounts:     amounts,
		address:     address,
		addressType: addressType,
	}, nil
}

// assess gathers the risk snapshot under the payee lock and scores it.
func (s *Service) assess(ctx context.Context, tx *gorm.DB, in prepared, now time.Time) (risk.Assessment, error) {
	policy := s.policy.Get()
	net := in.amounts.Net()

	if net > policy.TransactionCeiling {
		return risk.Assessment{
			Score: policy.MaxScore,
			Flags: []string{risk.FlagTransactionCeiling},
		}, nil
	}

	payee, err := s.accounts.FindByID(ctx, tx, in.req.Payee())
	if err != nil {
		return risk.Assessment{}, err
	}
	renter, err := s.accounts.FindByID(ctx, tx, in.req.Renter())
	if err != nil {
		return risk.Assessment{}, err
	}
	stats, err := s.repo.PayeeStats(ctx, tx, in.req.Payee(), now.Add(-policy.PatternWindow), policy.IdenticalAmountCount)
	if err != nil {
		return risk.Assessment{}, err
	}
	from, to := s.dayBounds(now)
	settled, err := s.repo.SettledSum(ctx, tx, in.req.Payee(), in.req.Method(), from, to)
	if err != nil {
		return risk.Assessment{}, err
	}

	return risk.Evaluate(policy, risk.Input{
		Method:         in.req.Method(),
		NetAmount:      net,
		PayeeID:        in.req.Payee(),
		BookingOwnerID: in.booking.OwnerID,
		Payee:          partyOf(payee),
		Renter:         partyOf(renter),
		Stats:          stats,
		SettledToday:   settled,
		Now:            now,
	}), nil
}

func (s *Service) newPayout(in prepared, a risk.Assessment, now time.Time) *domain.Payout {
	currency := in.booking.Currency
	if currency == "" {
		currency = s.currency
	}
	p := &domain.Payout{
		ID:               s.genID.Generate(),
		BookingID:        in.req.Booking(),
		Method:           in.req.Method(),
		Status:           domain.StatusPendingReview,
		PayeeID:          in.req.Payee(),
		RenterID:         in.req.Renter(),
		TotalAmount:      in.amounts.Total,
		ServiceFee:       in.amounts.ServiceFee,
		InsuranceFee:     in.amounts.InsuranceFee,
		CouponDiscount:   in.amounts.CouponDiscount,
		NetAmount:        in.amounts.Net(),
		Currency:         currency,
		PayeeAddress:     in.address,
		PayeeAddressType: in.addressType,
		Retryable:        true,
		RiskScore:        a.Score,
		RiskFlags:        datatypes.JSONSlice[string](a.Flags),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	switch req := in.req.(type) {
	case domain.PayoutRequest:
		owner := in.booking.OwnerID
		p.OwnerID = &owner
	case domain.RefundRequest:
		p.RefundReason = stringPtr(req.Reason)
	}
	return p
}

// rejectInput records a refused request that left no ledger record.
func (s *Service) rejectInput(ctx context.Context, req domain.SettlementRequest, cause error) {
	s.log.Info("settlement request refused",
		zap.Int64("booking_id", req.Booking()),
		zap.String("method", string(req.Method())),
		zap.String("reason", cause.Error()),
	)
	outcome := "invalid"
	if errors.Is(cause, domain.ErrAlreadyProcessed) || errors.Is(cause, domain.ErrRetryPending) {
		outcome = string(domain.OutcomeAlreadyProcessed)
	}
	s.metrics.RecordSettlementRequest(ctx, string(req.Method()), outcome)

	raw, _ := req.Address()
	s.auditLog(ctx, "", auditdomain.ActionRequestInvalid, nil, req.Booking(), map[string]any{
		"method":        string(req.Method()),
		"payee_id":      fmt.Sprintf("%d", req.Payee()),
		"payee_address": raw,
		"error":         cause.Error(),
	})
}

func partyOf(a *accountdomain.Account) *risk.Party {
	if a == nil {
		return nil
	}
	return &risk.Party{CreatedAt: a.CreatedAt, ProfileUpdatedAt: a.ProfileUpdatedAt}
}

func decisionReason(a risk.Assessment) *string {
	switch {
	case a.IsApproved:
		return stringPtr("risk_approved")
	case a.RequiresManualReview:
		return stringPtr("risk_review")
	}
	for _, flag := range a.Flags {
		if flag == risk.FlagTransactionCeiling {
			return stringPtr(flag)
		}
	}
	return stringPtr("risk_rejected")
}

func requestActor(ctx context.Context) string {
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		if actorID != "" {
			return actorType + ":" + actorID
		}
		return actorType
	}
	return actorSystem
}
