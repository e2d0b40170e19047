package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/payoutd/internal/notification"
	obslogger "github.com/smallbiznis/payoutd/internal/observability/logger"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/internal/payout/gateway"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// submit sends the in-flight attempt to the gateway and records the result.
// p must already be processing with attemptNo committed.
func (s *Service) submit(ctx context.Context, p *domain.Payout, attemptNo int) (domain.SettlementResult, error) {
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("payout_id", p.ID.String()),
		zap.Int64("booking_id", p.BookingID),
		zap.Int("attempt_no", attemptNo),
		obslogger.PayeeAddress(p.PayeeAddress),
	)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
	defer cancel()

	started := s.clock.Now()
	res, submitErr := s.gateway.Submit(callCtx, gateway.Transfer{
		Address:        p.PayeeAddress,
		AddressType:    string(p.PayeeAddressType),
		AmountMinor:    p.NetAmount,
		Currency:       p.Currency,
		IdempotencyKey: domain.DeriveIdempotencyKey(s.secret, p.BookingID, p.Method, attemptNo),
		Description:    fmt.Sprintf("%s booking %d", p.Method, p.BookingID),
	})
	if submitErr == nil && res.Reference == "" {
		submitErr = &gateway.FailureError{Reason: gateway.ReasonInvalid, Retryable: true}
	}
	finished := s.now()

	gatewayResult := "succeeded"
	if submitErr != nil {
		gatewayResult = gateway.FailureReason(submitErr)
	}
	s.metrics.RecordGatewaySubmit(ctx, s.gateway.Provider(), gatewayResult, s.clock.Now().Sub(started))

	if submitErr != nil {
		return s.recordFailure(ctx, log, p, attemptNo, submitErr)
	}

	reference := res.Reference
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.FinishAttempt(ctx, tx, domain.AttemptResult{
			PayoutID:  p.ID,
			AttemptNo: attemptNo,
			Status:    domain.AttemptSucceeded,
			Reference: &reference,
			At:        finished,
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentRequest
		}
		return s.transition(ctx, tx, p, domain.StatusUpdate{
			From:         domain.StatusProcessing,
			To:           domain.StatusCompleted,
			At:           finished,
			Reference:    &reference,
			ClearFailure: true,
			ProcessedAt:  &finished,
		}, actorSystem, nil)
	})
	if err != nil {
		// The transfer went through. The record stays processing with the
		// attempt in flight until stale recovery replays the same key.
		log.Error("gateway accepted transfer but ledger update failed",
			zap.String("reference", reference),
			zap.Error(err),
		)
		return domain.SettlementResult{}, err
	}

	p.Reference = &reference
	p.ProcessedAt = &finished
	log.Info("payout settled", zap.String("reference", reference))
	s.notifyPayee(ctx, p)

	return domain.SettlementResult{
		Outcome:   domain.OutcomeAcceptedAndSettled,
		PayoutID:  p.ID,
		Status:    p.Status,
		Reference: reference,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, log *zap.Logger, p *domain.Payout, attemptNo int, submitErr error) (domain.SettlementResult, error) {
	reason := gateway.FailureReason(submitErr)
	retryable := true
	var failure *gateway.FailureError
	if errors.As(submitErr, &failure) {
		retryable = failure.Retryable
	}
	if errors.Is(submitErr, context.DeadlineExceeded) {
		retryable = true
	}

	at := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.FinishAttempt(ctx, tx, domain.AttemptResult{
			PayoutID:      p.ID,
			AttemptNo:     attemptNo,
			Status:        domain.AttemptFailed,
			FailureReason: &reason,
			At:            at,
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentRequest
		}
		return s.transition(ctx, tx, p, domain.StatusUpdate{
			From:          domain.StatusProcessing,
			To:            domain.StatusFailed,
			At:            at,
			FailureReason: &reason,
			Retryable:     &retryable,
		}, actorSystem, &reason)
	})
	if err != nil {
		log.Error("record gateway failure", zap.String("reason", reason), zap.Error(err))
		return domain.SettlementResult{}, err
	}

	p.FailureReason = &reason
	p.Retryable = retryable
	log.Warn("transfer failed",
		zap.String("reason", reason),
		zap.Bool("retryable", retryable),
		zap.Error(submitErr),
	)

	return domain.SettlementResult{
		Outcome:  domain.OutcomeAcceptedAndQueued,
		PayoutID: p.ID,
		Status:   p.Status,
		Message:  reason,
	}, nil
}

func (s *Service) notifyPayee(ctx context.Context, p *domain.Payout) {
	account, err := s.accounts.FindByID(ctx, s.db, p.PayeeID)
	if err != nil {
		s.log.Warn("payee lookup for receipt failed", zap.Int64("payee_id", p.PayeeID), zap.Error(err))
		return
	}
	if account == nil || account.Email == "" {
		return
	}
	reference := ""
	if p.Reference != nil {
		reference = *p.Reference
	}
	s.notifier.NotifyPayee(ctx, notification.PayeeNotice{
		PayoutID:      p.ID,
		Method:        string(p.Method),
		Email:         account.Email,
		NetAmount:     domain.FormatMinor(p.NetAmount),
		Currency:      p.Currency,
		Reference:     reference,
		MaskedAddress: domain.MaskAddress(p.PayeeAddress),
	})
}
