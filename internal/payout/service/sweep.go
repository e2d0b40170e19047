package service

import (
	"context"

	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobRetry        = "payout_retry"
	jobStaleRecover = "payout_stale_recovery"
)

type claimedAttempt struct {
	payout    *domain.Payout
	attemptNo int
}

// RetryFailed claims failed records past their cooldown and submits a new
// attempt for each. Records that would break the payee's daily cap stay
// failed until a later run.
func (s *Service) RetryFailed(ctx context.Context, limit int) (domain.SweepResult, error) {
	var (
		result  domain.SweepResult
		claimed []claimedAttempt
	)
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.ClaimRetryable(ctx, tx, now.Add(-s.retryCooldown), s.maxRetries, limit)
		if err != nil {
			return err
		}
		result.Claimed = len(rows)

		for _, p := range rows {
			if err := s.repo.LockPayee(ctx, tx, p.PayeeID); err != nil {
				return err
			}
			ok, err := s.withinDailyCap(ctx, tx, p, now)
			if err != nil {
				return err
			}
			if !ok {
				result.Deferred++
				s.sweep.IncBatchDeferred(jobRetry, obsmetrics.SweepDeferredReasonDailyCap)
				continue
			}

			attemptNo, err := s.startAttempt(ctx, tx, p, actorScheduler, domain.StatusUpdate{
				From: domain.StatusFailed,
				At:   now,
			}, stringPtr("sweep_retry"))
			if err != nil {
				return err
			}
			claimed = append(claimed, claimedAttempt{payout: p, attemptNo: attemptNo})
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, c := range claimed {
		res, err := s.submit(ctx, c.payout, c.attemptNo)
		if err != nil {
			s.log.Error("sweep submit failed",
				zap.String("payout_id", c.payout.ID.String()),
				zap.Error(err),
			)
			continue
		}
		switch res.Status {
		case domain.StatusCompleted:
			result.Completed++
		case domain.StatusFailed:
			result.Failed++
			if c.attemptNo >= s.maxRetries || !c.payout.Retryable {
				s.sweep.IncRetryExhausted(string(c.payout.Method))
			}
		}
	}

	s.sweep.AddBatchProcessed(jobRetry, "payout", len(claimed))
	return result, nil
}

// RecoverStale resubmits processing records whose attempt never reported
// back. The transfer may already have gone through, so the stale attempt is
// sent again under its own idempotency key and the gateway answers with the
// original outcome instead of moving money twice.
func (s *Service) RecoverStale(ctx context.Context, limit int) (int, error) {
	now := s.now()
	var stale []claimedAttempt

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.ClaimStale(ctx, tx, now.Add(-s.staleAfter), limit)
		if err != nil {
			return err
		}
		for _, p := range rows {
			if p.AttemptCount < 1 {
				continue
			}
			// restart the stale clock so an overlapping sweep leaves it alone
			ok, err := s.repo.TouchAttempt(ctx, tx, p.ID, now)
			if err != nil {
				return err
			}
			if ok {
				stale = append(stale, claimedAttempt{payout: p, attemptNo: p.AttemptCount})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, c := range stale {
		log := s.log.With(
			zap.String("payout_id", c.payout.ID.String()),
			zap.Int("attempt_no", c.attemptNo),
		)
		log.Warn("resubmitting stale payout attempt")
		if _, err := s.submit(ctx, c.payout, c.attemptNo); err != nil {
			log.Error("stale attempt resubmit failed", zap.Error(err))
			continue
		}
		recovered++
	}

	s.sweep.AddBatchProcessed(jobStaleRecover, "payout", recovered)
	return recovered, nil
}
