package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Payout, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Payout{}, err
	}
	if p == nil {
		return domain.Payout{}, domain.ErrPayoutNotFound
	}
	return *p, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{
		BookingID: req.BookingID,
		From:      req.From,
		To:        req.To,
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.Status(strings.ToLower(status))
		if !filter.Status.Valid() {
			return domain.ListResponse{}, domain.ErrInvalidStatusFilter
		}
	}
	if method := strings.TrimSpace(req.Method); method != "" {
		filter.Method = domain.Method(strings.ToLower(method))
		if !filter.Method.Valid() {
			return domain.ListResponse{}, domain.ErrInvalidMethod
		}
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}

	var cursor *pagination.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	limit := pagination.Pagination{PageSize: req.PageSize}.Limit()
	items, err := s.repo.List(ctx, s.db, filter, cursor, limit+1)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPage(items, limit, func(p *domain.Payout) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	payouts := make([]domain.Payout, 0, len(items))
	for _, item := range items {
		if item != nil {
			payouts = append(payouts, *item)
		}
	}
	return domain.ListResponse{PageInfo: pageInfo, Payouts: payouts}, nil
}

func (s *Service) Attempts(ctx context.Context, id snowflake.ID) ([]domain.Attempt, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListAttempts(ctx, s.db, id)
}

func (s *Service) Transitions(ctx context.Context, id snowflake.ID) ([]domain.Transition, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTransitions(ctx, s.db, id)
}

// Approve releases a record parked for review. The daily cap is checked again
// since other payouts may have settled while it waited.
func (s *Service) Approve(ctx context.Context, req domain.ReviewRequest) (domain.SettlementResult, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return domain.SettlementResult{}, domain.ErrInvalidRequest
	}

	var (
		payout    *domain.Payout
		attemptNo int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.FindByIDForUpdate(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrPayoutNotFound
		}
		if p.Status != domain.StatusManualReview {
			return domain.ErrPayoutNotInReview
		}
		if err := s.repo.LockPayee(ctx, tx, p.PayeeID); err != nil {
			return err
		}

		now := s.now()
		ok, err := s.withinDailyCap(ctx, tx, p, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrDailyLimitExceeded
		}

		attemptNo, err = s.startAttempt(ctx, tx, p, actor, domain.StatusUpdate{
			From:       domain.StatusManualReview,
			At:         now,
			ReviewNote: stringPtr(strings.TrimSpace(req.Note)),
			ReviewedBy: &actor,
		}, stringPtr("manual_approval"))
		if err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return domain.SettlementResult{}, err
	}

	s.log.Info("payout approved",
		zap.String("payout_id", payout.ID.String()),
		zap.String("actor", actor),
	)
	s.metrics.RecordAdminAction(ctx, "approve")
	s.auditLog(ctx, actor, auditdomain.ActionPayoutApproved, payout, payout.BookingID, map[string]any{
		"note": strings.TrimSpace(req.Note),
	})
	return s.submit(ctx, payout, attemptNo)
}

func (s *Service) Reject(ctx context.Context, req domain.ReviewRequest) (domain.Payout, error) {
	actor := strings.TrimSpace(req.Actor)
	note := strings.TrimSpace(req.Note)
	if actor == "" {
		return domain.Payout{}, domain.ErrInvalidRequest
	}
	if note == "" {
		return domain.Payout{}, domain.ErrReasonRequired
	}

	var payout *domain.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.repo.FindByIDForUpdate(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrPayoutNotFound
		}
		if p.Status != domain.StatusManualReview {
			return domain.ErrPayoutNotInReview
		}
		if err := s.transition(ctx, tx, p, domain.StatusUpdate{
			From:       domain.StatusManualReview,
			To:         domain.StatusRejected,
			At:         s.now(),
			ReviewNote: &note,
			ReviewedBy: &actor,
		}, actor, stringPtr("manual_rejection")); err != nil {
			return err
		}
		payout, err = s.repo.FindByID(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return domain.Payout{}, err
	}

	s.log.Info("payout rejected",
		zap.String("payout_id", payout.ID.String()),
		zap.String("actor", actor),
	)
	s.metrics.RecordAdminAction(ctx, "reject")
	s.auditLog(ctx, actor, auditdomain.ActionPayoutRejected, payout, payout.BookingID, map[string]any{
		"note": note,
	})
	return *payout, nil
}

// Retry moves the failed record of a booking back to processing with a new
// attempt.
func (s *Service) Retry(ctx context.Context, req domain.RetryRequest) (domain.SettlementResult, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" || req.BookingID <= 0 {
		return domain.SettlementResult{}, domain.ErrInvalidRequest
	}
	if !req.Method.Valid() {
		return domain.SettlementResult{}, domain.ErrInvalidMethod
	}

	var (
		payout    *domain.Payout
		attemptNo int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.FindActiveByBooking(ctx, tx, req.BookingID)
		if err != nil {
			return err
		}
		if active == nil || active.Method != req.Method {
			return domain.ErrPayoutNotFound
		}
		p, err := s.repo.FindByIDForUpdate(ctx, tx, active.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrPayoutNotFound
		}
		if p.Status != domain.StatusFailed {
			return domain.ErrPayoutNotRetryable
		}
		if !req.Force && p.AttemptCount >= s.maxRetries {
			return domain.ErrRetriesExhausted
		}
		if err := s.repo.LockPayee(ctx, tx, p.PayeeID); err != nil {
			return err
		}

		now := s.now()
		ok, err := s.withinDailyCap(ctx, tx, p, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrDailyLimitExceeded
		}

		attemptNo, err = s.startAttempt(ctx, tx, p, actor, domain.StatusUpdate{
			From: domain.StatusFailed,
			At:   now,
		}, stringPtr("manual_retry"))
		if err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return domain.SettlementResult{}, err
	}

	s.log.Info("payout retry requested",
		zap.String("payout_id", payout.ID.String()),
		zap.Int("attempt_no", attemptNo),
		zap.Bool("force", req.Force),
		zap.String("actor", actor),
	)
	s.metrics.RecordAdminAction(ctx, "retry")
	s.auditLog(ctx, actor, auditdomain.ActionPayoutRetried, payout, payout.BookingID, map[string]any{
		"attempt_no": attemptNo,
		"force":      req.Force,
	})
	return s.submit(ctx, payout, attemptNo)
}
