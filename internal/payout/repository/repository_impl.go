package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const payoutColumns = `id, booking_id, method, status, owner_id, payee_id, renter_id,
		total_amount, service_fee, insurance_fee, coupon_discount, net_amount, currency,
		payee_address, payee_address_type, reference, failure_reason, retryable, risk_score, risk_flags,
		attempt_count, refund_reason, review_note, reviewed_by,
		created_at, updated_at, processed_at, last_attempt_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockPayee(ctx context.Context, db *gorm.DB, payeeID int64) error {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO payee_locks (payee_id) VALUES (?) ON CONFLICT (payee_id) DO NOTHING`,
		payeeID,
	).Error; err != nil {
		return err
	}
	var locked int64
	return db.WithContext(ctx).Raw(
		`SELECT payee_id FROM payee_locks WHERE payee_id = ? FOR UPDATE`,
		payeeID,
	).Scan(&locked).Error
}

func (r *repo) FindActiveByBooking(ctx context.Context, db *gorm.DB, bookingID int64) (*domain.Payout, error) {
	return r.findOne(ctx, db,
		`SELECT `+payoutColumns+`
		 FROM payouts
		 WHERE booking_id = ? AND status <> ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		bookingID, domain.StatusRejected,
	)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	return r.findOne(ctx, db, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	return r.findOne(ctx, db, `SELECT `+payoutColumns+` FROM payouts WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payout, error) {
	var payout domain.Payout
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&payout).Error; err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payout) error {
	flags := p.RiskFlags
	if flags == nil {
		flags = datatypes.JSONSlice[string]{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (`+payoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BookingID, p.Method, p.Status, p.OwnerID, p.PayeeID, p.RenterID,
		p.TotalAmount, p.ServiceFee, p.InsuranceFee, p.CouponDiscount, p.NetAmount, p.Currency,
		p.PayeeAddress, p.PayeeAddressType, p.Reference, p.FailureReason, p.Retryable, p.RiskScore, flags,
		p.AttemptCount, p.RefundReason, p.ReviewNote, p.ReviewedBy,
		p.CreatedAt, p.UpdatedAt, p.ProcessedAt, p.LastAttemptAt,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, u domain.StatusUpdate) (bool, error) {
	values := map[string]any{
		"status":     u.To,
		"updated_at": u.At,
	}
	if u.Reference != nil {
		values["reference"] = *u.Reference
	}
	if u.FailureReason != nil {
		values["failure_reason"] = *u.FailureReason
	} else if u.ClearFailure {
		values["failure_reason"] = nil
	}
	if u.Retryable != nil {
		values["retryable"] = *u.Retryable
	}
	if u.ProcessedAt != nil {
		values["processed_at"] = *u.ProcessedAt
	}
	if u.ReviewNote != nil {
		values["review_note"] = *u.ReviewNote
	}
	if u.ReviewedBy != nil {
		values["reviewed_by"] = *u.ReviewedBy
	}
	if u.RiskScore != nil {
		values["risk_score"] = *u.RiskScore
	}
	if u.RiskFlags != nil {
		values["risk_flags"] = datatypes.JSONSlice[string](u.RiskFlags)
	}
	if u.IncrementAttempt {
		values["attempt_count"] = gorm.Expr("attempt_count + 1")
		values["last_attempt_at"] = u.At
	}

	res := db.WithContext(ctx).
		Table("payouts").
		Where("id = ? AND status = ?", u.ID, u.From).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertTransition(ctx context.Context, db *gorm.DB, t *domain.Transition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_transitions (id, payout_id, from_status, to_status, reason, actor, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PayoutID, t.FromStatus, t.ToStatus, t.Reason, t.Actor, t.OccurredAt,
	).Error
}

func (r *repo) InsertAttempt(ctx context.Context, db *gorm.DB, a *domain.Attempt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_attempts (id, payout_id, attempt_no, idempotency_key, status, reference, failure_reason, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PayoutID, a.AttemptNo, a.IdempotencyKey, a.Status, a.Reference, a.FailureReason, a.StartedAt, a.FinishedAt,
	).Error
}

func (r *repo) FinishAttempt(ctx context.Context, db *gorm.DB, res domain.AttemptResult) (bool, error) {
	out := db.WithContext(ctx).Exec(
		`UPDATE payout_attempts
		 SET status = ?, reference = ?, failure_reason = ?, finished_at = ?
		 WHERE payout_id = ? AND attempt_no = ? AND status = ?`,
		res.Status, res.Reference, res.FailureReason, res.At,
		res.PayoutID, res.AttemptNo, domain.AttemptInFlight,
	)
	if out.Error != nil {
		return false, out.Error
	}
	return out.RowsAffected == 1, nil
}

func (r *repo) ListAttempts(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.Attempt, error) {
	var attempts []domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT id, payout_id, attempt_no, idempotency_key, status, reference, failure_reason, started_at, finished_at
		 FROM payout_attempts
		 WHERE payout_id = ?
		 ORDER BY attempt_no ASC`,
		payoutID,
	).Scan(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repo) ListTransitions(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.Transition, error) {
	var transitions []domain.Transition
	err := db.WithContext(ctx).Raw(
		`SELECT id, payout_id, from_status, to_status, reason, actor, occurred_at
		 FROM payout_transitions
		 WHERE payout_id = ?
		 ORDER BY occurred_at ASC, id ASC`,
		payoutID,
	).Scan(&transitions).Error
	if err != nil {
		return nil, err
	}
	return transitions, nil
}

func (r *repo) PayeeStats(ctx context.Context, db *gorm.DB, payeeID int64, since time.Time, recentLimit int) (domain.PayeeWindowStats, error) {
	var row struct {
		Count       int
		FailedCount int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count,
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed_count
		 FROM payouts
		 WHERE payee_id = ? AND created_at >= ?`,
		domain.StatusFailed, payeeID, since,
	).Scan(&row).Error
	if err != nil {
		return domain.PayeeWindowStats{}, err
	}

	stats := domain.PayeeWindowStats{Count: row.Count, FailedCount: row.FailedCount}
	if recentLimit <= 0 || row.Count == 0 {
		return stats, nil
	}
	err = db.WithContext(ctx).
		Table("payouts").
		Where("payee_id = ? AND created_at >= ?", payeeID, since).
		Order("created_at DESC, id DESC").
		Limit(recentLimit).
		Pluck("net_amount", &stats.RecentAmounts).Error
	if err != nil {
		return domain.PayeeWindowStats{}, err
	}
	return stats, nil
}

func (r *repo) SettledSum(ctx context.Context, db *gorm.DB, payeeID int64, method domain.Method, from, to time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(net_amount), 0)
		 FROM payouts
		 WHERE payee_id = ?
		   AND method = ?
		   AND status IN (?, ?)
		   AND COALESCE(processed_at, last_attempt_at) >= ?
		   AND COALESCE(processed_at, last_attempt_at) < ?`,
		payeeID, method, domain.StatusCompleted, domain.StatusProcessing, from, to,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ClaimRetryable(ctx context.Context, db *gorm.DB, updatedBefore time.Time, maxRetries, limit int) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+`
		 FROM payouts
		 WHERE status = ? AND retryable = ? AND updated_at <= ? AND attempt_count < ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.StatusFailed, true, updatedBefore, maxRetries, limit,
	).Scan(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) ClaimStale(ctx context.Context, db *gorm.DB, startedBefore time.Time, limit int) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+`
		 FROM payouts
		 WHERE status = ? AND COALESCE(last_attempt_at, updated_at) <= ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.StatusProcessing, startedBefore, limit,
	).Scan(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) TouchAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts SET last_attempt_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		at, at, id, domain.StatusProcessing,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, cursor *pagination.Cursor, limit int) ([]*domain.Payout, error) {
	stmt := db.WithContext(ctx).Table("payouts").Select(payoutColumns)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		stmt = stmt.Where("method = ?", filter.Method)
	}
	if filter.BookingID != 0 {
		stmt = stmt.Where("booking_id = ?", filter.BookingID)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at <= ?", *filter.To)
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", createdAt, createdAt, id)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var payouts []*domain.Payout
	if err := stmt.Order("created_at DESC, id DESC").Scan(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}
