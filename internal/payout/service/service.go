package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/payoutd/internal/account/domain"
	auditdomain "github.com/smallbiznis/payoutd/internal/audit/domain"
	bookingdomain "github.com/smallbiznis/payoutd/internal/booking/domain"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/notification"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
	"github.com/smallbiznis/payoutd/internal/payout/gateway"
	"github.com/smallbiznis/payoutd/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	actorSystem    = "system"
	actorScheduler = "scheduler"
)

// Notifier receives fire-and-forget settlement notices.
type Notifier interface {
	NotifyManualReview(ctx context.Context, notice notification.ReviewNotice)
	NotifyPayee(ctx context.Context, notice notification.PayeeNotice)
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Policy       *config.RiskPolicyHolder
	Repo         domain.Repository
	BookingRepo  bookingdomain.Repository
	AccountRepo  accountdomain.Repository
	Gateway      gateway.Adapter
	Notifier     Notifier
	Audit        auditdomain.Service
	Metrics      *obsmetrics.Metrics      `optional:"true"`
	SweepMetrics *obsmetrics.SweepMetrics `optional:"true"`
	Locker       *ratelimit.Locker        `optional:"true"`
}

// Service is the settlement orchestrator. It owns every status change of a
// payout record.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.RiskPolicyHolder
	repo     domain.Repository
	bookings bookingdomain.Repository
	accounts accountdomain.Repository
	gateway  gateway.Adapter
	notifier Notifier
	audit    auditdomain.Service
	metrics  *obsmetrics.Metrics
	sweep    *obsmetrics.SweepMetrics
	locker   *ratelimit.Locker

	currency       string
	location       *time.Location
	secret         string
	gatewayTimeout time.Duration
	lockTTL        time.Duration
	retryCooldown  time.Duration
	maxRetries     int
	staleAfter     time.Duration
}

func NewService(p Params) *Service {
	log := p.Log.Named("payout.service")

	loc, err := time.LoadLocation(p.Config.Settlement.LimitTimezone)
	if err != nil {
		log.Warn("unknown limit timezone, using UTC",
			zap.String("timezone", p.Config.Settlement.LimitTimezone),
			zap.Error(err),
		)
		loc = time.UTC
	}

	sweep := p.SweepMetrics
	if sweep == nil {
		sweep = obsmetrics.Sweep()
	}

	s := &Service{
		db:       p.DB,
		log:      log,
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		bookings: p.BookingRepo,
		accounts: p.AccountRepo,
		gateway:  p.Gateway,
		notifier: p.Notifier,
		audit:    p.Audit,
		metrics:  p.Metrics,
		sweep:    sweep,
		locker:   p.Locker,

		currency:       p.Config.Settlement.Currency,
		location:       loc,
		secret:         p.Config.Gateway.IdempotencySecret,
		gatewayTimeout: p.Config.Gateway.Timeout,
		lockTTL:        p.Config.Settlement.BookingLockTTL,
		retryCooldown:  p.Config.Scheduler.RetryCooldown,
		maxRetries:     p.Config.Scheduler.MaxRetries,
		staleAfter:     p.Config.Scheduler.StaleAfter,
	}
	if s.currency == "" {
		s.currency = "BRL"
	}
	if s.gatewayTimeout <= 0 {
		s.gatewayTimeout = 15 * time.Second
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// dayBounds returns the limit day containing t as a UTC half-open range.
func (s *Service) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// transition applies a guarded status change and appends it to the log.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, p *domain.Payout, update domain.StatusUpdate, actor string, reason *string) error {
	if !domain.CanTransition(update.From, update.To) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, update.From, update.To)
	}
	update.ID = p.ID
	ok, err := s.repo.UpdateStatus(ctx, tx, update)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrConcurrentRequest
	}
	from := update.From
	if err := s.repo.InsertTransition(ctx, tx, &domain.Transition{
		ID:         s.genID.Generate(),
		PayoutID:   p.ID,
		FromStatus: &from,
		ToStatus:   update.To,
		Reason:     reason,
		Actor:      actor,
		OccurredAt: update.At,
	}); err != nil {
		return err
	}
	s.sweep.IncTransition(string(p.Method), string(update.From), string(update.To))
	p.Status = update.To
	return nil
}

// startAttempt moves p into processing and records a new in-flight attempt.
func (s *Service) startAttempt(ctx context.Context, tx *gorm.DB, p *domain.Payout, actor string, update domain.StatusUpdate, reason *string) (int, error) {
	update.To = domain.StatusProcessing
	update.IncrementAttempt = true
	update.ClearFailure = true
	retryable := true
	update.Retryable = &retryable
	if err := s.transition(ctx, tx, p, update, actor, reason); err != nil {
		return 0, err
	}

	attemptNo := p.AttemptCount + 1
	if err := s.repo.InsertAttempt(ctx, tx, s.newAttempt(p, attemptNo, update.At)); err != nil {
		return 0, err
	}
	p.AttemptCount = attemptNo
	p.FailureReason = nil
	p.Retryable = true
	at := update.At
	p.LastAttemptAt = &at
	return attemptNo, nil
}

func (s *Service) newAttempt(p *domain.Payout, attemptNo int, at time.Time) *domain.Attempt {
	return &domain.Attempt{
		ID:             s.genID.Generate(),
		PayoutID:       p.ID,
		AttemptNo:      attemptNo,
		IdempotencyKey: domain.DeriveIdempotencyKey(s.secret, p.BookingID, p.Method, attemptNo),
		Status:         domain.AttemptInFlight,
		StartedAt:      at,
	}
}

// withinDailyCap reports whether settling p keeps its payee under the cap for
// the current limit day. Payouts and refunds are capped separately. The
// caller must hold the payee lock.
func (s *Service) withinDailyCap(ctx context.Context, tx *gorm.DB, p *domain.Payout, now time.Time) (bool, error) {
	from, to := s.dayBounds(now)
	settled, err := s.repo.SettledSum(ctx, tx, p.PayeeID, p.Method, from, to)
	if err != nil {
		return false, err
	}
	return settled+p.NetAmount <= s.policy.Get().DailyCap, nil
}

func (s *Service) auditLog(ctx context.Context, actor string, action string, p *domain.Payout, bookingID int64, metadata map[string]any) {
	targetType := "booking"
	targetID := fmt.Sprintf("%d", bookingID)
	if p != nil {
		targetType = "payout"
		targetID = p.ID.String()
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["booking_id"] = fmt.Sprintf("%d", p.BookingID)
		metadata["method"] = string(p.Method)
		metadata["status"] = string(p.Status)
	}
	actorType, actorID := actorRef(actor)
	if err := s.audit.AuditLog(ctx, actorType, actorID, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func actorRef(actor string) (string, *string) {
	switch actor {
	case "":
		return "", nil
	case actorSystem:
		return string(auditdomain.ActorTypeSystem), nil
	case actorScheduler:
		return string(auditdomain.ActorTypeScheduler), nil
	default:
		return string(auditdomain.ActorTypeOperator), &actor
	}
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
