package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/clock"
	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/payoutd/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobPayoutRetry         = "payout_retry"
	JobPayoutStaleRecovery = "payout_stale_recovery"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	Sweep   payoutdomain.SweepService
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config                   `optional:"true"`
	Metrics *obsmetrics.SweepMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	sweep   payoutdomain.SweepService
	metrics *obsmetrics.SweepMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Sweep == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Sweep()
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		sweep:   p.Sweep,
		metrics: metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx, run, owner := s.beginRun(ctx, name, batchSize)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.finishRun(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		// stale recovery first so recovered attempts are eligible for retry in the same pass
		{JobPayoutStaleRecovery, s.StaleRecoveryJob},
		{JobPayoutRetry, s.RetryJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RetryJob resubmits failed payouts whose cooldown has elapsed.
func (s *Scheduler) RetryJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	result, err := s.sweep.RetryFailed(ctx, s.cfg.BatchSize)
	run.AddProcessed(result.Completed + result.Failed)
	run.AddDeferred(result.Deferred)
	if err != nil {
		s.logJobError(ctx, "scheduler.payout_retry.failed", err,
			zap.Int("claimed", result.Claimed),
		)
		return err
	}
	if result.Claimed > 0 {
		s.logger(ctx).Info("scheduler.payout_retry.batch",
			zap.Int("claimed", result.Claimed),
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Int("deferred", result.Deferred),
		)
	}
	return nil
}

// StaleRecoveryJob fails attempts left in processing past the stale threshold.
func (s *Scheduler) StaleRecoveryJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	recovered, err := s.sweep.RecoverStale(ctx, s.cfg.BatchSize)
	run.AddProcessed(recovered)
	if err != nil {
		s.logJobError(ctx, "scheduler.payout_stale_recovery.failed", err)
		return err
	}
	if recovered > 0 {
		s.logger(ctx).Warn("scheduler.payout_stale_recovery.recovered",
			zap.Int("recovered", recovered),
		)
	}
	return nil
}
