package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/payoutd/internal/observability/context"
	obslogger "github.com/smallbiznis/payoutd/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payoutd/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun counts what a single sweep job touched. Nested runJob calls share
// the outermost run through the context.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time

	processedCount int
	deferredCount  int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(n int) {
	if r != nil && n > 0 {
		r.processedCount += n
	}
}

func (r *jobRun) AddDeferred(n int) {
	if r != nil && n > 0 {
		r.deferredCount += n
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errorCount++
	}
}

func (r *jobRun) summary(now time.Time) []zap.Field {
	return []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.runID),
		zap.Int64("duration_ms", now.Sub(r.startedAt).Milliseconds()),
		zap.Int("processed_count", r.processedCount),
		zap.Int("deferred_count", r.deferredCount),
		zap.Int("error_count", r.errorCount),
	}
}

// beginRun attaches a run to ctx unless one is already there. The returned
// bool reports whether the caller owns the run and must finish it.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithRequestID(ctx, run.runID)

	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", batchSize),
	)
	return ctx, run, true
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun) {
	fields := run.summary(s.clock.Now())
	if run.errorCount > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// logJobError records a failed batch against the run and logs it with the
// sweep error classification used by the job metrics.
func (s *Scheduler) logJobError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	run := jobRunFromContext(ctx)
	run.IncError()

	job := ""
	if run != nil {
		job = run.job
	}
	s.logger(ctx).Error(msg, append([]zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySweepErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSweepErrorRetryable(err)),
		zap.Error(err),
	}, fields...)...)
}
