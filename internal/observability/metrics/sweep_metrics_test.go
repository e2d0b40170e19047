package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/payoutd/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySweepJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SweepJobReasonDeadlineExceeded,
		},
		{
			name: "forbidden",
			err:  authorization.ErrForbidden,
			want: SweepJobReasonForbidden,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SweepJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SweepJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SweepJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SweepJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySweepJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSweepMetrics(registry, Config{
		ServiceName: "payoutd",
		Environment: "test",
	})

	metrics.AddBatchProcessed("payout_retry", "payouts", 3)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("payout_retry", "payouts"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncTransitionDefaultsEmptyFrom(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSweepMetrics(registry, Config{Environment: "test"})

	metrics.IncTransition("payout", "", "pending_review")
	metrics.IncTransition("payout", "failed", "processing")

	if got := testutil.ToFloat64(metrics.transitions.WithLabelValues("payout", "none", "pending_review")); got != 1 {
		t.Fatalf("expected 1 initial transition, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.transitions.WithLabelValues("payout", "failed", "processing")); got != 1 {
		t.Fatalf("expected 1 retry transition, got %v", got)
	}
}

func TestIsSweepErrorRetryable(t *testing.T) {
	if !IsSweepErrorRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected pg errors to be retryable")
	}
	if IsSweepErrorRetryable(errors.New("boom")) {
		t.Fatalf("expected business errors to be terminal")
	}
	if IsSweepErrorRetryable(gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found to be terminal")
	}
}
