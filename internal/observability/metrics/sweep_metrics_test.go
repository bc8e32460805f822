package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
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
			name: "canceled",
			err:  context.Canceled,
			want: SweepJobReasonDeadlineExceeded,
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
			name: "unique_violation_pg",
			err:  &pgconn.PgError{Code: "23505"},
			want: SweepJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SweepJobReasonUnknown,
		},
		{
			name: "nil",
			err:  nil,
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

func TestClassifySweepErrorType(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SweepErrorTypeDeadlineExceeded,
		},
		{
			name: "db",
			err:  &pgconn.PgError{Code: "40001"},
			want: SweepErrorTypeDB,
		},
		{
			name: "business_rule",
			err:  errors.New("rating_already_recorded"),
			want: SweepErrorTypeBusinessRule,
		},
		{
			name: "nil",
			err:  nil,
			want: SweepErrorTypeUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySweepErrorType(tc.err); got != tc.want {
				t.Fatalf("expected type %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsSweepErrorRetryable(t *testing.T) {
	if !IsSweepErrorRetryable(context.DeadlineExceeded) {
		t.Fatal("expected deadline errors to be retryable")
	}
	if !IsSweepErrorRetryable(&pgconn.PgError{Code: "55P03"}) {
		t.Fatal("expected pg errors to be retryable")
	}
	if IsSweepErrorRetryable(errors.New("invalid_rating")) {
		t.Fatal("expected business errors to not be retryable")
	}
	if IsSweepErrorRetryable(nil) {
		t.Fatal("expected nil to not be retryable")
	}
}

func TestAddCandidatesProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSweepMetrics(registry, Config{
		ServiceName: "lunari",
		Environment: "test",
	})

	metrics.AddCandidatesProcessed("satisfaction_sweep", SweepResourceHelpConfirmation, 3)
	metrics.AddCandidatesProcessed("satisfaction_sweep", SweepResourceHelpConfirmation, 0)
	metrics.AddCandidatesProcessed("satisfaction_sweep", SweepResourceInactivity, 2)

	got := testutil.ToFloat64(metrics.candidateDone.WithLabelValues("satisfaction_sweep", SweepResourceHelpConfirmation))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	got = testutil.ToFloat64(metrics.candidateDone.WithLabelValues("satisfaction_sweep", SweepResourceInactivity))
	if got != 2 {
		t.Fatalf("expected processed count 2, got %v", got)
	}
}

func TestIncRunDeferred(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSweepMetrics(registry, Config{
		ServiceName: "lunari",
		Environment: "test",
	})

	metrics.IncRunDeferred("satisfaction_sweep", SweepDeferredReasonRunInProgress)
	metrics.IncRunDeferred("satisfaction_sweep", SweepDeferredReasonRunInProgress)

	got := testutil.ToFloat64(metrics.runDeferred.WithLabelValues("satisfaction_sweep", SweepDeferredReasonRunInProgress))
	if got != 2 {
		t.Fatalf("expected deferred count 2, got %v", got)
	}
}
