package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SweepErrorTypeDeadlineExceeded = "deadline_exceeded"
	SweepErrorTypeDB               = "db"
	SweepErrorTypeBusinessRule     = "business_rule"
	SweepErrorTypeUnknown          = "unknown"
)

const (
	SweepJobReasonDeadlineExceeded     = "deadline_exceeded"
	SweepJobReasonDBLockTimeout        = "db_lock_timeout"
	SweepJobReasonSerializationFailure = "serialization_failure"
	SweepJobReasonUniqueViolation      = "unique_violation"
	SweepJobReasonUnknown              = "unknown"

	SweepDeferredReasonRunInProgress = "run_in_progress"
)

const (
	SweepResourceHelpConfirmation = "help_confirmation"
	SweepResourceInactivity       = "inactivity"
)

// SweepMetrics captures satisfaction-sweep health signals.
type SweepMetrics struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runTimeouts   *prometheus.CounterVec
	runErrors     *prometheus.CounterVec
	candidateDone *prometheus.CounterVec
	runDeferred   *prometheus.CounterVec
	runLoopLag    prometheus.Observer
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the singleton sweep metrics registry.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

// SweepWithConfig returns the singleton sweep metrics registry using config labels.
func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

// ResetSweepMetricsForTest resets the sweep metrics singleton for tests.
func ResetSweepMetricsForTest() {
	sweepMetricsOnce = sync.Once{}
	sweepMetrics = nil
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "lunari"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "lunari_sweep_runs_total",
		Help:        "Satisfaction sweep runs by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "lunari_sweep_run_duration_seconds",
		Help:        "Satisfaction sweep latency to keep rating requests timely.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	runTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "lunari_sweep_run_timeouts_total",
		Help:        "Satisfaction sweep runs cut short by deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "lunari_sweep_run_errors_total",
		Help:        "Satisfaction sweep errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	candidateDone := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "lunari_sweep_candidates_processed_total",
		Help:        "Conversations transitioned per sweep by trigger kind.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	runDeferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "lunari_sweep_runs_deferred_total",
		Help:        "Sweep runs skipped by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "lunari_sweep_runloop_lag_seconds",
		Help:        "Sweep run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		runs,
		runDuration,
		runTimeouts,
		runErrors,
		candidateDone,
		runDeferred,
		runLoopLag,
	)

	return &SweepMetrics{
		runs:          runs,
		runDuration:   runDuration,
		runTimeouts:   runTimeouts,
		runErrors:     runErrors,
		candidateDone: candidateDone,
		runDeferred:   runDeferred,
		runLoopLag:    runLoopLag,
	}
}

// IncRun increments the run counter for a sweep job.
func (m *SweepMetrics) IncRun(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

// ObserveRunDuration records sweep run latency in seconds.
func (m *SweepMetrics) ObserveRunDuration(job string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncRunTimeout increments the timeout counter for the sweep job.
func (m *SweepMetrics) IncRunTimeout(job string) {
	if m == nil || m.runTimeouts == nil {
		return
	}
	m.runTimeouts.WithLabelValues(job).Inc()
}

// IncRunError increments the sweep error counter with classification.
func (m *SweepMetrics) IncRunError(job string, err error) {
	if m == nil || err == nil || m.runErrors == nil {
		return
	}
	m.runErrors.WithLabelValues(job, ClassifySweepJobReason(err)).Inc()
}

// AddCandidatesProcessed increments the processed counter for a resource by count.
func (m *SweepMetrics) AddCandidatesProcessed(job, resource string, count int) {
	if m == nil || count <= 0 || m.candidateDone == nil {
		return
	}
	m.candidateDone.WithLabelValues(job, resource).Add(float64(count))
}

// IncRunDeferred increments the deferred counter for a job and reason.
func (m *SweepMetrics) IncRunDeferred(job, reason string) {
	if m == nil || m.runDeferred == nil {
		return
	}
	m.runDeferred.WithLabelValues(job, reason).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SweepMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySweepErrorType returns a low-cardinality error type for logging.
func ClassifySweepErrorType(err error) string {
	if err == nil {
		return SweepErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SweepErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return SweepErrorTypeDB
	}
	return SweepErrorTypeBusinessRule
}

// ClassifySweepJobReason maps sweep errors to low-cardinality reasons.
func ClassifySweepJobReason(err error) string {
	if err == nil {
		return SweepJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SweepJobReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return SweepJobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return SweepJobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return SweepJobReasonUniqueViolation
	}
	return SweepJobReasonUnknown
}

// IsSweepErrorRetryable reports whether the sweep error should be retried.
func IsSweepErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
