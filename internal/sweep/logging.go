package sweep

import (
	"context"
	"time"

	obslogger "github.com/amrivadeneyra/lunari-sub001/internal/observability/logger"
	obsmetrics "github.com/amrivadeneyra/lunari-sub001/internal/observability/metrics"
	"github.com/amrivadeneyra/lunari-sub001/internal/orgcontext"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type sweepRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
}

func (r *sweepRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *sweepRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (s *Sweeper) newRun(job string) *sweepRun {
	return &sweepRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: s.cfg.BatchSize,
		startedAt: time.Now(),
	}
}

func (s *Sweeper) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Sweeper) logRunStart(ctx context.Context, run *sweepRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("sweep.run.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Sweeper) logRunFinish(ctx context.Context, run *sweepRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("sweep.run.finish", fields...)
		return
	}
	log.Info("sweep.run.finish", fields...)
}

func (s *Sweeper) logSweepError(ctx context.Context, run *sweepRun, msg string, companyID snowflake.ID, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	if run != nil {
		run.IncError()
	}
	if companyID != 0 {
		ctx = orgcontext.WithCompanyID(ctx, int64(companyID))
	}
	baseFields := []zap.Field{
		zap.String("job", run.job),
		zap.String("company_id", idString(companyID)),
		zap.String("error_type", obsmetrics.ClassifySweepErrorType(err)),
		zap.String("error", err.Error()),
		zap.Bool("retryable", obsmetrics.IsSweepErrorRetryable(err)),
	}
	s.logger(ctx).Error(msg, append(baseFields, fields...)...)
}

func (s *Sweeper) logCandidateClaimed(ctx context.Context, run *sweepRun, resource string, candidate WorkConversation) {
	s.logger(ctx).Debug("sweep.candidate.claimed",
		zap.String("job", run.job),
		zap.String("resource", resource),
		zap.String("conversation_id", idString(candidate.ID)),
		zap.String("company_id", idString(candidate.CompanyID)),
	)
}

func idString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}
