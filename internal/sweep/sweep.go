package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/clock"
	"github.com/amrivadeneyra/lunari-sub001/internal/lifecycle"
	obsmetrics "github.com/amrivadeneyra/lunari-sub001/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobName = "satisfaction_sweep"

var (
	ErrInvalidConfig = errors.New("sweep_invalid_config")

	// ErrRunInProgress is returned when a pass is requested while a
	// previous one is still running. Passes never overlap.
	ErrRunInProgress = errors.New("sweep_run_in_progress")
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Detector lifecycle.HelpDetector
	Config   Config `optional:"true"`
}

// Sweeper walks stale ACTIVE conversations on a fixed tick and applies
// the help-confirmation and inactivity transitions.
type Sweeper struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	detector lifecycle.HelpDetector

	running atomic.Bool
}

// Summary reports what one pass did.
type Summary struct {
	Processed     int
	HelpConfirmed int
	Inactive      int
	Failed        int
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Detector == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:       p.DB,
		log:      p.Log.Named("sweep").With(zap.String("component", "sweep")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		detector: p.Detector,
	}, nil
}

// RunOnce executes a single sweep pass. A pass that finds a previous one
// still running is skipped, not queued.
func (s *Sweeper) RunOnce(parent context.Context) (Summary, error) {
	sweepMetrics := obsmetrics.Sweep()
	if !s.running.CompareAndSwap(false, true) {
		sweepMetrics.IncRunDeferred(jobName, obsmetrics.SweepDeferredReasonRunInProgress)
		s.log.Info("sweep.run.deferred", zap.String("reason", obsmetrics.SweepDeferredReasonRunInProgress))
		return Summary{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	sweepMetrics.IncRun(jobName)
	run := s.newRun(jobName)
	s.logRunStart(parent, run)

	summary, err := s.sweep(parent, run)
	sweepMetrics.ObserveRunDuration(jobName, time.Since(run.startedAt))
	if err != nil {
		if run.errorCount == 0 {
			run.IncError()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			sweepMetrics.IncRunTimeout(jobName)
		}
		sweepMetrics.IncRunError(jobName, err)
	}
	s.logRunFinish(parent, run)

	return summary, err
}

func (s *Sweeper) sweep(ctx context.Context, run *sweepRun) (Summary, error) {
	var summary Summary
	sweepMetrics := obsmetrics.Sweep()
	now := s.clock.Now()
	helpWindowStart := now.Add(-s.cfg.HelpConfirmationAfter)
	inactiveCutoff := now.Add(-s.cfg.InactivityAfter)

	// The partition is fixed before any row is mutated. A conversation
	// eligible for both transitions takes the help-confirmation one.
	helpCandidates, err := s.fetchHelpCandidates(ctx, helpWindowStart, now, s.cfg.BatchSize)
	if err != nil {
		s.logSweepError(ctx, run, "sweep.select.failed", 0, err)
		return summary, err
	}
	inactiveCandidates, err := s.fetchInactiveCandidates(ctx, inactiveCutoff, s.cfg.BatchSize)
	if err != nil {
		s.logSweepError(ctx, run, "sweep.select.failed", 0, err)
		return summary, err
	}

	confirmed := make([]WorkConversation, 0, len(helpCandidates))
	confirmedIDs := make(map[snowflake.ID]struct{}, len(helpCandidates))
	for _, candidate := range helpCandidates {
		bodies, err := s.fetchAssistantBodies(ctx, candidate.ID, helpWindowStart, now)
		if err != nil {
			s.logSweepError(ctx, run, "sweep.select.failed", candidate.CompanyID, err,
				zap.String("conversation_id", idString(candidate.ID)),
			)
			return summary, err
		}
		for _, body := range bodies {
			if s.detector.IsHelpOffered(body) {
				confirmed = append(confirmed, candidate)
				confirmedIDs[candidate.ID] = struct{}{}
				break
			}
		}
	}

	// Per-candidate failures are isolated: counted, logged, and the pass
	// moves on. Only candidate enumeration aborts the pass.
	for _, candidate := range confirmed {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		decision, ok := lifecycle.Decide(candidate.snapshot(), lifecycle.TriggerHelpConfirmed)
		if !ok {
			continue
		}
		s.logCandidateClaimed(ctx, run, obsmetrics.SweepResourceHelpConfirmation, candidate)
		candCtx, cancel := context.WithTimeout(ctx, s.cfg.CandidateTimeout)
		updated, err := s.applyTransition(candCtx, candidate.ID, decision, helpWindowStart, now)
		cancel()
		if err != nil {
			summary.Failed++
			sweepMetrics.IncRunError(jobName, err)
			s.logSweepError(ctx, run, "sweep.candidate.failed", candidate.CompanyID, err,
				zap.String("conversation_id", idString(candidate.ID)),
				zap.String("resource", obsmetrics.SweepResourceHelpConfirmation),
			)
			continue
		}
		if updated {
			summary.HelpConfirmed++
			summary.Processed++
			run.AddProcessed(1)
		}
	}
	sweepMetrics.AddCandidatesProcessed(jobName, obsmetrics.SweepResourceHelpConfirmation, summary.HelpConfirmed)

	for _, candidate := range inactiveCandidates {
		if _, ok := confirmedIDs[candidate.ID]; ok {
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		decision, ok := lifecycle.Decide(candidate.snapshot(), lifecycle.TriggerInactivity)
		if !ok {
			continue
		}
		s.logCandidateClaimed(ctx, run, obsmetrics.SweepResourceInactivity, candidate)
		candCtx, cancel := context.WithTimeout(ctx, s.cfg.CandidateTimeout)
		updated, err := s.applyTransition(candCtx, candidate.ID, decision, inactiveCutoff, now)
		cancel()
		if err != nil {
			summary.Failed++
			sweepMetrics.IncRunError(jobName, err)
			s.logSweepError(ctx, run, "sweep.candidate.failed", candidate.CompanyID, err,
				zap.String("conversation_id", idString(candidate.ID)),
				zap.String("resource", obsmetrics.SweepResourceInactivity),
			)
			continue
		}
		if updated {
			summary.Inactive++
			summary.Processed++
			run.AddProcessed(1)
		}
	}
	sweepMetrics.AddCandidatesProcessed(jobName, obsmetrics.SweepResourceInactivity, summary.Inactive)

	return summary, nil
}

// RunForever runs passes on a fixed tick until the context is canceled.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	sweepMetrics := obsmetrics.Sweep()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			sweepMetrics.ObserveRunLoopLag(runLag)
		}
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
