package service

import (
	"context"
	"time"

	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/internal/observability/logger"
	"github.com/amrivadeneyra/lunari-sub001/internal/orgcontext"
	"github.com/amrivadeneyra/lunari-sub001/internal/quality/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultComputeTimeout = 5 * time.Second

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Service computes the four quality metrics. It is a pure reader: it
// never mutates conversation state and is safe to run concurrently with
// the sweep and with itself.
type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	computeTimeout time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("quality.service"),
		computeTimeout: defaultComputeTimeout,
	}
}

func (s *Service) AverageResponseTime(ctx context.Context, window domain.Window) (domain.ResponseTimeReport, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.ResponseTimeReport{}, domain.ErrInvalidCompany
	}

	ctx, cancel := context.WithTimeout(ctx, s.computeTimeout)
	defer cancel()

	var row struct {
		TotalConversations int64
		TotalMessages      int64
		TotalTime          int64
	}
	query, args := metricsAggregateQuery(
		`COUNT(*) AS total_conversations,
		 COALESCE(SUM(m.messages_count), 0) AS total_messages,
		 COALESCE(SUM(m.response_time_total), 0) AS total_time`,
		companyID, window,
	)
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return domain.ResponseTimeReport{}, err
	}

	report := domain.ResponseTimeReport{
		TotalConversations: row.TotalConversations,
		TotalMessages:      row.TotalMessages,
		FormattedTime:      FormatSeconds(0),
	}
	if row.TotalMessages > 0 {
		report.AverageSeconds = row.TotalTime / row.TotalMessages
		report.FormattedTime = FormatSeconds(report.AverageSeconds)
	}
	return report, nil
}

func (s *Service) OnTimeRate(ctx context.Context, window domain.Window) (domain.OnTimeReport, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.OnTimeReport{}, domain.ErrInvalidCompany
	}

	ctx, cancel := context.WithTimeout(ctx, s.computeTimeout)
	defer cancel()

	var row struct {
		OnTime int64
		Total  int64
	}
	query, args := metricsAggregateQuery(
		`COALESCE(SUM(m.messages_responded_on_time), 0) AS on_time,
		 COALESCE(SUM(m.total_messages_received), 0) AS total`,
		companyID, window,
	)
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return domain.OnTimeReport{}, err
	}

	report := domain.OnTimeReport{
		RespondedOnTime: row.OnTime,
		TotalMessages:   row.Total,
	}
	if row.Total > 0 {
		report.Percentage = round2(float64(row.OnTime) / float64(row.Total) * 100)
	}
	return report, nil
}

func (s *Service) ResolutionRate(ctx context.Context, window domain.Window) (domain.ResolutionReport, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.ResolutionReport{}, domain.ErrInvalidCompany
	}

	ctx, cancel := context.WithTimeout(ctx, s.computeTimeout)
	defer cancel()

	query := `SELECT resolution_type, COUNT(*) AS count
		 FROM conversations
		 WHERE company_id = ? AND resolution_type IS NOT NULL`
	args := []any{companyID}
	if window.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, *window.From)
	}
	if window.To != nil {
		query += ` AND created_at <= ?`
		args = append(args, *window.To)
	}
	query += ` GROUP BY resolution_type`

	var rows []struct {
		ResolutionType string
		Count          int64
	}
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return domain.ResolutionReport{}, err
	}

	var report domain.ResolutionReport
	for _, row := range rows {
		switch conversationdomain.ResolutionType(row.ResolutionType) {
		case conversationdomain.ResolutionFirstInteraction:
			report.FirstInteractionCount = row.Count
		case conversationdomain.ResolutionFollowUp:
			report.FollowUpCount = row.Count
		case conversationdomain.ResolutionEscalated:
			report.EscalatedCount = row.Count
		case conversationdomain.ResolutionUnresolved:
			report.UnresolvedCount = row.Count
		}
		report.TotalConversations += row.Count
	}
	if report.TotalConversations > 0 {
		report.FirstInteractionRate = round2(float64(report.FirstInteractionCount) / float64(report.TotalConversations) * 100)
	}
	return report, nil
}

func (s *Service) SatisfactionAverage(ctx context.Context, window domain.Window) (domain.SatisfactionReport, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.SatisfactionReport{}, domain.ErrInvalidCompany
	}

	ctx, cancel := context.WithTimeout(ctx, s.computeTimeout)
	defer cancel()

	query := `SELECT r.rating, COUNT(*) AS count
		 FROM satisfaction_ratings r
		 JOIN conversations c ON c.id = r.conversation_id
		 WHERE c.company_id = ?`
	args := []any{companyID}
	if window.Bounded() {
		if window.From != nil {
			query += ` AND r.created_at >= ?`
			args = append(args, *window.From)
		}
		if window.To != nil {
			query += ` AND r.created_at <= ?`
			args = append(args, *window.To)
		}
	}
	query += ` GROUP BY r.rating`

	var rows []struct {
		Rating int
		Count  int64
	}
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return domain.SatisfactionReport{}, err
	}

	var report domain.SatisfactionReport
	var sum int64
	for _, row := range rows {
		switch row.Rating {
		case 1:
			report.Distribution.Rating1 = row.Count
		case 2:
			report.Distribution.Rating2 = row.Count
		case 3:
			report.Distribution.Rating3 = row.Count
		case 4:
			report.Distribution.Rating4 = row.Count
		case 5:
			report.Distribution.Rating5 = row.Count
		default:
			continue
		}
		report.TotalRatings += row.Count
		sum += int64(row.Rating) * row.Count
	}
	if report.TotalRatings > 0 {
		report.AverageRating = round2(float64(sum) / float64(report.TotalRatings))
		report.Percentages = domain.RatingBuckets{
			Rating1: bucketPercent(report.Distribution.Rating1, report.TotalRatings),
			Rating2: bucketPercent(report.Distribution.Rating2, report.TotalRatings),
			Rating3: bucketPercent(report.Distribution.Rating3, report.TotalRatings),
			Rating4: bucketPercent(report.Distribution.Rating4, report.TotalRatings),
			Rating5: bucketPercent(report.Distribution.Rating5, report.TotalRatings),
		}
	}
	return report, nil
}

// Summary runs the four metrics independently. A failing metric leaves
// its slot nil and is logged; the other metrics still return.
func (s *Service) Summary(ctx context.Context, window domain.Window) (domain.Summary, error) {
	if _, ok := orgcontext.CompanyIDFromContext(ctx); !ok {
		return domain.Summary{}, domain.ErrInvalidCompany
	}

	var summary domain.Summary
	log := logger.WithContext(ctx, s.log)

	if report, err := s.AverageResponseTime(ctx, window); err != nil {
		log.Error("quality.summary.response_time.failed", zap.Error(err))
	} else {
		summary.ResponseTime = &report
	}
	if report, err := s.OnTimeRate(ctx, window); err != nil {
		log.Error("quality.summary.on_time.failed", zap.Error(err))
	} else {
		summary.OnTimeRate = &report
	}
	if report, err := s.ResolutionRate(ctx, window); err != nil {
		log.Error("quality.summary.resolution.failed", zap.Error(err))
	} else {
		summary.Resolution = &report
	}
	if report, err := s.SatisfactionAverage(ctx, window); err != nil {
		log.Error("quality.summary.satisfaction.failed", zap.Error(err))
	} else {
		summary.Satisfaction = &report
	}
	return summary, nil
}

func metricsAggregateQuery(selectList string, companyID snowflake.ID, window domain.Window) (string, []any) {
	query := `SELECT ` + selectList + `
		 FROM conversation_metrics m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.company_id = ?`
	args := []any{companyID}
	if !window.Bounded() {
		return query, args
	}
	if window.From != nil {
		query += ` AND c.created_at >= ?`
		args = append(args, *window.From)
	}
	if window.To != nil {
		query += ` AND c.created_at <= ?`
		args = append(args, *window.To)
	}
	return query, args
}

func bucketPercent(count, total int64) int64 {
	if total == 0 {
		return 0
	}
	return roundPercent(float64(count) / float64(total) * 100)
}
