package repository

import (
	"context"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/pkg/db/option"
	"github.com/amrivadeneyra/lunari-sub001/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, conversation *domain.Conversation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO conversations (id, company_id, customer_id, state, resolution_type, resolved,
		        satisfaction_collected, last_user_activity_at, live, channel, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conversation.ID,
		conversation.CompanyID,
		conversation.CustomerID,
		conversation.State,
		conversation.ResolutionType,
		conversation.Resolved,
		conversation.SatisfactionCollected,
		conversation.LastUserActivityAt,
		conversation.Live,
		conversation.Channel,
		conversation.Metadata,
		conversation.CreatedAt,
		conversation.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Conversation, error) {
	var conversation domain.Conversation
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, customer_id, state, resolution_type, resolved,
		        satisfaction_collected, last_user_activity_at, live, channel, metadata, created_at, updated_at
		 FROM conversations WHERE company_id = ? AND id = ?`,
		companyID,
		id,
	).Scan(&conversation).Error
	if err != nil {
		return nil, err
	}
	if conversation.ID == 0 {
		return nil, nil
	}
	return &conversation, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListConversationFilter, page pagination.Pagination) ([]*domain.Conversation, error) {
	var conversations []*domain.Conversation
	stmt := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("company_id = ?", companyID)
	if filter.State != "" {
		stmt = stmt.Where("state = ?", filter.State)
	}
	if filter.Live != nil {
		stmt = stmt.Where("live = ?", *filter.Live)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *repo) InsertMessage(ctx context.Context, db *gorm.DB, message *domain.Message) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO messages (id, conversation_id, role, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		message.ID,
		message.ConversationID,
		message.Role,
		message.Body,
		message.CreatedAt,
	).Error
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var messages []*domain.Message
	err := db.WithContext(ctx).Raw(
		`SELECT id, conversation_id, role, body, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		conversationID,
		limit,
	).Scan(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repo) Reactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE conversations
		 SET state = ?, last_user_activity_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StateActive,
		at,
		at,
		id,
	).Error
}

func (r *repo) SetLive(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID, live bool, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE conversations SET live = ?, updated_at = ? WHERE company_id = ? AND id = ?`,
		live,
		at,
		companyID,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetResolution(ctx context.Context, db *gorm.DB, id snowflake.ID, resolution domain.ResolutionType, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE conversations SET resolution_type = ?, resolved = TRUE, updated_at = ? WHERE id = ?`,
		resolution,
		at,
		id,
	).Error
}

func (r *repo) UpsertMetrics(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, responseSeconds int64, onTime bool, at time.Time) error {
	onTimeDelta := 0
	if onTime {
		onTimeDelta = 1
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO conversation_metrics
		   (conversation_id, response_time_total, messages_count, messages_responded_on_time, total_messages_received, updated_at)
		 VALUES (?, ?, 1, ?, 1, ?)
		 ON CONFLICT (conversation_id) DO UPDATE SET
		   response_time_total = conversation_metrics.response_time_total + ?,
		   messages_count = conversation_metrics.messages_count + 1,
		   messages_responded_on_time = conversation_metrics.messages_responded_on_time + ?,
		   total_messages_received = conversation_metrics.total_messages_received + 1,
		   updated_at = ?`,
		conversationID,
		responseSeconds,
		onTimeDelta,
		at,
		responseSeconds,
		onTimeDelta,
		at,
	).Error
}

func (r *repo) FindMetrics(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) (*domain.MetricsRecord, error) {
	var record domain.MetricsRecord
	err := db.WithContext(ctx).Raw(
		`SELECT conversation_id, response_time_total, messages_count,
		        messages_responded_on_time, total_messages_received, updated_at
		 FROM conversation_metrics WHERE conversation_id = ?`,
		conversationID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ConversationID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) InsertRating(ctx context.Context, db *gorm.DB, rating *domain.SatisfactionRating) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO satisfaction_ratings (id, conversation_id, rating, created_at)
		 VALUES (?, ?, ?, ?)`,
		rating.ID,
		rating.ConversationID,
		rating.Rating,
		rating.CreatedAt,
	).Error
}

func (r *repo) FindRating(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) (*domain.SatisfactionRating, error) {
	var rating domain.SatisfactionRating
	err := db.WithContext(ctx).Raw(
		`SELECT id, conversation_id, rating, created_at
		 FROM satisfaction_ratings WHERE conversation_id = ?`,
		conversationID,
	).Scan(&rating).Error
	if err != nil {
		return nil, err
	}
	if rating.ID == 0 {
		return nil, nil
	}
	return &rating, nil
}
