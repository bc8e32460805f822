package domain

import (
	"context"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, conversation *Conversation) error
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Conversation, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListConversationFilter, page pagination.Pagination) ([]*Conversation, error)

	InsertMessage(ctx context.Context, db *gorm.DB, message *Message) error
	ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, limit int) ([]*Message, error)

	// Reactivate moves a conversation back to ACTIVE on a new customer
	// message and refreshes last_user_activity_at. It is unconditional on
	// state: a customer speaking again always reactivates.
	Reactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	SetLive(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID, live bool, at time.Time) (bool, error)
	SetResolution(ctx context.Context, db *gorm.DB, id snowflake.ID, resolution ResolutionType, at time.Time) error

	UpsertMetrics(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, responseSeconds int64, onTime bool, at time.Time) error
	FindMetrics(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) (*MetricsRecord, error)

	InsertRating(ctx context.Context, db *gorm.DB, rating *SatisfactionRating) error
	FindRating(ctx context.Context, db *gorm.DB, conversationID snowflake.ID) (*SatisfactionRating, error)
}
