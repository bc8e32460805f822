package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// State is the lifecycle state of a conversation. The sweep only moves
// conversations forward (ACTIVE to AWAITING_RATING or IDLE); a new
// inbound customer message is the only path back to ACTIVE.
type State string

const (
	StateActive         State = "ACTIVE"
	StateAwaitingRating State = "AWAITING_RATING"
	StateIdle           State = "IDLE"
)

// ResolutionType classifies how a conversation was resolved. It is an
// independent axis from State and stays NULL until a judgment is recorded.
type ResolutionType string

const (
	ResolutionFirstInteraction ResolutionType = "FIRST_INTERACTION"
	ResolutionFollowUp         ResolutionType = "FOLLOW_UP"
	ResolutionEscalated        ResolutionType = "ESCALATED"
	ResolutionUnresolved       ResolutionType = "UNRESOLVED"
)

// MessageRole identifies the author of a conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Company struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	Slug      string       `gorm:"not null;uniqueIndex" json:"slug"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

type Conversation struct {
	ID                    snowflake.ID      `gorm:"primaryKey" json:"id"`
	CompanyID             snowflake.ID      `gorm:"not null;index" json:"company_id"`
	CustomerID            snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	State                 State             `gorm:"not null;default:'ACTIVE'" json:"state"`
	ResolutionType        *ResolutionType   `gorm:"column:resolution_type" json:"resolution_type,omitempty"`
	Resolved              bool              `gorm:"not null;default:false" json:"resolved"`
	SatisfactionCollected bool              `gorm:"not null;default:false" json:"satisfaction_collected"`
	LastUserActivityAt    time.Time         `gorm:"not null" json:"last_user_activity_at"`
	Live                  bool              `gorm:"not null;default:false" json:"live"`
	Channel               string            `gorm:"column:channel" json:"channel,omitempty"`
	Metadata              datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

type Message struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ConversationID snowflake.ID `gorm:"not null;index" json:"conversation_id"`
	Role           MessageRole  `gorm:"not null" json:"role"`
	Body           string       `gorm:"not null" json:"body"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// MetricsRecord accumulates per-conversation response counters. It is
// maintained by the messaging path and read by the quality aggregator.
type MetricsRecord struct {
	ConversationID          snowflake.ID `gorm:"primaryKey" json:"conversation_id"`
	ResponseTimeTotal       int64        `gorm:"not null;default:0" json:"response_time_total"`
	MessagesCount           int64        `gorm:"not null;default:0" json:"messages_count"`
	MessagesRespondedOnTime int64        `gorm:"not null;default:0" json:"messages_responded_on_time"`
	TotalMessagesReceived   int64        `gorm:"not null;default:0" json:"total_messages_received"`
	UpdatedAt               time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MetricsRecord) TableName() string {
	return "conversation_metrics"
}

// SatisfactionRating is created exactly once per conversation and is
// immutable afterward.
type SatisfactionRating struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ConversationID snowflake.ID `gorm:"not null;uniqueIndex" json:"conversation_id"`
	Rating         int          `gorm:"not null" json:"rating"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
