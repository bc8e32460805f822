package domain

import (
	"context"
	"errors"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/pkg/db/pagination"
)

type ListConversationRequest struct {
	PageToken   string
	PageSize    int32
	State       string
	Live        *bool
	CustomerID  string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListConversationFilter struct {
	State       State
	Live        *bool
	CustomerID  int64
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListConversationResponse struct {
	pagination.PageInfo
	Conversations []Conversation `json:"conversations"`
}

type CreateConversationRequest struct {
	CustomerID string
	Channel    string
}

type GetConversationRequest struct {
	ID string
}

type ListMessagesRequest struct {
	ConversationID string
	Limit          int32
}

type AppendMessageRequest struct {
	ConversationID string
	Role           string
	Body           string

	// ResponseSeconds and RespondedOnTime describe the latency of an
	// assistant turn, as classified by the messaging transport. They are
	// recorded as opaque counters and ignored for user turns.
	ResponseSeconds int64
	RespondedOnTime bool
}

type SubmitRatingRequest struct {
	ConversationID string
	Rating         int
	Resolution     string
}

type SetLiveRequest struct {
	ConversationID string
	Live           bool
}

type Service interface {
	Create(context.Context, CreateConversationRequest) (Conversation, error)
	GetByID(context.Context, GetConversationRequest) (Conversation, error)
	List(context.Context, ListConversationRequest) (ListConversationResponse, error)
	AppendMessage(context.Context, AppendMessageRequest) (Message, error)
	ListMessages(context.Context, ListMessagesRequest) ([]Message, error)
	Metrics(context.Context, GetConversationRequest) (MetricsRecord, error)
	SubmitRating(context.Context, SubmitRatingRequest) (SatisfactionRating, error)
	SetLive(context.Context, SetLiveRequest) (Conversation, error)
}

var (
	ErrInvalidCompany    = errors.New("invalid_company")
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrInvalidBody       = errors.New("invalid_body")
	ErrInvalidRating     = errors.New("invalid_rating")
	ErrInvalidResolution = errors.New("invalid_resolution")
	ErrNotFound          = errors.New("not_found")
	ErrRatingRecorded    = errors.New("rating_already_recorded")
	ErrRatingNotAwaited  = errors.New("rating_not_requested")
)

// ParseResolution validates an inbound resolution classification.
func ParseResolution(value string) (ResolutionType, error) {
	switch ResolutionType(value) {
	case ResolutionFirstInteraction, ResolutionFollowUp, ResolutionEscalated, ResolutionUnresolved:
		return ResolutionType(value), nil
	default:
		return "", ErrInvalidResolution
	}
}
