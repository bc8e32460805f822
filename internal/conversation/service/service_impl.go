package service

import (
	"context"
	"strings"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/clock"
	"github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	obsmetrics "github.com/amrivadeneyra/lunari-sub001/internal/observability/metrics"
	"github.com/amrivadeneyra/lunari-sub001/internal/orgcontext"
	"github.com/amrivadeneyra/lunari-sub001/pkg/db"
	"github.com/amrivadeneyra/lunari-sub001/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("conversation.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateConversationRequest) (domain.Conversation, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.Conversation{}, domain.ErrInvalidCompany
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return domain.Conversation{}, domain.ErrInvalidCustomer
	}

	now := s.clock.Now()
	conversation := domain.Conversation{
		ID:                 s.genID.Generate(),
		CompanyID:          companyID,
		CustomerID:         customerID,
		State:              domain.StateActive,
		LastUserActivityAt: now,
		Channel:            strings.TrimSpace(req.Channel),
		Metadata:           datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, &conversation); err != nil {
		return domain.Conversation{}, err
	}

	s.metrics.RecordConversationStarted(ctx, conversation.Channel)
	return conversation, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetConversationRequest) (domain.Conversation, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.Conversation{}, domain.ErrInvalidCompany
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Conversation{}, err
	}

	conversation, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conversation == nil {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return *conversation, nil
}

func (s *Service) List(ctx context.Context, req domain.ListConversationRequest) (domain.ListConversationResponse, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.ListConversationResponse{}, domain.ErrInvalidCompany
	}

	filter := domain.ListConversationFilter{
		Live:        req.Live,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}
	if state := strings.TrimSpace(req.State); state != "" {
		filter.State = domain.State(strings.ToUpper(state))
	}
	if customer := strings.TrimSpace(req.CustomerID); customer != "" {
		id, err := snowflake.ParseString(customer)
		if err != nil || id == 0 {
			return domain.ListConversationResponse{}, domain.ErrInvalidCustomer
		}
		filter.CustomerID = int64(id)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, companyID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListConversationResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, pageSize, func(conversation *domain.Conversation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        conversation.ID.String(),
			CreatedAt: conversation.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	conversations := make([]domain.Conversation, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		conversations = append(conversations, *item)
	}

	resp := domain.ListConversationResponse{Conversations: conversations}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) AppendMessage(ctx context.Context, req domain.AppendMessageRequest) (domain.Message, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.Message{}, domain.ErrInvalidCompany
	}

	id, err := s.parseID(req.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}

	role := domain.MessageRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return domain.Message{}, domain.ErrInvalidRole
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return domain.Message{}, domain.ErrInvalidBody
	}

	conversation, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.Message{}, err
	}
	if conversation == nil {
		return domain.Message{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	message := domain.Message{
		ID:             s.genID.Generate(),
		ConversationID: conversation.ID,
		Role:           role,
		Body:           body,
		CreatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertMessage(ctx, tx, &message); err != nil {
			return err
		}
		switch role {
		case domain.RoleUser:
			// A customer speaking again is the only path back to ACTIVE.
			return s.repo.Reactivate(ctx, tx, conversation.ID, now)
		case domain.RoleAssistant:
			return s.repo.UpsertMetrics(ctx, tx, conversation.ID, req.ResponseSeconds, req.RespondedOnTime, now)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}

	s.metrics.RecordMessageAppended(ctx, string(role))
	return message, nil
}

func (s *Service) ListMessages(ctx context.Context, req domain.ListMessagesRequest) ([]domain.Message, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return nil, domain.ErrInvalidCompany
	}

	id, err := s.parseID(req.ConversationID)
	if err != nil {
		return nil, err
	}

	conversation, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, domain.ErrNotFound
	}

	limit := int(req.Limit)
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	items, err := s.repo.ListMessages(ctx, s.db, conversation.ID, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		messages = append(messages, *item)
	}
	return messages, nil
}

func (s *Service) Metrics(ctx context.Context, req domain.GetConversationRequest) (domain.MetricsRecord, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.MetricsRecord{}, domain.ErrInvalidCompany
	}

	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.MetricsRecord{}, err
	}

	conversation, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.MetricsRecord{}, err
	}
	if conversation == nil {
		return domain.MetricsRecord{}, domain.ErrNotFound
	}

	record, err := s.repo.FindMetrics(ctx, s.db, conversation.ID)
	if err != nil {
		return domain.MetricsRecord{}, err
	}
	if record == nil {
		// No assistant turn recorded yet; counters start at zero.
		return domain.MetricsRecord{ConversationID: conversation.ID}, nil
	}
	return *record, nil
}

func (s *Service) SubmitRating(ctx context.Context, req domain.SubmitRatingRequest) (domain.SatisfactionRating, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.SatisfactionRating{}, domain.ErrInvalidCompany
	}

	id, err := s.parseID(req.ConversationID)
	if err != nil {
		return domain.SatisfactionRating{}, err
	}
	if req.Rating < 1 || req.Rating > 5 {
		return domain.SatisfactionRating{}, domain.ErrInvalidRating
	}

	conversation, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.SatisfactionRating{}, err
	}
	if conversation == nil {
		return domain.SatisfactionRating{}, domain.ErrNotFound
	}
	if conversation.State == domain.StateActive && !conversation.SatisfactionCollected {
		return domain.SatisfactionRating{}, domain.ErrRatingNotAwaited
	}

	existing, err := s.repo.FindRating(ctx, s.db, conversation.ID)
	if err != nil {
		return domain.SatisfactionRating{}, err
	}
	if existing != nil {
		return domain.SatisfactionRating{}, domain.ErrRatingRecorded
	}

	var resolution domain.ResolutionType
	if value := strings.TrimSpace(req.Resolution); value != "" {
		resolution, err = domain.ParseResolution(value)
		if err != nil {
			return domain.SatisfactionRating{}, err
		}
	}

	now := s.clock.Now()
	rating := domain.SatisfactionRating{
		ID:             s.genID.Generate(),
		ConversationID: conversation.ID,
		Rating:         req.Rating,
		CreatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertRating(ctx, tx, &rating); err != nil {
			return err
		}
		if resolution != "" {
			return s.repo.SetResolution(ctx, tx, conversation.ID, resolution, now)
		}
		return nil
	})
	if err != nil {
		// The unique index is the source of truth under concurrent submits.
		if db.IsDuplicateKeyErr(err) {
			return domain.SatisfactionRating{}, domain.ErrRatingRecorded
		}
		return domain.SatisfactionRating{}, err
	}

	s.metrics.RecordRatingRecorded(ctx, rating.Rating)
	return rating, nil
}

func (s *Service) SetLive(ctx context.Context, req domain.SetLiveRequest) (domain.Conversation, error) {
	companyID, ok := orgcontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return domain.Conversation{}, domain.ErrInvalidCompany
	}

	id, err := s.parseID(req.ConversationID)
	if err != nil {
		return domain.Conversation{}, err
	}

	updated, err := s.repo.SetLive(ctx, s.db, companyID, id, req.Live, s.clock.Now())
	if err != nil {
		return domain.Conversation{}, err
	}
	if !updated {
		return domain.Conversation{}, domain.ErrNotFound
	}

	conversation, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conversation == nil {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return *conversation, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
