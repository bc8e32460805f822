package service

import (
	"context"
	"testing"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/clock"
	"github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/internal/conversation/repository"
	"github.com/amrivadeneyra/lunari-sub001/internal/orgcontext"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testCompanyID int64 = 2010735548360036353

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	clock *clock.FakeClock
	ctx   context.Context
	genID *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE conversations (
			id INTEGER PRIMARY KEY,
			company_id INTEGER NOT NULL,
			customer_id INTEGER NOT NULL,
			state TEXT NOT NULL DEFAULT 'ACTIVE',
			resolution_type TEXT,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			satisfaction_collected BOOLEAN NOT NULL DEFAULT FALSE,
			last_user_activity_at DATETIME NOT NULL,
			live BOOLEAN NOT NULL DEFAULT FALSE,
			channel TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE messages (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE conversation_metrics (
			conversation_id INTEGER PRIMARY KEY,
			response_time_total INTEGER NOT NULL DEFAULT 0,
			messages_count INTEGER NOT NULL DEFAULT 0,
			messages_responded_on_time INTEGER NOT NULL DEFAULT 0,
			total_messages_received INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE satisfaction_ratings (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL UNIQUE,
			rating INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, statement := range statements {
		require.NoError(t, db.Exec(statement).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  repository.Provide(),
	})

	return &fixture{
		db:    db,
		svc:   svc,
		clock: fakeClock,
		ctx:   orgcontext.WithCompanyID(context.Background(), testCompanyID),
		genID: node,
	}
}

func (f *fixture) createConversation(t *testing.T) domain.Conversation {
	t.Helper()
	conversation, err := f.svc.Create(f.ctx, domain.CreateConversationRequest{
		CustomerID: f.genID.Generate().String(),
		Channel:    "whatsapp",
	})
	require.NoError(t, err)
	return conversation
}

func (f *fixture) setState(t *testing.T, id snowflake.ID, state domain.State, collected bool) {
	t.Helper()
	require.NoError(t, f.db.Exec(
		`UPDATE conversations SET state = ?, satisfaction_collected = ? WHERE id = ?`,
		state, collected, id,
	).Error)
}

func TestCreateConversation(t *testing.T) {
	f := setup(t)

	conversation := f.createConversation(t)
	assert.Equal(t, domain.StateActive, conversation.State)
	assert.Equal(t, snowflake.ID(testCompanyID), conversation.CompanyID)
	assert.Equal(t, "whatsapp", conversation.Channel)
	assert.False(t, conversation.Resolved)
	assert.Equal(t, f.clock.Now(), conversation.LastUserActivityAt)

	fetched, err := f.svc.GetByID(f.ctx, domain.GetConversationRequest{ID: conversation.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, fetched.ID)
}

func TestCreateConversationRequiresCompany(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(context.Background(), domain.CreateConversationRequest{CustomerID: "123"})
	assert.ErrorIs(t, err, domain.ErrInvalidCompany)
}

func TestCreateConversationRejectsBadCustomer(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.ctx, domain.CreateConversationRequest{CustomerID: "not-a-number"})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)
}

func TestGetByIDNotFound(t *testing.T) {
	f := setup(t)

	_, err := f.svc.GetByID(f.ctx, domain.GetConversationRequest{ID: "42"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppendMessageUserReactivates(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)
	f.setState(t, conversation.ID, domain.StateIdle, false)

	f.clock.Advance(10 * time.Minute)
	message, err := f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID: conversation.ID.String(),
		Role:           "user",
		Body:           "sigo teniendo el problema",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, message.Role)

	fetched, err := f.svc.GetByID(f.ctx, domain.GetConversationRequest{ID: conversation.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, fetched.State)
	assert.True(t, fetched.LastUserActivityAt.Equal(f.clock.Now()))
}

func TestAppendMessageAssistantAccumulatesMetrics(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)

	_, err := f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID:  conversation.ID.String(),
		Role:            "assistant",
		Body:            "Claro, te ayudo con eso.",
		ResponseSeconds: 30,
		RespondedOnTime: true,
	})
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID:  conversation.ID.String(),
		Role:            "assistant",
		Body:            "Aquí tienes el detalle.",
		ResponseSeconds: 40,
		RespondedOnTime: false,
	})
	require.NoError(t, err)

	var record domain.MetricsRecord
	require.NoError(t, f.db.Raw(
		`SELECT conversation_id, response_time_total, messages_count,
		        messages_responded_on_time, total_messages_received
		 FROM conversation_metrics WHERE conversation_id = ?`,
		conversation.ID,
	).Scan(&record).Error)

	assert.Equal(t, int64(70), record.ResponseTimeTotal)
	assert.Equal(t, int64(2), record.MessagesCount)
	assert.Equal(t, int64(1), record.MessagesRespondedOnTime)
	assert.Equal(t, int64(2), record.TotalMessagesReceived)
}

func TestAppendMessageAssistantDoesNotTouchUserActivity(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)
	createdAt := f.clock.Now()

	f.clock.Advance(time.Minute)
	_, err := f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID: conversation.ID.String(),
		Role:           "assistant",
		Body:           "Espero haberte ayudado.",
	})
	require.NoError(t, err)

	fetched, err := f.svc.GetByID(f.ctx, domain.GetConversationRequest{ID: conversation.ID.String()})
	require.NoError(t, err)
	assert.True(t, fetched.LastUserActivityAt.Equal(createdAt))
}

func TestAppendMessageValidation(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)

	_, err := f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID: conversation.ID.String(),
		Role:           "system",
		Body:           "hola",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID: conversation.ID.String(),
		Role:           "user",
		Body:           "   ",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBody)
}

func TestSubmitRatingRequiresAwaitingState(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)

	_, err := f.svc.SubmitRating(f.ctx, domain.SubmitRatingRequest{
		ConversationID: conversation.ID.String(),
		Rating:         5,
	})
	assert.ErrorIs(t, err, domain.ErrRatingNotAwaited)
}

func TestSubmitRatingOnce(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)
	f.setState(t, conversation.ID, domain.StateAwaitingRating, true)

	rating, err := f.svc.SubmitRating(f.ctx, domain.SubmitRatingRequest{
		ConversationID: conversation.ID.String(),
		Rating:         4,
		Resolution:     "FIRST_INTERACTION",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, rating.Rating)

	fetched, err := f.svc.GetByID(f.ctx, domain.GetConversationRequest{ID: conversation.ID.String()})
	require.NoError(t, err)
	require.NotNil(t, fetched.ResolutionType)
	assert.Equal(t, domain.ResolutionFirstInteraction, *fetched.ResolutionType)
	assert.True(t, fetched.Resolved)

	// A rating is immutable; a second submit conflicts.
	_, err = f.svc.SubmitRating(f.ctx, domain.SubmitRatingRequest{
		ConversationID: conversation.ID.String(),
		Rating:         1,
	})
	assert.ErrorIs(t, err, domain.ErrRatingRecorded)
}

func TestSubmitRatingValidation(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)
	f.setState(t, conversation.ID, domain.StateAwaitingRating, true)

	_, err := f.svc.SubmitRating(f.ctx, domain.SubmitRatingRequest{
		ConversationID: conversation.ID.String(),
		Rating:         6,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRating)

	_, err = f.svc.SubmitRating(f.ctx, domain.SubmitRatingRequest{
		ConversationID: conversation.ID.String(),
		Rating:         3,
		Resolution:     "SOMETHING_ELSE",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidResolution)
}

func TestSubmitRatingOnIdleConversation(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)
	f.setState(t, conversation.ID, domain.StateIdle, false)

	// Idle conversations may still be rated; only ACTIVE without a
	// pending request refuses.
	rating, err := f.svc.SubmitRating(f.ctx, domain.SubmitRatingRequest{
		ConversationID: conversation.ID.String(),
		Rating:         2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rating.Rating)
}

func TestSetLive(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)

	updated, err := f.svc.SetLive(f.ctx, domain.SetLiveRequest{
		ConversationID: conversation.ID.String(),
		Live:           true,
	})
	require.NoError(t, err)
	assert.True(t, updated.Live)

	_, err = f.svc.SetLive(f.ctx, domain.SetLiveRequest{ConversationID: "42", Live: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListConversationsFilters(t *testing.T) {
	f := setup(t)
	first := f.createConversation(t)
	f.clock.Advance(time.Second)
	second := f.createConversation(t)
	f.setState(t, second.ID, domain.StateIdle, false)

	resp, err := f.svc.List(f.ctx, domain.ListConversationRequest{State: "idle"})
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, second.ID, resp.Conversations[0].ID)

	resp, err = f.svc.List(f.ctx, domain.ListConversationRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 2)
	// Newest first.
	assert.Equal(t, second.ID, resp.Conversations[0].ID)
	assert.Equal(t, first.ID, resp.Conversations[1].ID)
}

func TestListMessagesReturnsChronology(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)

	_, err := f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID: conversation.ID.String(),
		Role:           "user",
		Body:           "hola, tengo un problema",
	})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID: conversation.ID.String(),
		Role:           "assistant",
		Body:           "Claro, cuéntame.",
	})
	require.NoError(t, err)

	messages, err := f.svc.ListMessages(f.ctx, domain.ListMessagesRequest{
		ConversationID: conversation.ID.String(),
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "hola, tengo un problema", messages[0].Body)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)

	limited, err := f.svc.ListMessages(f.ctx, domain.ListMessagesRequest{
		ConversationID: conversation.ID.String(),
		Limit:          1,
	})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, messages[0].ID, limited[0].ID)
}

func TestListMessagesGuards(t *testing.T) {
	f := setup(t)
	conversation := f.createConversation(t)

	_, err := f.svc.ListMessages(context.Background(), domain.ListMessagesRequest{
		ConversationID: conversation.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCompany)

	_, err = f.svc.ListMessages(f.ctx, domain.ListMessagesRequest{
		ConversationID: f.genID.Generate().String(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationMetrics(t *testing.T) {
	f := setup(t)
	f.clock.SetNow(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	conversation := f.createConversation(t)

	// Before any assistant turn the counters read zero.
	record, err := f.svc.Metrics(f.ctx, domain.GetConversationRequest{ID: conversation.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, record.ConversationID)
	assert.Zero(t, record.MessagesCount)

	_, err = f.svc.AppendMessage(f.ctx, domain.AppendMessageRequest{
		ConversationID:  conversation.ID.String(),
		Role:            "assistant",
		Body:            "Aquí tienes.",
		ResponseSeconds: 30,
		RespondedOnTime: true,
	})
	require.NoError(t, err)

	record, err = f.svc.Metrics(f.ctx, domain.GetConversationRequest{ID: conversation.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(30), record.ResponseTimeTotal)
	assert.Equal(t, int64(1), record.MessagesCount)
	assert.Equal(t, int64(1), record.MessagesRespondedOnTime)

	_, err = f.svc.Metrics(f.ctx, domain.GetConversationRequest{ID: f.genID.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
