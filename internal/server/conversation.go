package server

import (
	"net/http"
	"strings"

	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type createConversationRequest struct {
	CustomerID string `json:"customer_id"`
	Channel    string `json:"channel"`
}

func (s *Server) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.conversationSvc.Create(c.Request.Context(), conversationdomain.CreateConversationRequest{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Channel:    strings.TrimSpace(req.Channel),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListConversations(c *gin.Context) {
	var query struct {
		pagination.Pagination
		State       string `form:"state"`
		Live        string `form:"live"`
		CustomerID  string `form:"customer_id"`
		CreatedFrom string `form:"created_from"`
		CreatedTo   string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	live, err := parseOptionalBool(query.Live)
	if err != nil {
		AbortWithError(c, newValidationError("live", "invalid_live", "invalid live"))
		return
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_from", "invalid_created_from", "invalid created_from"))
		return
	}

	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_to", "invalid_created_to", "invalid created_to"))
		return
	}

	resp, err := s.conversationSvc.List(c.Request.Context(), conversationdomain.ListConversationRequest{
		PageToken:   query.PageToken,
		PageSize:    int32(query.PageSize),
		State:       strings.TrimSpace(query.State),
		Live:        live,
		CustomerID:  strings.TrimSpace(query.CustomerID),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetConversationByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("conversation_id"))
	resp, err := s.conversationSvc.GetByID(c.Request.Context(), conversationdomain.GetConversationRequest{
		ID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type appendMessageRequest struct {
	Role            string `json:"role"`
	Body            string `json:"body"`
	ResponseSeconds int64  `json:"response_seconds"`
	RespondedOnTime bool   `json:"responded_on_time"`
}

func (s *Server) AppendMessage(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.conversationSvc.AppendMessage(c.Request.Context(), conversationdomain.AppendMessageRequest{
		ConversationID:  strings.TrimSpace(c.Param("conversation_id")),
		Role:            strings.TrimSpace(req.Role),
		Body:            req.Body,
		ResponseSeconds: req.ResponseSeconds,
		RespondedOnTime: req.RespondedOnTime,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListConversationMessages(c *gin.Context) {
	var query struct {
		Limit int32 `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.conversationSvc.ListMessages(c.Request.Context(), conversationdomain.ListMessagesRequest{
		ConversationID: strings.TrimSpace(c.Param("conversation_id")),
		Limit:          query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetConversationMetrics(c *gin.Context) {
	resp, err := s.conversationSvc.Metrics(c.Request.Context(), conversationdomain.GetConversationRequest{
		ID: strings.TrimSpace(c.Param("conversation_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type submitRatingRequest struct {
	Rating     int    `json:"rating"`
	Resolution string `json:"resolution"`
}

func (s *Server) SubmitRating(c *gin.Context) {
	var req submitRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	conversationID := strings.TrimSpace(c.Param("conversation_id"))

	// Serialize concurrent submissions for the same conversation so the
	// unique-rating guarantee surfaces as a clean conflict.
	token, locked, err := s.ratingLimiter.TryLockConversation(ctx, conversationID)
	if err == nil && !locked {
		AbortWithError(c, ErrConflict)
		return
	}
	if token != "" {
		defer func() {
			_ = s.ratingLimiter.ReleaseConversation(ctx, conversationID, token)
		}()
	}

	resp, err := s.conversationSvc.SubmitRating(ctx, conversationdomain.SubmitRatingRequest{
		ConversationID: conversationID,
		Rating:         req.Rating,
		Resolution:     strings.TrimSpace(req.Resolution),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setLiveRequest struct {
	Live bool `json:"live"`
}

func (s *Server) SetConversationLive(c *gin.Context) {
	var req setLiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.conversationSvc.SetLive(c.Request.Context(), conversationdomain.SetLiveRequest{
		ConversationID: strings.TrimSpace(c.Param("conversation_id")),
		Live:           req.Live,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
