package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/hub"
	"github.com/tarun-08/pingme/internal/middleware"
	"github.com/tarun-08/pingme/internal/repository"
	"go.uber.org/zap"
)

type MessageHandler struct {
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	hub           *hub.Hub
	logger        *zap.Logger
}

func NewMessageHandler(messages repository.MessageRepository, conversations repository.ConversationRepository, h *hub.Hub, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, conversations: conversations, hub: h, logger: logger}
}

type createMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Create handles POST /v1/conversations/:id/messages
//
// After the insert commits, the message goes to the hub so every open
// subscription on this conversation — including the sender's own — receives
// the echo. Clients dedup by id.
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is empty"})
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	conv, err := h.conversations.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	senderID := middleware.GetProfileID(c)
	if senderID != conv.User1ID && senderID != conv.User2ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller is not part of this conversation"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), conversationID, senderID, content)
	if err != nil {
		h.logger.Error("failed to create message", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}

	h.hub.Broadcast(c.Request.Context(), *msg)
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/conversations/:id/messages?limit=100
//
// Returns the most recent `limit` messages, ordered created_at ascending.
// Default 100, capped at 200.
func (h *MessageHandler) List(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		if limit > 200 {
			limit = 200
		}
	}

	messages, err := h.messages.ListRecent(c.Request.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}
