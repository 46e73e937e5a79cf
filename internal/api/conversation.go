package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/middleware"
	"github.com/tarun-08/pingme/internal/repository"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	repo   repository.ConversationRepository
	logger *zap.Logger
}

func NewConversationHandler(repo repository.ConversationRepository, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{repo: repo, logger: logger}
}

type createConversationRequest struct {
	User1ID uuid.UUID `json:"user1_id" binding:"required"`
	User2ID uuid.UUID `json:"user2_id" binding:"required"`
}

// Find handles GET /v1/conversations?user1=<id>&user2=<id>
//
// Matches either stored order; 404 means "no conversation yet", which the
// client treats as a cue to create one, not as an error.
func (h *ConversationHandler) Find(c *gin.Context) {
	user1, err := uuid.Parse(c.Query("user1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'user1' parameter"})
		return
	}
	user2, err := uuid.Parse(c.Query("user2"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'user2' parameter"})
		return
	}

	conv, err := h.repo.FindByPair(c.Request.Context(), user1, user2)
	if err != nil {
		h.logger.Error("failed to find conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to find conversation"})
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	c.JSON(http.StatusOK, conv)
}

// Create handles POST /v1/conversations
//
// 409 is the expected outcome when two clients race to create the same
// pair: the unique index on the canonicalized pair rejects the second
// insert, and the loser re-queries.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.User1ID == req.User2ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation requires two distinct profiles"})
		return
	}

	// The caller must be one side of the pair — nobody opens conversations
	// on other people's behalf.
	callerProfile := middleware.GetProfileID(c)
	if callerProfile != req.User1ID && callerProfile != req.User2ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller is not part of this conversation"})
		return
	}

	conv, err := h.repo.Create(c.Request.Context(), req.User1ID, req.User2ID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePair) {
			c.JSON(http.StatusConflict, gin.H{"error": "conversation already exists"})
			return
		}
		h.logger.Error("failed to create conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	c.JSON(http.StatusCreated, conv)
}
