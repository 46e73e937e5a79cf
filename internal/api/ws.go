package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tarun-08/pingme/internal/hub"
	"github.com/tarun-08/pingme/internal/middleware"
	"github.com/tarun-08/pingme/internal/repository"
	"go.uber.org/zap"
)

// WSHandler upgrades /v1/ws?conversation_id=<id> to a websocket and streams
// that conversation's inserts to it. One socket = one conversation: clients
// switching conversations close the old socket and dial a new one, which is
// what keeps subscription lifetime tied to view lifetime.
type WSHandler struct {
	conversations repository.ConversationRepository
	hub           *hub.Hub
	logger        *zap.Logger
	upgrader      websocket.Upgrader
}

func NewWSHandler(conversations repository.ConversationRepository, h *hub.Hub, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		conversations: conversations,
		hub:           h,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth is the bearer token, not the Origin header; the dev
			// server accepts cross-origin dials.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe handles GET /v1/ws?conversation_id=<id> (behind AuthMiddleware).
func (h *WSHandler) Subscribe(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Query("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'conversation_id' parameter"})
		return
	}

	conv, err := h.conversations.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	profileID := middleware.GetProfileID(c)
	if profileID != conv.User1ID && profileID != conv.User2ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller is not part of this conversation"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := hub.NewConn(ws)
	h.hub.Register(conversationID, conn)
	defer func() {
		h.hub.Unregister(conversationID, conn)
		ws.Close()
	}()

	h.logger.Debug("subscriber connected",
		zap.String("conversation_id", conversationID.String()),
		zap.String("profile_id", profileID.String()))

	// The stream is one-way. Reading is only how we learn the peer hung
	// up: ReadMessage returns an error when the socket closes.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
