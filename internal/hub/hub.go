// Package hub fans newly committed messages out to the websocket
// subscriptions of each conversation.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

// channelPrefix namespaces the redis pub/sub channels: one channel per
// conversation, "conv:<uuid>".
const channelPrefix = "conv:"

// Conn wraps a websocket connection with a write lock. Gorilla allows only
// one concurrent writer per connection, and broadcasts for different
// messages can arrive from different handler goroutines.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub tracks which websocket connections are subscribed to which
// conversation and delivers inserts to them.
//
// With a redis client, Broadcast publishes to redis and the Run loop
// delivers to local sockets — that way every server instance behind a load
// balancer sees every insert, not just the instance that handled the write.
// Without redis (single instance, local dev), Broadcast delivers directly.
type Hub struct {
	rdb    *redis.Client // nil = local-only fanout
	logger *zap.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]map[*Conn]struct{}
}

func New(rdb *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		rdb:    rdb,
		logger: logger,
		conns:  make(map[uuid.UUID]map[*Conn]struct{}),
	}
}

// Run consumes the redis fanout until ctx is cancelled. No-op without redis.
// The publishing instance receives its own messages here too, so the local
// delivery path is the same with and without redis.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}

	pubsub := h.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	h.logger.Info("hub consuming redis fanout")
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				h.logger.Warn("dropping malformed fanout payload", zap.Error(err))
				continue
			}
			h.deliverLocal(msg)
		}
	}
}

// Register adds a connection to a conversation's subscriber set.
func (h *Hub) Register(conversationID uuid.UUID, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conversationID] == nil {
		h.conns[conversationID] = make(map[*Conn]struct{})
	}
	h.conns[conversationID][conn] = struct{}{}
}

// Unregister removes a connection. Must be paired with Register — the ws
// handler defers it so a dropped socket can't linger in the set.
func (h *Hub) Unregister(conversationID uuid.UUID, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[conversationID], conn)
	if len(h.conns[conversationID]) == 0 {
		delete(h.conns, conversationID)
	}
}

// Broadcast delivers a committed message to its conversation's subscribers,
// via redis when configured.
func (h *Hub) Broadcast(ctx context.Context, msg models.Message) {
	if h.rdb == nil {
		h.deliverLocal(msg)
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal fanout payload", zap.Error(err))
		return
	}
	if err := h.rdb.Publish(ctx, channelPrefix+msg.ConversationID.String(), payload).Err(); err != nil {
		// Degrade to local delivery: subscribers on this instance still
		// see the message even if redis is down.
		h.logger.Warn("redis publish failed, delivering locally", zap.Error(err))
		h.deliverLocal(msg)
	}
}

func (h *Hub) deliverLocal(msg models.Message) {
	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns[msg.ConversationID]))
	for conn := range h.conns[msg.ConversationID] {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	for _, conn := range targets {
		if err := conn.WriteJSON(msg); err != nil {
			// The read loop will notice the dead socket and unregister
			// it; nothing more to do here.
			h.logger.Debug("write to subscriber failed", zap.Error(err))
		}
	}
}
