package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

// SubscribeInserts dials the server's websocket endpoint for one
// conversation and pumps incoming messages into onInsert from a reader
// goroutine.
//
// Unsubscribe closes the socket, which unblocks the reader; after it
// returns, no further callbacks fire. Push-channel failures are logged and
// end the subscription quietly — the stream keeps whatever it has, per the
// degrade-don't-crash policy for background channels.
func (c *Client) SubscribeInserts(ctx context.Context, conversationID uuid.UUID, onInsert func(models.Message)) (backend.Subscription, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	wsURL := httpToWS(c.baseURL) + "/v1/ws?conversation_id=" + conversationID.String()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, mapStatusError(resp.StatusCode, nil)
		}
		return nil, &backend.NetworkError{Op: "dial ws", Err: err}
	}

	sub := &wsSubscription{conn: conn}

	go func() {
		for {
			var msg models.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if !sub.closedByUs() {
					c.logger.Warn("push subscription ended",
						zap.String("conversation_id", conversationID.String()),
						zap.Error(err))
				}
				return
			}
			onInsert(msg)
		}
	}()

	return sub, nil
}

func httpToWS(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return fmt.Sprintf("ws://%s", base)
	}
}

type wsSubscription struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (s *wsSubscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Best-effort close handshake, then tear the socket down. The reader
	// goroutine exits on the read error either way.
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conn.Close()
}

func (s *wsSubscription) closedByUs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
