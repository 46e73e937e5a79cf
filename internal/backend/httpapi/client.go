// Package httpapi implements the backend contract against the pingme
// server's REST and websocket API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/auth"
	"github.com/tarun-08/pingme/internal/backend"
	"github.com/tarun-08/pingme/internal/models"
	"go.uber.org/zap"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu               sync.Mutex
	token            string
	sessionListeners map[int]func(*models.Session)
	nextListenerID   int
}

var _ backend.Backend = (*Client)(nil)

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sessionListeners: make(map[int]func(*models.Session)),
	}
}

// SetToken installs a previously stored token (from the credential store)
// before bootstrap. GetCurrentSession validates it against the server.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// GetCurrentSession validates the held token. No token, an expired token,
// or a token the server rejects all mean "no session" — a normal answer,
// not an error.
func (c *Client) GetCurrentSession(ctx context.Context) (*models.Session, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		return nil, nil
	}

	// Check expiry locally first: presenting a token we can see is dead
	// just buys a guaranteed 401 round trip.
	expiry, err := auth.TokenExpiry(token)
	if err != nil || !expiry.After(time.Now()) {
		return nil, nil
	}

	var resp sessionResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/session", nil, &resp); err != nil {
		var authErr *backend.AuthError
		if errors.As(err, &authErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("get current session: %w", err)
	}

	sess := resp.Session
	sess.Token = token
	sess.ExpiresAt = expiry
	return &sess, nil
}

func (c *Client) OnSessionChange(fn func(*models.Session)) backend.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	c.sessionListeners[id] = fn
	return &subscription{release: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.sessionListeners, id)
	}}
}

func (c *Client) SignUp(ctx context.Context, email, password, username string) (*models.Session, error) {
	req := signupRequest{Email: email, Password: password, Username: username}
	var resp sessionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/auth/signup", req, &resp); err != nil {
		return nil, fmt.Errorf("signup request failed: %w", err)
	}
	return c.installSession(resp.Session), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	req := loginRequest{Email: email, Password: password}
	var resp sessionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return c.installSession(resp.Session), nil
}

func (c *Client) SignOut(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)

	// The local session ends regardless of what the server said — holding
	// on to a token after the user asked to leave is the worse failure.
	c.mu.Lock()
	c.token = ""
	listeners := c.snapshotListenersLocked()
	c.mu.Unlock()
	notifySession(listeners, nil)

	if err != nil {
		var authErr *backend.AuthError
		if errors.As(err, &authErr) {
			// Token was already invalid server-side. Signed out is
			// signed out.
			return nil
		}
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

func (c *Client) FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	path := fmt.Sprintf("/v1/profiles/%s", userID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &p); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &p, nil
}

func (c *Client) ListProfiles(ctx context.Context, excluding uuid.UUID) ([]models.Profile, error) {
	// The server derives "excluding" from the token; the parameter exists
	// for contract symmetry and is not sent.
	_ = excluding
	var profiles []models.Profile
	if err := c.doRequest(ctx, http.MethodGet, "/v1/profiles", nil, &profiles); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func (c *Client) FindConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	path := fmt.Sprintf("/v1/conversations?user1=%s&user2=%s", userA, userB)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &conv); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

func (c *Client) CreateConversation(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	req := createConversationRequest{User1ID: userA, User2ID: userB}
	var conv models.Conversation
	if err := c.doRequest(ctx, http.MethodPost, "/v1/conversations", req, &conv); err != nil {
		if errors.Is(err, backend.ErrConflict) {
			return nil, backend.ErrConflict
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var messages []models.Message
	path := fmt.Sprintf("/v1/conversations/%s/messages?limit=%d", conversationID, limit)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (c *Client) InsertMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*models.Message, error) {
	// senderID rides in the token server-side; the parameter exists for
	// contract symmetry.
	_ = senderID
	req := createMessageRequest{Content: content}
	var msg models.Message
	path := fmt.Sprintf("/v1/conversations/%s/messages", conversationID)
	if err := c.doRequest(ctx, http.MethodPost, path, req, &msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (c *Client) installSession(sess models.Session) *models.Session {
	c.mu.Lock()
	c.token = sess.Token
	listeners := c.snapshotListenersLocked()
	c.mu.Unlock()

	copied := sess
	notifySession(listeners, &copied)
	out := sess
	return &out
}

func (c *Client) snapshotListenersLocked() []func(*models.Session) {
	out := make([]func(*models.Session), 0, len(c.sessionListeners))
	for _, fn := range c.sessionListeners {
		out = append(out, fn)
	}
	return out
}

func notifySession(listeners []func(*models.Session), s *models.Session) {
	for _, fn := range listeners {
		var copied *models.Session
		if s != nil {
			c := *s
			copied = &c
		}
		fn(copied)
	}
}

// Request/response shapes mirroring internal/api.

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Session models.Session `json:"session"`
}

type createConversationRequest struct {
	User1ID uuid.UUID `json:"user1_id"`
	User2ID uuid.UUID `json:"user2_id"`
}

type createMessageRequest struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// doRequest performs one round trip and maps the response onto the error
// taxonomy: 401/403 → AuthError, 404 → ErrNotFound, 409 → ErrConflict,
// 400 → ValidationError, transport failure → NetworkError.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &backend.NetworkError{Op: method + " " + path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &backend.NetworkError{Op: method + " " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatusError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func mapStatusError(status int, body []byte) error {
	message := fmt.Sprintf("status %d", status)
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &backend.AuthError{Reason: message}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", message, backend.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", message, backend.ErrConflict)
	case http.StatusBadRequest:
		return &backend.ValidationError{Reason: message}
	default:
		return fmt.Errorf("server error (%d): %s", status, message)
	}
}

type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.release)
}
