package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/auth"
	"github.com/tarun-08/pingme/internal/middleware"
	"github.com/tarun-08/pingme/internal/models"
	"github.com/tarun-08/pingme/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// AuthHandler handles signup and login — the only PUBLIC endpoints. They
// don't go through AuthMiddleware because the caller doesn't have a token
// yet; these endpoints produce it.
type AuthHandler struct {
	profiles  repository.ProfileRepository
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthHandler(profiles repository.ProfileRepository, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		profiles:  profiles,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	// Username is optional: blank defaults to the email local part, the
	// same default the directory applies everywhere.
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// sessionResponse is what signup, login and the session probe return. The
// client stores the token and sends "Authorization: Bearer <token>" on every
// subsequent request.
type sessionResponse struct {
	Session models.Session `json:"session"`
}

// Signup handles POST /v1/auth/signup
//
// Account creation and profile provisioning are one step here: the original
// system provisions the profile with a database trigger on first
// authentication, and this endpoint plays that role.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, _, err := h.profiles.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("failed to check existing profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	// bcrypt generates a per-password salt and an intentionally slow hash.
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = localPart(email)
	}

	// The identity id would normally come from a separate auth subsystem;
	// minting it here keeps the 1:1 identity/profile pairing in one place.
	userID := uuid.New()
	prof, err := h.profiles.Create(c.Request.Context(), userID, username, email, string(hash))
	if err != nil {
		h.logger.Error("failed to create profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	h.respondWithSession(c, http.StatusCreated, prof)
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	prof, hash, err := h.profiles.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("failed to find profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	// One message for both "unknown email" and "wrong password", so the
	// endpoint doesn't reveal which emails are registered.
	if prof == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	h.respondWithSession(c, http.StatusOK, prof)
}

// Logout handles POST /v1/auth/logout. Tokens are stateless, so there is
// nothing to revoke server-side; the endpoint exists so clients have a
// definite point where the session ends.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Session handles GET /v1/session — the bootstrap probe. Reaching it at all
// means the middleware accepted the token; the response restates the session
// the token represents.
func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, sessionResponse{Session: models.Session{
		UserID:    middleware.GetUserID(c),
		Email:     middleware.GetEmail(c),
		Token:     "", // the caller already holds it
		ExpiresAt: time.Time{},
	}})
}

func (h *AuthHandler) respondWithSession(c *gin.Context, status int, prof *models.Profile) {
	token, err := auth.GenerateToken(prof.UserID, prof.ID, prof.Email, h.jwtSecret, tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	c.JSON(status, sessionResponse{Session: models.Session{
		UserID:    prof.UserID,
		Email:     prof.Email,
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(tokenTTL),
	}})
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
