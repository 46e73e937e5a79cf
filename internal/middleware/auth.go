package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/auth"
)

// Context keys for storing claims in gin.Context. Constants instead of
// inline strings so a typo fails at the compiler, not silently at runtime.
const (
	ContextKeyUserID    = "user_id"
	ContextKeyProfileID = "profile_id"
	ContextKeyEmail     = "email"
)

// AuthMiddleware validates the session token and stores the claims in the
// request context. Invalid or missing tokens abort the chain with 401 — the
// handler never runs.
//
// The token normally arrives as "Authorization: Bearer <token>". The
// websocket route also accepts ?token= because not every websocket client
// can set request headers.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization token",
			})
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyProfileID, claims.ProfileID)
		c.Set(ContextKeyEmail, claims.Email)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Helpers so handlers get typed claims instead of repeating the
// c.Get + type-assert dance. A missing key yields the zero value, which
// fails any downstream query instead of panicking.

func GetUserID(c *gin.Context) uuid.UUID {
	return uuidFromContext(c, ContextKeyUserID)
}

func GetProfileID(c *gin.Context) uuid.UUID {
	return uuidFromContext(c, ContextKeyProfileID)
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}

func uuidFromContext(c *gin.Context, key string) uuid.UUID {
	val, exists := c.Get(key)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
