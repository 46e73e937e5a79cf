package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tarun-08/pingme/internal/middleware"
	"github.com/tarun-08/pingme/internal/repository"
	"go.uber.org/zap"
)

// ProfileHandler serves the directory: individual profile resolution and
// the browse list.
type ProfileHandler struct {
	repo   repository.ProfileRepository
	logger *zap.Logger
}

func NewProfileHandler(repo repository.ProfileRepository, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{repo: repo, logger: logger}
}

// GetByUserID handles GET /v1/profiles/:user_id
//
// 404 here is a normal outcome, not a failure: profile provisioning trails
// account creation, so clients poll-or-retry rather than treating it as an
// error state.
func (h *ProfileHandler) GetByUserID(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	prof, err := h.repo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get profile"})
		return
	}
	if prof == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	c.JSON(http.StatusOK, prof)
}

// List handles GET /v1/profiles
//
// Returns every profile except the caller's own, ordered by username
// ascending — the directory screen renders this as-is.
func (h *ProfileHandler) List(c *gin.Context) {
	profileID := middleware.GetProfileID(c)

	profiles, err := h.repo.List(c.Request.Context(), profileID)
	if err != nil {
		h.logger.Error("failed to list profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list profiles"})
		return
	}

	c.JSON(http.StatusOK, profiles)
}

// GetMe handles GET /v1/profiles/me — the caller's own directory row.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID := middleware.GetUserID(c)

	prof, err := h.repo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get own profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get profile"})
		return
	}
	if prof == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	c.JSON(http.StatusOK, prof)
}
