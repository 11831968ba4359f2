package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"snipchat/internal/repo"
	"snipchat/internal/service"
)

type UserHandler interface {
	SearchUsers(c *gin.Context)
	UpdateProfile(c *gin.Context)
	UploadAvatar(c *gin.Context)
	SetOtpEnabled(c *gin.Context)
}

type userHandler struct {
	users   repo.UserRepository
	avatars *service.AvatarStore
}

func NewUserHandler(users repo.UserRepository, avatars *service.AvatarStore) UserHandler {
	return &userHandler{users: users, avatars: avatars}
}

func (h *userHandler) SearchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"users": []any{}})
		return
	}

	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	users, err := h.users.Search(c.Request.Context(), query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

type updateProfileRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	AvatarURL string `json:"avatarUrl"`
}

func (h *userHandler) UpdateProfile(c *gin.Context) {
	userID := c.GetString(ContextUserID)

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID, req.FirstName, req.LastName, req.AvatarURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UploadAvatar stores the uploaded image under the user's id, overwriting
// any previous avatar, and saves the resulting public URL on the profile.
func (h *userHandler) UploadAvatar(c *gin.Context) {
	userID := c.GetString(ContextUserID)

	file, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing avatar file"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read avatar file"})
		return
	}
	defer src.Close()

	url, err := h.avatars.Save(userID, file.Filename, src)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedAvatarType) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported avatar file type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store avatar"})
		return
	}

	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	updated, err := h.users.UpdateProfile(c.Request.Context(), userID, user.FirstName, user.LastName, url)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": updated, "avatarUrl": url})
}

type setOtpRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *userHandler) SetOtpEnabled(c *gin.Context) {
	userID := c.GetString(ContextUserID)

	var req setOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.SetOtpEnabled(c.Request.Context(), userID, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update two-factor setting"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"otpEnabled": req.Enabled})
}
