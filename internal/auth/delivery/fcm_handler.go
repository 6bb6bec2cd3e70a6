package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"

	authrepo "mailpilot-backend/internal/auth/repository"
)

// FCMHandler manages device token registration for push notifications.
type FCMHandler struct {
	tokens authrepo.FCMTokenRepository
}

func NewFCMHandler(tokens authrepo.FCMTokenRepository) *FCMHandler {
	return &FCMHandler{tokens: tokens}
}

// RegisterRoutes mounts the FCM endpoints. Assumes the JWT middleware
// already ran.
func (h *FCMHandler) RegisterRoutes(rg *gin.RouterGroup) {
	fcmGroup := rg.Group("/fcm")
	{
		fcmGroup.POST("/register", h.Register)
		fcmGroup.DELETE("/:token", h.Unregister)
	}
}

type registerTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// Register upserts a device token for the caller. Re-registering the same
// token from another account moves it, never duplicates it.
func (h *FCMHandler) Register(c *gin.Context) {
	userID := c.GetString("userID")
	var req registerTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	if err := h.tokens.SaveToken(userID, req.Token, req.DeviceInfo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unregister removes a device token, typically on logout.
func (h *FCMHandler) Unregister(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	if err := h.tokens.DeleteToken(token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unregister token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
