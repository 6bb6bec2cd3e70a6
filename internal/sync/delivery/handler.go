package delivery

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	syncrepo "mailpilot-backend/internal/sync/repository"
	syncusecase "mailpilot-backend/internal/sync/usecase"
	"mailpilot-backend/pkg/sse"
)

// SyncHandler exposes the sync surface: manual trigger, activity ping,
// metrics, status and the mailbox connection lifecycle.
type SyncHandler struct {
	tracker   *syncusecase.ActivityTracker
	cron      *syncusecase.Cron
	connector *syncusecase.Connector
	states    syncrepo.SyncStateRepository
	metrics   syncrepo.SyncMetricsRepository
	bus       *sse.Manager
}

func NewSyncHandler(
	tracker *syncusecase.ActivityTracker,
	cron *syncusecase.Cron,
	connector *syncusecase.Connector,
	states syncrepo.SyncStateRepository,
	metrics syncrepo.SyncMetricsRepository,
	bus *sse.Manager,
) *SyncHandler {
	return &SyncHandler{
		tracker:   tracker,
		cron:      cron,
		connector: connector,
		states:    states,
		metrics:   metrics,
		bus:       bus,
	}
}

// RegisterRoutes mounts the sync and events endpoints. All routes assume the
// JWT middleware already ran; the per-route rate limiters are layered on top.
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup, triggerLimit, activityLimit *RateLimiter) {
	syncGroup := rg.Group("/sync")
	{
		syncGroup.POST("/trigger", triggerLimit.Middleware(), h.Trigger)
		syncGroup.POST("/activity", activityLimit.Middleware(), h.Activity)
		syncGroup.GET("/metrics", h.Metrics)
		syncGroup.GET("/status", h.Status)
		syncGroup.POST("/connect", h.Connect)
		syncGroup.POST("/disconnect", h.Disconnect)
	}

	events := rg.Group("/events")
	{
		events.GET("", h.Stream)
		events.POST("/ping", h.Ping)
		events.POST("/subscribe", h.SubscribeAck)
	}
}

// Trigger runs one full sync cycle on demand.
func (h *SyncHandler) Trigger(c *gin.Context) {
	if err := h.cron.TriggerOnce(c.Request.Context()); err != nil {
		if errors.Is(err, syncusecase.ErrCycleInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "A sync cycle is already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"timestamp": time.Now().UTC(),
	})
}

// Activity records a user activity signal. Idempotent within the throttle
// window.
func (h *SyncHandler) Activity(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.tracker.RecordActivity(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Metrics returns recent batch metrics, newest first.
func (h *SyncHandler) Metrics(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = parsed
	}
	records, err := h.metrics.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load metrics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": records})
}

// Status returns the caller's sync-state projection.
func (h *SyncHandler) Status(c *gin.Context) {
	userID := c.GetString("userID")
	state, err := h.states.Get(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sync status"})
		return
	}
	if state == nil {
		c.JSON(http.StatusOK, gin.H{
			"mailbox_connected": false,
			"sync_status":       "",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"last_active":       state.LastActiveAt,
		"last_synced":       state.LastSyncedAt,
		"sync_status":       state.SyncStatus,
		"sync_error":        state.SyncError,
		"activity_level":    state.ActivityLevel,
		"mailbox_connected": state.MailboxConnected,
	})
}

type connectRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
}

// Connect stores Google tokens and enables mailbox sync for the caller.
func (h *SyncHandler) Connect(c *gin.Context) {
	userID := c.GetString("userID")
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access_token is required"})
		return
	}
	if err := h.connector.Connect(c.Request.Context(), userID, req.AccessToken, req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Disconnect soft-disables mailbox sync for the caller.
func (h *SyncHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.connector.Disconnect(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Stream opens the SSE connection for the caller.
func (h *SyncHandler) Stream(c *gin.Context) {
	userID := c.GetString("userID")
	h.bus.ServeHTTP(c, userID)
}

// Ping answers with a pong status event on the caller's live stream.
func (h *SyncHandler) Ping(c *gin.Context) {
	userID := c.GetString("userID")
	h.bus.SendToUser(userID, sse.EventProcessingStatus, map[string]interface{}{
		"status": "pong",
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SubscribeAck acknowledges a client subscribe message. Delivery targeting is
// keyed by the stream connection itself, so there is nothing to register.
func (h *SyncHandler) SubscribeAck(c *gin.Context) {
	userID := c.GetString("userID")
	log.Printf("[Events] Subscribe acknowledged for user %s", userID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
