package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authDelivery "mailpilot-backend/internal/auth/delivery"
	emailDelivery "mailpilot-backend/internal/email/delivery"
	syncDelivery "mailpilot-backend/internal/sync/delivery"
	"mailpilot-backend/pkg/config"
)

// SetupRoutes mounts the API surface. Everything except the health check
// sits behind the JWT middleware.
func SetupRoutes(r *gin.Engine, syncHandler *syncDelivery.SyncHandler, fcmHandler *authDelivery.FCMHandler, draftHandler *emailDelivery.DraftHandler, cfg *config.Config) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		protected := api.Group("")
		protected.Use(authDelivery.AuthMiddleware(cfg.JWTSecret))

		triggerLimit := syncDelivery.NewRateLimiter(1, time.Minute)
		activityLimit := syncDelivery.NewRateLimiter(10, time.Minute)
		syncHandler.RegisterRoutes(protected, triggerLimit, activityLimit)
		fcmHandler.RegisterRoutes(protected)
		draftHandler.RegisterRoutes(protected)
	}
}
