package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	emailrepo "mailpilot-backend/internal/email/repository"
)

// DraftHandler exposes the generated-draft surface.
type DraftHandler struct {
	drafts emailrepo.DraftRepository
}

func NewDraftHandler(drafts emailrepo.DraftRepository) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

// RegisterRoutes mounts the drafts endpoints. All routes assume the JWT
// middleware already ran.
func (h *DraftHandler) RegisterRoutes(rg *gin.RouterGroup) {
	drafts := rg.Group("/drafts")
	{
		drafts.GET("", h.List)
	}
}

// List returns the caller's generated drafts, newest first.
func (h *DraftHandler) List(c *gin.Context) {
	userID := c.GetString("userID")
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}
	records, err := h.drafts.ListByUser(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load drafts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": records})
}
