package delivery

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emaildomain "mailpilot-backend/internal/email/domain"
)

type stubDraftRepo struct {
	mu        sync.Mutex
	lastUser  string
	lastLimit int
	records   []*emaildomain.Draft
}

func (r *stubDraftRepo) Save(draft *emaildomain.Draft) error { return nil }

func (r *stubDraftRepo) ListByUser(userID string, limit int) ([]*emaildomain.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUser = userID
	r.lastLimit = limit
	return r.records, nil
}

func draftTestRouter(h *DraftHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", "user-1") })
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func TestListReturnsCallerDrafts(t *testing.T) {
	repo := &stubDraftRepo{records: []*emaildomain.Draft{{
		ID:        "draft-1",
		UserID:    "user-1",
		EmailID:   "email-1",
		Body:      "Thanks, see you then.",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}}
	r := draftTestRouter(NewDraftHandler(repo))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drafts", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", repo.lastUser)
	assert.Equal(t, 20, repo.lastLimit)
	assert.Contains(t, w.Body.String(), `"id":"draft-1"`)
}

func TestListLimitValidation(t *testing.T) {
	repo := &stubDraftRepo{}
	r := draftTestRouter(NewDraftHandler(repo))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drafts?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, repo.lastLimit)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drafts?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drafts?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
