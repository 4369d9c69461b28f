package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type fakeNotices struct {
	notice *entity.Notice
	views  int
	likes  int
}

func (f *fakeNotices) Get(ctx context.Context, id uuid.UUID) (*entity.Notice, error) {
	if f.notice == nil || f.notice.ID != id {
		return nil, apperror.ErrNotFound
	}
	return f.notice, nil
}

func (f *fakeNotices) IncrementView(ctx context.Context, noticeID, viewerID uuid.UUID) error {
	if _, err := f.Get(ctx, noticeID); err != nil {
		return err
	}
	f.views++
	return nil
}

func (f *fakeNotices) Like(ctx context.Context, noticeID uuid.UUID) error {
	if _, err := f.Get(ctx, noticeID); err != nil {
		return err
	}
	f.likes++
	return nil
}

func (f *fakeNotices) SyncViews(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeNotices) StartViewSyncWorker(ctx context.Context, interval time.Duration) {}

func setupRouter(svc *fakeNotices, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID.String())
		c.Next()
	})
	h := NewNoticeHandler(svc)
	r.GET("/notices/:id", h.GetNotice)
	r.POST("/notices/:id/view", h.RecordView)
	r.POST("/notices/:id/like", h.Like)
	return r
}

func serve(r http.Handler, method, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w.Code
}

func TestNoticeCounters(t *testing.T) {
	n := &entity.Notice{ID: uuid.New(), Title: "Exam schedule"}
	svc := &fakeNotices{notice: n}
	r := setupRouter(svc, uuid.New())

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/notices/"+n.ID.String()))
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/notices/"+n.ID.String()+"/view"))
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/notices/"+n.ID.String()+"/like"))
	assert.Equal(t, 1, svc.views)
	assert.Equal(t, 1, svc.likes)
}

func TestNoticeNotFoundAndBadID(t *testing.T) {
	r := setupRouter(&fakeNotices{}, uuid.New())

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/notices/"+uuid.NewString()+"/like"))
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/notices/abc"))
}
