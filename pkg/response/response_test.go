package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"anoa.com/noticeboard/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestGetUserID(t *testing.T) {
	c, _ := newContext()
	_, err := GetUserID(c)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	c.Set("user_id", "not-a-uuid")
	_, err = GetUserID(c)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	id := uuid.New()
	c.Set("user_id", id.String())
	got, err := GetUserID(c)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestResponseErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperror.Remote("mark notification read", apperror.ErrNotFound), http.StatusNotFound},
		{apperror.Remote("create notification", apperror.ErrInvalidInput), http.StatusBadRequest},
		{&apperror.SubscriptionError{Err: errors.New("redis down")}, http.StatusServiceUnavailable},
		{apperror.New(http.StatusConflict, "conflict", nil), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, w := newContext()
		ResponseError(c, tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}
