package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://board.example"})

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://board.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
