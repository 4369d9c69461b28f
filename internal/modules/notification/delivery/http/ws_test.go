package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/internal/modules/notification/alert"
	"anoa.com/noticeboard/internal/modules/notification/controller"
	"anoa.com/noticeboard/internal/modules/notification/sweeper"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, svc *fakeService, userID uuid.UUID, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWebSocketHandler(svc, sweeper.New(svc), SessionConfig{AutoDismiss: time.Hour}, func(*http.Request) bool { return true })
	r.GET("/ws", func(c *gin.Context) { c.Set("user_id", userID.String()) }, h.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, kind string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == kind && (match == nil || match(msg.Data)) {
			return msg.Data
		}
	}
}

// readEach reads until one message of every kind has arrived.
func readEach(t *testing.T, conn *websocket.Conn, kinds ...string) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	got := map[string]json.RawMessage{}
	for len(got) < len(kinds) {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if slices.Contains(kinds, msg.Type) {
			if _, seen := got[msg.Type]; !seen {
				got[msg.Type] = msg.Data
			}
		}
	}
	return got
}

func send(t *testing.T, conn *websocket.Conn, action string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(gin.H{"action": action, "data": data}))
}

type wireState struct {
	Notifications []entity.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
	Mode          string                `json:"mode"`
	Loading       bool                  `json:"loading"`
	Error         string                `json:"error"`
}

func stateWhere(t *testing.T, fn func(wireState) bool) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var state wireState
		require.NoError(t, json.Unmarshal(raw, &state))
		return fn(state)
	}
}

func TestSessionAlertsArrivalAndHandlesClick(t *testing.T) {
	userID := uuid.New()
	svc := newFakeService()
	conn := dial(t, svc, userID, "?permission=granted")
	readUntil(t, conn, "state", stateWhere(t, func(s wireState) bool { return !s.Loading }))

	n := owned(userID, "Quote request", false)
	n.Priority = entity.PriorityUrgent
	n.ActionURL = "/admin/quotes"
	svc.add(n)

	// sound playback is asynchronous, so the two may arrive in any order
	got := readEach(t, conn, "sound", "alert_show")
	var sound struct {
		Asset string `json:"asset"`
	}
	require.NoError(t, json.Unmarshal(got["sound"], &sound))
	assert.Equal(t, alert.DefaultAssets.Urgent, sound.Asset)

	var shown alert.Alert
	require.NoError(t, json.Unmarshal(got["alert_show"], &shown))
	assert.Equal(t, n.ID.String(), shown.Tag)
	assert.True(t, shown.RequireInteraction)

	send(t, conn, "alert_click", gin.H{"tag": shown.Tag})
	readUntil(t, conn, "focus", nil)
	assert.JSONEq(t, `{"url":"/admin/quotes"}`, string(readUntil(t, conn, "navigate", nil)))
	assert.JSONEq(t, `{"tag":"`+shown.Tag+`"}`, string(readUntil(t, conn, "alert_close", nil)))
}

func TestSessionRequestsPermission(t *testing.T) {
	userID := uuid.New()
	n := owned(userID, "Welcome", false)
	svc := newFakeService(n)
	conn := dial(t, svc, userID, "")

	// the first snapshot counts as new arrivals
	readUntil(t, conn, "permission_request", nil)
	send(t, conn, "permission", gin.H{"permission": "granted"})

	var shown alert.Alert
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "alert_show", nil), &shown))
	assert.Equal(t, n.ID.String(), shown.Tag)
	assert.False(t, shown.RequireInteraction)
}

func TestSessionMarkReadUpdatesState(t *testing.T) {
	userID := uuid.New()
	n := owned(userID, "Welcome", false)
	svc := newFakeService(n)
	conn := dial(t, svc, userID, "?permission=denied")
	readUntil(t, conn, "state", stateWhere(t, func(s wireState) bool { return s.UnreadCount == 1 }))

	send(t, conn, "mark_read", gin.H{"id": n.ID.String()})

	readUntil(t, conn, "state", stateWhere(t, func(s wireState) bool {
		return s.UnreadCount == 0 && len(s.Notifications) == 1 && s.Notifications[0].IsRead
	}))
	assert.Contains(t, svc.Calls(), "mark_read")
}

func TestSessionFilterResubscribes(t *testing.T) {
	userID := uuid.New()
	svc := newFakeService(owned(userID, "Payment failed", false), owned(userID, "Welcome", false))
	conn := dial(t, svc, userID, "?permission=denied")
	readUntil(t, conn, "state", stateWhere(t, func(s wireState) bool { return len(s.Notifications) == 2 }))

	send(t, conn, "filter", gin.H{"search": "payment"})

	readUntil(t, conn, "state", stateWhere(t, func(s wireState) bool {
		return len(s.Notifications) == 1 && s.Notifications[0].Title == "Payment failed"
	}))
	assert.Eventually(t, func() bool {
		subscribes := 0
		for _, call := range svc.Calls() {
			if call == "subscribe" {
				subscribes++
			}
		}
		return subscribes == 2
	}, time.Second, 10*time.Millisecond)
}

func TestSessionStaticModeLoadsOnce(t *testing.T) {
	userID := uuid.New()
	n := owned(userID, "Welcome", false)
	svc := newFakeService(n)
	conn := dial(t, svc, userID, "?mode=static&permission=denied")

	readUntil(t, conn, "state", stateWhere(t, func(s wireState) bool {
		return s.Mode == controller.ModeStatic.String() && len(s.Notifications) == 1 && !s.Loading
	}))

	send(t, conn, "delete", gin.H{"id": n.ID.String()})
	readUntil(t, conn, "state", stateWhere(t, func(s wireState) bool { return len(s.Notifications) == 0 }))

	calls := svc.Calls()
	assert.Contains(t, calls, "list")
	assert.NotContains(t, calls, "subscribe")
}

func TestSessionSettingsAndErrors(t *testing.T) {
	conn := dial(t, newFakeService(), uuid.New(), "")
	readUntil(t, conn, "settings", nil)

	send(t, conn, "settings", gin.H{"sound": false})
	var settings alert.Settings
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "settings", nil), &settings))
	assert.Equal(t, alert.Settings{Sound: false, System: true}, settings)

	send(t, conn, "launch_rockets", nil)
	assert.Contains(t, string(readUntil(t, conn, "error", nil)), "unknown action")

	send(t, conn, "mark_read", gin.H{"id": "not-a-uuid"})
	assert.Contains(t, string(readUntil(t, conn, "error", nil)), "invalid notification id")
}

func TestSessionVisibleTriggersSweep(t *testing.T) {
	svc := newFakeService()
	conn := dial(t, svc, uuid.New(), "?permission=denied")
	readUntil(t, conn, "state", nil)

	send(t, conn, "visible", nil)

	assert.Eventually(t, func() bool {
		return slices.Contains(svc.Calls(), "sweep")
	}, time.Second, 10*time.Millisecond)
}
