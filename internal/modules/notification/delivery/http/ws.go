package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"anoa.com/noticeboard/internal/modules/notification/alert"
	"anoa.com/noticeboard/internal/modules/notification/controller"
	notifDto "anoa.com/noticeboard/internal/modules/notification/dto"
	notifService "anoa.com/noticeboard/internal/modules/notification/service"
	"anoa.com/noticeboard/internal/modules/notification/sweeper"
	"anoa.com/noticeboard/pkg/apperror"
	"anoa.com/noticeboard/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
)

// SessionConfig holds the alerting knobs applied to every socket session.
type SessionConfig struct {
	Assets            alert.Assets
	AutoDismiss       time.Duration
	PermissionTimeout time.Duration
}

type WebSocketHandler struct {
	service  notifService.NotificationService
	sweeper  *sweeper.Sweeper
	config   SessionConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(service notifService.NotificationService, sweeper *sweeper.Sweeper, config SessionConfig, checkOrigin func(r *http.Request) bool) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		sweeper: sweeper,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// HandleWebSocket serves one recipient's notification session. The
// optional "mode" query parameter selects live or static propagation and
// "permission" carries the browser's current notification permission.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	mode := controller.ModeLive
	if raw := c.Query("mode"); raw != "" {
		if mode, err = controller.ParseMode(raw); err != nil {
			response.ResponseError(c, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ws] failed to upgrade websocket: %v", err)
		return
	}

	s := h.newSession(c.Request.Context(), conn, userID, mode, alert.ParsePermission(c.Query("permission")))
	log.Printf("[ws] notification session opened for %s", userID)
	s.run()
	log.Printf("[ws] notification session closed for %s", userID)
}

type incomingMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// session bridges one socket to a Controller. It is also the alerting
// platform: every side effect is a message the browser acts on.
type session struct {
	conn    *websocket.Conn
	send    chan outgoingMessage
	ctx     context.Context
	cancel  context.CancelFunc
	sweeper *sweeper.Sweeper

	mu             sync.Mutex
	permission     alert.Permission
	permissionWait chan struct{}

	controller *controller.Controller
	dispatcher *alert.Dispatcher
}

func (h *WebSocketHandler) newSession(parent context.Context, conn *websocket.Conn, userID uuid.UUID, mode controller.Mode, permission alert.Permission) *session {
	ctx, cancel := context.WithCancel(parent)
	s := &session{
		conn:       conn,
		send:       make(chan outgoingMessage, sendBuffer),
		ctx:        ctx,
		cancel:     cancel,
		sweeper:    h.sweeper,
		permission: permission,
	}

	opts := []alert.Option{}
	if h.config.Assets != (alert.Assets{}) {
		opts = append(opts, alert.WithAssets(h.config.Assets))
	}
	if h.config.AutoDismiss > 0 {
		opts = append(opts, alert.WithAutoDismiss(h.config.AutoDismiss))
	}
	if h.config.PermissionTimeout > 0 {
		opts = append(opts, alert.WithPermissionTimeout(h.config.PermissionTimeout))
	}
	s.dispatcher = alert.NewDispatcher(s, s.navigate, opts...)
	s.controller = controller.New(userID, h.service, s.dispatcher,
		controller.WithMode(mode),
		controller.WithListener(func(state controller.State) { s.emit("state", state) }),
		controller.WithNavigator(s.navigate),
	)
	return s
}

func (s *session) run() {
	go s.writePump()

	s.emit("settings", s.dispatcher.Settings())
	if err := s.controller.Start(s.ctx); err != nil {
		// the state message already carries the error; "refresh" retries
		log.Printf("[ws] failed to start notification feed: %v", err)
	}
	if s.sweeper != nil {
		s.sweeper.Trigger(s.ctx)
	}

	s.readPump()
}

func (s *session) readPump() {
	defer func() {
		s.cancel()
		s.controller.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}

		var msg incomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.fail("", fmt.Errorf("%w: malformed message", apperror.ErrInvalidInput))
			continue
		}
		if err := s.handleMessage(msg); err != nil {
			s.fail(msg.Action, err)
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				log.Printf("[ws] write error: %v", err)
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

type idPayload struct {
	ID string `json:"id"`
}

type tagPayload struct {
	Tag string `json:"tag"`
}

type modePayload struct {
	Mode string `json:"mode"`
}

type settingsPayload struct {
	Sound  *bool `json:"sound"`
	System *bool `json:"system"`
}

type permissionPayload struct {
	Permission string `json:"permission"`
}

func (s *session) handleMessage(msg incomingMessage) error {
	ctx := s.ctx

	switch msg.Action {
	case "filter":
		var payload notifDto.NotificationFilter
		if err := decode(msg.Data, &payload); err != nil {
			return err
		}
		filter, err := payload.ToEntity()
		if err != nil {
			return err
		}
		return s.controller.SetFilter(ctx, filter)

	case "mode":
		var payload modePayload
		if err := decode(msg.Data, &payload); err != nil {
			return err
		}
		mode, err := controller.ParseMode(payload.Mode)
		if err != nil {
			return err
		}
		return s.controller.SetMode(ctx, mode)

	case "settings":
		var payload settingsPayload
		if err := decode(msg.Data, &payload); err != nil {
			return err
		}
		if payload.Sound != nil {
			s.dispatcher.SetSound(*payload.Sound)
		}
		if payload.System != nil {
			s.dispatcher.SetSystem(*payload.System)
		}
		s.emit("settings", s.dispatcher.Settings())
		return nil

	case "permission":
		var payload permissionPayload
		if err := decode(msg.Data, &payload); err != nil {
			return err
		}
		s.setPermission(alert.ParsePermission(payload.Permission))
		return nil

	case "visible":
		if s.sweeper != nil {
			s.sweeper.Trigger(ctx)
		}
		return nil

	case "refresh":
		return s.controller.Refresh(ctx)

	case "mark_read":
		id, err := decodeID(msg.Data)
		if err != nil {
			return err
		}
		return s.controller.MarkAsRead(ctx, id)

	case "mark_all_read":
		return s.controller.MarkAllAsRead(ctx)

	case "delete":
		id, err := decodeID(msg.Data)
		if err != nil {
			return err
		}
		return s.controller.Delete(ctx, id)

	case "delete_all":
		return s.controller.DeleteAll(ctx)

	case "delete_read":
		return s.controller.DeleteRead(ctx)

	case "alert_click":
		var payload tagPayload
		if err := decode(msg.Data, &payload); err != nil {
			return err
		}
		s.dispatcher.Click(ctx, payload.Tag)
		return nil

	case "item_click":
		id, err := decodeID(msg.Data)
		if err != nil {
			return err
		}
		return s.controller.Open(ctx, id)

	default:
		return fmt.Errorf("%w: unknown action %q", apperror.ErrInvalidInput, msg.Action)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", apperror.ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrInvalidInput, err)
	}
	return nil
}

func decodeID(data json.RawMessage) (uuid.UUID, error) {
	var payload idPayload
	if err := decode(data, &payload); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(payload.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid notification id", apperror.ErrInvalidInput)
	}
	return id, nil
}

// emit queues a message for the socket without blocking. It is called
// from controller and dispatcher callbacks, which must never wait on the
// network.
func (s *session) emit(kind string, data any) {
	select {
	case <-s.ctx.Done():
	case s.send <- outgoingMessage{Type: kind, Data: data}:
	default:
		log.Printf("[ws] send buffer full, dropping %s message", kind)
	}
}

func (s *session) fail(action string, err error) {
	s.emit("error", gin.H{"action": action, "error": err.Error()})
}

func (s *session) navigate(ctx context.Context, actionURL string) {
	s.emit("navigate", gin.H{"url": actionURL})
}

func (s *session) setPermission(permission alert.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permission = permission
	if permission != alert.PermissionDefault && s.permissionWait != nil {
		close(s.permissionWait)
		s.permissionWait = nil
	}
}

func (s *session) PlaySound(ctx context.Context, asset string, volume float64) error {
	s.emit("sound", gin.H{"asset": asset, "volume": volume})
	return nil
}

func (s *session) Permission() alert.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// RequestPermission prompts the browser once and waits for its answer.
// Concurrent callers share the same prompt.
func (s *session) RequestPermission(ctx context.Context) (alert.Permission, error) {
	s.mu.Lock()
	if s.permission != alert.PermissionDefault {
		permission := s.permission
		s.mu.Unlock()
		return permission, nil
	}
	if s.permissionWait == nil {
		s.permissionWait = make(chan struct{})
		s.emit("permission_request", nil)
	}
	wait := s.permissionWait
	s.mu.Unlock()

	select {
	case <-wait:
		return s.Permission(), nil
	case <-ctx.Done():
		return alert.PermissionDefault, ctx.Err()
	}
}

func (s *session) ShowAlert(ctx context.Context, a alert.Alert) error {
	s.emit("alert_show", a)
	return nil
}

func (s *session) CloseAlert(ctx context.Context, tag string) error {
	s.emit("alert_close", gin.H{"tag": tag})
	return nil
}

func (s *session) Focus(ctx context.Context) error {
	s.emit("focus", nil)
	return nil
}
