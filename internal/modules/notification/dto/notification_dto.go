package dto

import (
	"fmt"
	"strings"
	"time"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// NotificationFilter is the filter as it arrives over the wire, either as
// query parameters or as the payload of a socket "filter" message.
type NotificationFilter struct {
	Type      string `json:"type" form:"type" binding:"omitempty,oneof=qna resource quote admin system file user"`
	IsRead    string `json:"is_read" form:"is_read" binding:"omitempty,oneof=true false"`
	Priority  string `json:"priority" form:"priority" binding:"omitempty,oneof=low normal high urgent"`
	Search    string `json:"search" form:"search" binding:"max=200"`
	StartDate string `json:"start_date" form:"start_date"`
	EndDate   string `json:"end_date" form:"end_date"`
}

// ToEntity converts the wire filter. Dates accept RFC 3339 or a plain
// YYYY-MM-DD; a plain end date covers the whole day.
func (f NotificationFilter) ToEntity() (entity.NotificationFilter, error) {
	var filter entity.NotificationFilter

	if f.Type != "" {
		t := entity.NotificationType(f.Type)
		if !t.Valid() {
			return filter, fmt.Errorf("%w: unknown type %q", apperror.ErrInvalidInput, f.Type)
		}
		filter.Type = &t
	}
	if f.Priority != "" {
		p := entity.Priority(f.Priority)
		if !p.Valid() {
			return filter, fmt.Errorf("%w: unknown priority %q", apperror.ErrInvalidInput, f.Priority)
		}
		filter.Priority = &p
	}
	switch f.IsRead {
	case "":
	case "true":
		read := true
		filter.IsRead = &read
	case "false":
		unread := false
		filter.IsRead = &unread
	default:
		return filter, fmt.Errorf("%w: is_read must be true or false", apperror.ErrInvalidInput)
	}
	filter.SearchQuery = strings.TrimSpace(f.Search)

	var err error
	if filter.StartDate, err = parseDate(f.StartDate, false); err != nil {
		return filter, err
	}
	if filter.EndDate, err = parseDate(f.EndDate, true); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", apperror.ErrInvalidInput, s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// NotificationContent is everything about a record except its recipient.
type NotificationContent struct {
	SenderID  string         `json:"sender_id" binding:"omitempty,uuid"`
	Type      string         `json:"type" binding:"required,oneof=qna resource quote admin system file user"`
	Title     string         `json:"title" binding:"required,max=200"`
	Message   string         `json:"message" binding:"max=2000"`
	Data      map[string]any `json:"data"`
	Priority  string         `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	ActionURL string         `json:"action_url" binding:"max=500"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

type CreateNotificationRequest struct {
	RecipientID string `json:"recipient_id" binding:"required,uuid"`
	NotificationContent
}

// BulkCreateNotificationRequest fans one record out to every recipient.
type BulkCreateNotificationRequest struct {
	RecipientIDs []string `json:"recipient_ids" binding:"required,min=1,max=500,dive,uuid"`
	NotificationContent
}

func (r CreateNotificationRequest) ToEntity() (*entity.Notification, error) {
	recipientID, err := uuid.Parse(r.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recipient_id", apperror.ErrInvalidInput)
	}
	return r.NotificationContent.toEntity(recipientID)
}

func (r BulkCreateNotificationRequest) ToEntities() ([]entity.Notification, error) {
	notifications := make([]entity.Notification, 0, len(r.RecipientIDs))
	for _, raw := range r.RecipientIDs {
		recipientID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid recipient id %q", apperror.ErrInvalidInput, raw)
		}
		n, err := r.NotificationContent.toEntity(recipientID)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, nil
}

func (c NotificationContent) toEntity(recipientID uuid.UUID) (*entity.Notification, error) {
	n := &entity.Notification{
		RecipientID: recipientID,
		Type:        entity.NotificationType(c.Type),
		Title:       c.Title,
		Message:     c.Message,
		Priority:    entity.Priority(c.Priority),
		ActionURL:   c.ActionURL,
		ExpiresAt:   c.ExpiresAt,
	}
	if c.SenderID != "" {
		senderID, err := uuid.Parse(c.SenderID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid sender_id", apperror.ErrInvalidInput)
		}
		n.SenderID = &senderID
	}
	if len(c.Data) > 0 {
		n.Data = datatypes.JSONMap(c.Data)
	}
	return n, nil
}
