package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeQnA      NotificationType = "qna"
	NotificationTypeResource NotificationType = "resource"
	NotificationTypeQuote    NotificationType = "quote"
	NotificationTypeAdmin    NotificationType = "admin"
	NotificationTypeSystem   NotificationType = "system"
	NotificationTypeFile     NotificationType = "file"
	NotificationTypeUser     NotificationType = "user"
)

// NotificationTypes lists every type tag in display order.
var NotificationTypes = []NotificationType{
	NotificationTypeQnA,
	NotificationTypeResource,
	NotificationTypeQuote,
	NotificationTypeAdmin,
	NotificationTypeSystem,
	NotificationTypeFile,
	NotificationTypeUser,
}

func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

type Notification struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID         `gorm:"type:uuid;not null;index:idx_notifications_recipient,priority:1" json:"recipient_id"`
	SenderID    *uuid.UUID        `gorm:"type:uuid" json:"sender_id,omitempty"`
	Type        NotificationType  `gorm:"size:20;not null" json:"type"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Message     string            `gorm:"type:text" json:"message"`
	Data        datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	IsRead      bool              `gorm:"default:false;not null" json:"is_read"`
	Priority    Priority          `gorm:"size:10;not null;default:normal" json:"priority"`
	CreatedAt   time.Time         `gorm:"autoCreateTime;index:idx_notifications_recipient,priority:2" json:"created_at"`
	ReadAt      *time.Time        `json:"read_at,omitempty"`
	ExpiresAt   *time.Time        `gorm:"index" json:"expires_at,omitempty"`
	ActionURL   string            `gorm:"size:512" json:"action_url,omitempty"`
}

func (n *Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}

// MarkRead flips the record to read. A record that is already read keeps
// its original ReadAt.
func (n *Notification) MarkRead(at time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	n.ReadAt = &at
}

// Expired reports whether the record is eligible for the expiry sweep.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// NotificationFilter selects records for a recipient. Type, IsRead and
// Priority are exact-match predicates pushed into the store query;
// SearchQuery and the date range are applied locally on the result.
type NotificationFilter struct {
	Type        *NotificationType `json:"type,omitempty"`
	IsRead      *bool             `json:"is_read,omitempty"`
	Priority    *Priority         `json:"priority,omitempty"`
	SearchQuery string            `json:"search_query,omitempty"`
	StartDate   *time.Time        `json:"start_date,omitempty"`
	EndDate     *time.Time        `json:"end_date,omitempty"`
}

type NotificationStats struct {
	Total      int64                      `json:"total"`
	Unread     int64                      `json:"unread"`
	ByType     map[NotificationType]int64 `json:"by_type"`
	ByPriority map[Priority]int64         `json:"by_priority"`
	Recent     []Notification             `json:"recent"`
}
