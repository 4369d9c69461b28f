package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notice is a board post. Only the counters are maintained by this
// service; the content is owned by the CMS.
type Notice struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Views     int64     `gorm:"not null;default:0" json:"views"`
	Likes     int64     `gorm:"not null;default:0" json:"likes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (n *Notice) TableName() string {
	return "notices"
}

func (n *Notice) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}
