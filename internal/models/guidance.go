package models

import "time"

// GuidanceMessage is an immutable post on the guidance board. A nil ParentID marks a top-level message.
type GuidanceMessage struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	SenderID  string           `gorm:"size:36;index;not null" json:"sender_id"`
	Sender    User             `gorm:"foreignKey:SenderID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"sender"`
	Body      string           `gorm:"type:text;not null" json:"body"`
	ParentID  *string          `gorm:"size:36;index" json:"parent_id"`
	Parent    *GuidanceMessage `gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"parent,omitempty"`
	CreatedAt time.Time        `gorm:"index;not null;autoCreateTime:false" json:"created_at"`
}

// IsReply reports whether the message targets another message.
func (m GuidanceMessage) IsReply() bool {
	return m.ParentID != nil && *m.ParentID != ""
}
