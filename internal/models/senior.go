package models

import (
	"time"

	"gorm.io/datatypes"
)

// SeniorRequest is a student's application to be promoted to the SENIOR role.
type SeniorRequest struct {
	ID         uint                    `gorm:"primaryKey" json:"id"`
	UserID     string                  `gorm:"size:36;index;not null" json:"user_id"`
	User       User                    `gorm:"foreignKey:UserID" json:"user"`
	Experience string                  `gorm:"type:text;not null" json:"experience"`
	ResumeURL  string                  `gorm:"size:512;not null" json:"resume_url"`
	Status     SeniorApplicationStatus `gorm:"size:16;index;not null" json:"status"`
	ReviewedBy *string                 `gorm:"size:36" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time              `json:"reviewed_at,omitempty"`
	Metadata   datatypes.JSONMap       `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}
