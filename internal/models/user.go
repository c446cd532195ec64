package models

import (
	"strings"
	"time"
)

// Role is the closed set of platform roles a user can hold.
type Role string

// Known roles.
const (
	RoleStudent Role = "STUDENT"
	RoleSenior  Role = "SENIOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalises a raw role string. The second return value is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleSenior, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanReply reports whether holders of the role may reply to guidance messages.
func (r Role) CanReply() bool {
	return r == RoleSenior
}

func (r Role) String() string {
	return string(r)
}

// SeniorApplicationStatus tracks where a user is in the senior approval workflow.
type SeniorApplicationStatus string

// Senior application states.
const (
	SeniorStatusNotApplied SeniorApplicationStatus = "NOT_APPLIED"
	SeniorStatusPending    SeniorApplicationStatus = "PENDING"
	SeniorStatusApproved   SeniorApplicationStatus = "APPROVED"
	SeniorStatusRejected   SeniorApplicationStatus = "REJECTED"
)

// User is a platform account. Role is mutable and must be re-read whenever it gates an action.
type User struct {
	ID                      string                  `gorm:"primaryKey;size:36" json:"id"`
	Username                string                  `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email                   string                  `gorm:"size:255;uniqueIndex;not null" json:"email"`
	ProfilePic              *string                 `gorm:"size:512" json:"profile_pic,omitempty"`
	Role                    Role                    `gorm:"size:16;not null;default:STUDENT" json:"role"`
	SeniorApplicationStatus SeniorApplicationStatus `gorm:"size:16;not null;default:NOT_APPLIED" json:"senior_application_status"`
	CreatedAt               time.Time               `json:"created_at"`
	UpdatedAt               time.Time               `json:"updated_at"`
}
