package dto

import (
	"time"

	"github.com/noah-isme/campus-guidance-api/internal/models"
)

// Senior review actions.
const (
	SeniorActionApprove = "APPROVE"
	SeniorActionReject  = "REJECT"
)

// SeniorRequestCreateRequest carries the form fields of a senior application.
type SeniorRequestCreateRequest struct {
	Experience string `form:"experience" validate:"required,min=10,max=4000"`
}

// SeniorReviewRequest is submitted by an admin to decide on an application.
type SeniorReviewRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Action string `json:"action" validate:"required,oneof=APPROVE REJECT"`
}

// SeniorRequestResponse describes an application returned to clients.
type SeniorRequestResponse struct {
	ID         uint                           `json:"id"`
	UserID     string                         `json:"userId"`
	User       *SenderSummary                 `json:"user,omitempty"`
	Experience string                         `json:"experience"`
	ResumeURL  string                         `json:"resumeUrl"`
	Status     models.SeniorApplicationStatus `json:"status"`
	ReviewedAt *time.Time                     `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time                      `json:"createdAt"`
}

// NewSeniorRequestResponse converts a model into a DTO.
func NewSeniorRequestResponse(model models.SeniorRequest) SeniorRequestResponse {
	response := SeniorRequestResponse{
		ID:         model.ID,
		UserID:     model.UserID,
		Experience: model.Experience,
		ResumeURL:  model.ResumeURL,
		Status:     model.Status,
		ReviewedAt: model.ReviewedAt,
		CreatedAt:  model.CreatedAt,
	}
	if model.User.ID != "" {
		summary := NewSenderSummary(model.User)
		response.User = &summary
	}
	return response
}

// NewSeniorRequestResponseSlice converts a slice of applications to DTOs.
func NewSeniorRequestResponseSlice(items []models.SeniorRequest) []SeniorRequestResponse {
	out := make([]SeniorRequestResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewSeniorRequestResponse(item))
	}
	return out
}
