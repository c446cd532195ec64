package dto

import (
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/noah-isme/campus-guidance-api/internal/models"
)

// ParentPreviewLength bounds the body excerpt embedded in a reply's parent preview.
const ParentPreviewLength = 140

// GuidanceMessageCreateRequest is the payload to post a message or a reply.
type GuidanceMessageCreateRequest struct {
	Content   string  `json:"content" validate:"required,min=1,max=5000"`
	ReplyToID *string `json:"replyToId" validate:"omitempty,uuid"`
}

// GuidanceFeedQuery selects one page of the top-level feed.
type GuidanceFeedQuery struct {
	Page   int    `query:"page" validate:"omitempty,min=1"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Before string `query:"before" validate:"omitempty,uuid"`
}

// SenderSummary is the public projection of a message author.
type SenderSummary struct {
	ID         string      `json:"id"`
	Username   string      `json:"username"`
	ProfilePic *string     `json:"profilePic,omitempty"`
	Role       models.Role `json:"role"`
}

// ParentPreview summarises the message a reply targets.
type ParentPreview struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Sender  struct {
		Username string `json:"username"`
	} `json:"sender"`
}

// ReplyCount mirrors the derived child count.
type ReplyCount struct {
	Replies int64 `json:"replies"`
}

// GuidanceMessageResponse is the serialized representation of a guidance message.
type GuidanceMessageResponse struct {
	ID        string                    `json:"id"`
	Message   string                    `json:"message"`
	SenderID  string                    `json:"senderId"`
	Sender    SenderSummary             `json:"sender"`
	ReplyToID *string                   `json:"replyToId"`
	ReplyTo   *ParentPreview            `json:"replyTo,omitempty"`
	Replies   []GuidanceMessageResponse `json:"replies"`
	Count     ReplyCount                `json:"_count"`
	CreatedAt time.Time                 `json:"createdAt"`
}

// GuidanceEnvelope is the frame pushed to live viewers.
type GuidanceEnvelope struct {
	Type string                  `json:"type"`
	Data GuidanceMessageResponse `json:"data"`
}

// NewSenderSummary projects a user into its public summary.
func NewSenderSummary(user models.User) SenderSummary {
	return SenderSummary{
		ID:         user.ID,
		Username:   user.Username,
		ProfilePic: user.ProfilePic,
		Role:       user.Role,
	}
}

// NewGuidanceMessageResponse converts a model into a DTO. The parent preview is included when preloaded.
func NewGuidanceMessageResponse(model models.GuidanceMessage, replyCount int64) GuidanceMessageResponse {
	response := GuidanceMessageResponse{
		ID:        model.ID,
		Message:   model.Body,
		SenderID:  model.SenderID,
		Sender:    NewSenderSummary(model.Sender),
		ReplyToID: model.ParentID,
		Replies:   []GuidanceMessageResponse{},
		Count:     ReplyCount{Replies: replyCount},
		CreatedAt: model.CreatedAt,
	}
	if model.Parent != nil {
		preview := &ParentPreview{
			ID:      model.Parent.ID,
			Message: TruncateBody(model.Parent.Body, ParentPreviewLength),
		}
		preview.Sender.Username = model.Parent.Sender.Username
		response.ReplyTo = preview
	}
	return response
}

// NewGuidanceMessageResponseSlice converts replies, looking up each derived count by id.
func NewGuidanceMessageResponseSlice(items []models.GuidanceMessage, counts map[string]int64) []GuidanceMessageResponse {
	return lo.Map(items, func(item models.GuidanceMessage, _ int) GuidanceMessageResponse {
		return NewGuidanceMessageResponse(item, counts[item.ID])
	})
}

// TruncateBody cuts body to at most limit runes, appending an ellipsis when shortened.
func TruncateBody(body string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(body) <= limit {
		return body
	}
	runes := []rune(body)
	return string(runes[:limit]) + "..."
}
