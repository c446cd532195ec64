package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
	"github.com/noah-isme/campus-guidance-api/internal/models"
	"github.com/noah-isme/campus-guidance-api/internal/observability"
	"github.com/noah-isme/campus-guidance-api/internal/repository"
	"github.com/noah-isme/campus-guidance-api/pkg/ai"
)

// GuidanceBroadcaster fans committed messages out to live viewers and reports how many were reached.
type GuidanceBroadcaster interface {
	Broadcast(message dto.GuidanceMessageResponse) int
}

// GuidanceService exposes the guidance board use-cases.
type GuidanceService interface {
	Create(ctx context.Context, senderID string, payload dto.GuidanceMessageCreateRequest) (dto.GuidanceMessageResponse, error)
	Feed(ctx context.Context, query dto.GuidanceFeedQuery) ([]dto.GuidanceMessageResponse, error)
}

type guidanceService struct {
	repo       repository.GuidanceRepository
	authorizer GuidanceAuthorizer
	moderation ModerationGate
	hub        GuidanceBroadcaster
	events     GuidanceEventPublisher
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	sanitizer  *bluemonday.Policy
}

// NewGuidanceService wires the write and read paths of the guidance board.
func NewGuidanceService(
	repo repository.GuidanceRepository,
	authorizer GuidanceAuthorizer,
	moderation ModerationGate,
	hub GuidanceBroadcaster,
	events GuidanceEventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) GuidanceService {
	return &guidanceService{
		repo:       repo,
		authorizer: authorizer,
		moderation: moderation,
		hub:        hub,
		events:     events,
		validator:  validate,
		logger:     logger.With().Str("component", "guidance_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/campus-guidance-api/internal/service/guidance"),
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// Create runs authorize, moderate, persist and broadcast in that order. Nothing is stored or
// broadcast unless every earlier step succeeded.
func (s *guidanceService) Create(ctx context.Context, senderID string, payload dto.GuidanceMessageCreateRequest) (dto.GuidanceMessageResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "guidance.create", trace.WithAttributes(
		attribute.String("guidance.sender_id", senderID),
		attribute.Bool("guidance.is_reply", payload.ReplyToID != nil),
	))
	defer span.End()

	response, err := s.create(spanCtx, senderID, payload)
	if err != nil {
		reason := rejectionReason(err)
		observability.MessageRejections().WithLabelValues(reason).Inc()
		span.SetStatus(codes.Error, reason)
		if reason == "storage" {
			span.RecordError(err)
			s.logger.Error().Err(err).Str("sender_id", senderID).Msg("failed to store guidance message")
		} else {
			s.logger.Debug().Err(err).Str("sender_id", senderID).Str("reason", reason).Msg("guidance message refused")
		}
		return dto.GuidanceMessageResponse{}, err
	}

	span.SetAttributes(attribute.String("guidance.message_id", response.ID))
	return response, nil
}

func (s *guidanceService) create(ctx context.Context, senderID string, payload dto.GuidanceMessageCreateRequest) (dto.GuidanceMessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GuidanceMessageResponse{}, fmt.Errorf("%w: %v", ErrGuidanceValidation, err)
	}

	body := s.plainText(payload.Content)
	if body == "" {
		return dto.GuidanceMessageResponse{}, fmt.Errorf("%w: content empty after sanitization", ErrGuidanceValidation)
	}

	sender, err := s.authorizer.AuthorizePost(ctx, senderID)
	if err != nil {
		return dto.GuidanceMessageResponse{}, err
	}

	var parentID *string
	if payload.ReplyToID != nil && strings.TrimSpace(*payload.ReplyToID) != "" {
		parent, err := s.authorizer.AuthorizeReply(ctx, sender, strings.TrimSpace(*payload.ReplyToID))
		if err != nil {
			return dto.GuidanceMessageResponse{}, err
		}
		parentID = &parent.ID
	}

	verdict, err := s.moderation.Classify(ctx, body)
	if err != nil {
		if errors.Is(err, ErrModerationUnavailable) {
			return dto.GuidanceMessageResponse{}, err
		}
		return dto.GuidanceMessageResponse{}, fmt.Errorf("%w: %v", ErrModerationUnavailable, err)
	}
	if verdict != ai.VerdictSafe {
		return dto.GuidanceMessageResponse{}, ErrContentRejected
	}

	created, err := s.repo.Create(ctx, &models.GuidanceMessage{
		SenderID: sender.ID,
		Body:     body,
		ParentID: parentID,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrParentNotFound):
			return dto.GuidanceMessageResponse{}, ErrParentNotFound
		case errors.Is(err, repository.ErrEmptyBody):
			return dto.GuidanceMessageResponse{}, fmt.Errorf("%w: %v", ErrGuidanceValidation, err)
		default:
			return dto.GuidanceMessageResponse{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
	}

	kind := "question"
	if created.IsReply() {
		kind = "reply"
	}
	observability.MessagesCreated().WithLabelValues(kind).Inc()

	response := dto.NewGuidanceMessageResponse(created, 0)

	if s.hub != nil {
		reached := s.hub.Broadcast(response)
		s.logger.Debug().Str("message_id", response.ID).Int("viewers", reached).Msg("guidance message broadcast")
	}
	if s.events != nil {
		s.events.MessageCreated(ctx, response)
	}

	return response, nil
}

// Feed returns one page of top-level messages with their direct replies oldest first.
func (s *guidanceService) Feed(ctx context.Context, query dto.GuidanceFeedQuery) ([]dto.GuidanceMessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGuidanceValidation, err)
	}

	spanCtx, span := s.tracer.Start(ctx, "guidance.feed", trace.WithAttributes(
		attribute.Int("feed.page", query.Page),
		attribute.Int("feed.limit", query.Limit),
		attribute.Bool("feed.keyset", query.Before != ""),
	))
	defer span.End()

	topLevel, err := s.repo.ListTopLevel(spanCtx, repository.FeedQuery{
		Page:   query.Page,
		Limit:  query.Limit,
		Before: query.Before,
	})
	if err != nil {
		if errors.Is(err, repository.ErrCursorNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrGuidanceValidation, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "list top-level")
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if len(topLevel) == 0 {
		return []dto.GuidanceMessageResponse{}, nil
	}

	topIDs := lo.Map(topLevel, func(m models.GuidanceMessage, _ int) string { return m.ID })

	replies, err := s.repo.ListReplies(spanCtx, topIDs)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	replyIDs := lo.Map(replies, func(m models.GuidanceMessage, _ int) string { return m.ID })
	counts, err := s.repo.CountReplies(spanCtx, append(topIDs, replyIDs...))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	byParent := lo.GroupBy(replies, func(m models.GuidanceMessage) string { return lo.FromPtr(m.ParentID) })

	span.SetAttributes(attribute.Int("feed.items", len(topLevel)), attribute.Int("feed.replies", len(replies)))

	return lo.Map(topLevel, func(m models.GuidanceMessage, _ int) dto.GuidanceMessageResponse {
		response := dto.NewGuidanceMessageResponse(m, counts[m.ID])
		response.Replies = dto.NewGuidanceMessageResponseSlice(byParent[m.ID], counts)
		return response
	}), nil
}

// plainText strips markup and decodes entities; bodies are stored and served as plain text.
func (s *guidanceService) plainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(raw)))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrGuidanceValidation):
		return "validation"
	case errors.Is(err, ErrUserNotFound):
		return "unknown_sender"
	case errors.Is(err, ErrReplyForbidden):
		return "reply_forbidden"
	case errors.Is(err, ErrParentNotFound):
		return "parent_not_found"
	case errors.Is(err, ErrReplyDepthExceeded):
		return "depth_exceeded"
	case errors.Is(err, ErrContentRejected):
		return "content_rejected"
	case errors.Is(err, ErrModerationUnavailable):
		return "moderation_unavailable"
	default:
		return "storage"
	}
}
