package service

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
	"github.com/noah-isme/campus-guidance-api/internal/middleware"
	"github.com/noah-isme/campus-guidance-api/internal/observability"
)

// GuidanceEventPublisher announces committed messages to other systems.
type GuidanceEventPublisher interface {
	MessageCreated(ctx context.Context, message dto.GuidanceMessageResponse)
}

// GuidanceCreatedEvent is the payload published on the message bus after a commit.
type GuidanceCreatedEvent struct {
	Type          string                      `json:"type"`
	OccurredAt    time.Time                   `json:"occurredAt"`
	CorrelationID string                      `json:"correlationId,omitempty"`
	Message       dto.GuidanceMessageResponse `json:"message"`
}

type natsGuidancePublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
	now     func() time.Time
}

// NewNATSGuidancePublisher publishes created events on subject. A nil connection disables publishing.
func NewNATSGuidancePublisher(conn *nats.Conn, subject string, logger zerolog.Logger) GuidanceEventPublisher {
	return &natsGuidancePublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "guidance_events").Logger(),
		now:     time.Now,
	}
}

// MessageCreated is best-effort: failures are logged and counted, never returned.
func (p *natsGuidancePublisher) MessageCreated(ctx context.Context, message dto.GuidanceMessageResponse) {
	if p.conn == nil || p.subject == "" {
		return
	}

	event := GuidanceCreatedEvent{
		Type:          "guidance.message.created",
		OccurredAt:    p.now().UTC(),
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
		Message:       message,
	}

	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	if err != nil {
		observability.DomainEvents().WithLabelValues(p.subject, "encode_error").Inc()
		p.logger.Warn().Err(err).Str("message_id", message.ID).Msg("failed to encode guidance event")
		return
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	if event.CorrelationID != "" {
		msg.Header.Set(middleware.CorrelationHeader, event.CorrelationID)
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		observability.DomainEvents().WithLabelValues(p.subject, "error").Inc()
		p.logger.Warn().Err(err).Str("message_id", message.ID).Msg("failed to publish guidance event")
		return
	}

	observability.DomainEvents().WithLabelValues(p.subject, "published").Inc()
}
