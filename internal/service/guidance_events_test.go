package service

import (
	"context"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
)

func TestNATSGuidancePublisherWithoutConnectionIsNoop(t *testing.T) {
	publisher := NewNATSGuidancePublisher(nil, "guidance.message.created", zerolog.Nop())

	require.NotPanics(t, func() {
		publisher.MessageCreated(context.Background(), dto.GuidanceMessageResponse{ID: "m1"})
	})
}

func TestGuidanceCreatedEventShape(t *testing.T) {
	event := GuidanceCreatedEvent{
		Type:          "guidance.message.created",
		OccurredAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CorrelationID: "corr-1",
		Message:       dto.GuidanceMessageResponse{ID: "m1", Message: "hello"},
	}

	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, jsoniter.Unmarshal(payload, &decoded))
	require.Equal(t, "guidance.message.created", decoded["type"])
	require.Equal(t, "corr-1", decoded["correlationId"])
	require.Equal(t, "2024-05-01T12:00:00Z", decoded["occurredAt"])

	message, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "m1", message["id"])
}
