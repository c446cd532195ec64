package realtime

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
	"github.com/noah-isme/campus-guidance-api/internal/observability"
)

// EventNewMessage is the frame type announcing a committed guidance message.
const EventNewMessage = "new_message"

var frameCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink is one registered recipient of broadcast frames.
type Sink interface {
	State() ViewerState
	// Enqueue hands the frame to the sink without blocking and reports whether it was accepted.
	Enqueue(frame []byte) bool
}

// Hub keeps the set of live viewers and fans committed messages out to them.
type Hub struct {
	mu      sync.RWMutex
	viewers map[Sink]struct{}
	logger  zerolog.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		viewers: make(map[Sink]struct{}),
		logger:  logger.With().Str("component", "guidance_hub").Logger(),
	}
}

// Register adds a sink. Registering the same sink twice has no effect.
func (h *Hub) Register(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.viewers[sink]; exists {
		return
	}
	h.viewers[sink] = struct{}{}
	observability.LiveViewers().Inc()
	h.logger.Debug().Int("viewers", len(h.viewers)).Msg("viewer registered")
}

// Unregister removes a sink. Unknown sinks are ignored.
func (h *Hub) Unregister(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.viewers[sink]; !exists {
		return
	}
	delete(h.viewers, sink)
	observability.LiveViewers().Dec()
	h.logger.Debug().Int("viewers", len(h.viewers)).Msg("viewer unregistered")
}

// Count returns the number of registered sinks regardless of their state.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Broadcast encodes the message once and offers it to every OPEN sink. Sinks in any other state
// are skipped; a sink whose queue is full loses this frame. It returns the number of sinks
// that accepted the frame.
func (h *Hub) Broadcast(message dto.GuidanceMessageResponse) int {
	frame, err := frameCodec.Marshal(dto.GuidanceEnvelope{Type: EventNewMessage, Data: message})
	if err != nil {
		h.logger.Error().Err(err).Str("message_id", message.ID).Msg("failed to encode broadcast frame")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var sent, skipped, dropped int
	for sink := range h.viewers {
		if sink.State() != StateOpen {
			skipped++
			continue
		}
		if sink.Enqueue(frame) {
			sent++
		} else {
			dropped++
		}
	}

	frames := observability.BroadcastFrames()
	frames.WithLabelValues("sent").Add(float64(sent))
	frames.WithLabelValues("skipped").Add(float64(skipped))
	frames.WithLabelValues("dropped").Add(float64(dropped))

	if dropped > 0 {
		h.logger.Warn().Str("message_id", message.ID).Int("dropped", dropped).Msg("dropping broadcast frame for slow viewers")
	}

	return sent
}
