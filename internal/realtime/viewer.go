package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

// ViewerState tracks the lifecycle of a live connection.
type ViewerState int32

// Viewer lifecycle: CONNECTING -> OPEN -> CLOSING -> CLOSED. CLOSED is terminal.
const (
	StateConnecting ViewerState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ViewerState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const (
	defaultSendBuffer   = 32
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Conn is the subset of a websocket connection a viewer drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ViewerOptions tunes a single viewer.
type ViewerOptions struct {
	UserID        string
	CorrelationID string
	SendBuffer    int
	WriteTimeout  time.Duration
	PingInterval  time.Duration
}

// Viewer is one websocket client receiving the guidance stream.
type Viewer struct {
	conn         Conn
	options      ViewerOptions
	state        atomic.Int32
	send         chan []byte
	closed       chan struct{}
	once         sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewViewer wraps conn in a CONNECTING viewer.
func NewViewer(conn Conn, opts ViewerOptions, logger zerolog.Logger) *Viewer {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}

	ctxLogger := logger.With().Str("component", "guidance_viewer")
	if opts.UserID != "" {
		ctxLogger = ctxLogger.Str("user_id", opts.UserID)
	}
	if opts.CorrelationID != "" {
		ctxLogger = ctxLogger.Str("correlation_id", opts.CorrelationID)
	}

	v := &Viewer{
		conn:         conn,
		options:      opts,
		send:         make(chan []byte, opts.SendBuffer),
		closed:       make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		logger:       ctxLogger.Logger(),
	}
	v.state.Store(int32(StateConnecting))
	return v
}

// State reports the current lifecycle state.
func (v *Viewer) State() ViewerState {
	return ViewerState(v.state.Load())
}

// Enqueue queues a frame for delivery without blocking. It returns false when the viewer is not
// OPEN or its queue is full.
func (v *Viewer) Enqueue(frame []byte) bool {
	if v.State() != StateOpen {
		return false
	}
	select {
	case <-v.closed:
		return false
	default:
	}

	select {
	case v.send <- frame:
		return true
	default:
		return false
	}
}

// Serve registers the viewer with hub, pumps frames until the peer goes away or ctx ends, then
// unregisters. It blocks until the writer has stopped touching the connection.
func (v *Viewer) Serve(ctx context.Context, hub *Hub) {
	if ctx == nil {
		ctx = context.Background()
	}

	v.state.Store(int32(StateOpen))
	hub.Register(v)
	v.logger.Debug().Msg("guidance viewer connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		v.writer()
	}()

	go func() {
		select {
		case <-ctx.Done():
			v.close(hub)
		case <-v.closed:
		}
	}()

	v.reader()
	v.close(hub)
	<-writerDone

	v.state.Store(int32(StateClosed))
	v.logger.Debug().Msg("guidance viewer disconnected")
}

// reader drains inbound frames; the stream is one-way so payloads are discarded.
func (v *Viewer) reader() {
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			v.logger.Debug().Err(err).Msg("guidance read loop ended")
			return
		}
	}
}

func (v *Viewer) writer() {
	ticker := time.NewTicker(v.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-v.send:
			if err := v.write(websocket.TextMessage, frame); err != nil {
				v.logger.Debug().Err(err).Msg("guidance write loop terminated")
				_ = v.conn.Close()
				return
			}
		case <-ticker.C:
			if err := v.write(websocket.PingMessage, []byte("keepalive")); err != nil {
				v.logger.Debug().Err(err).Msg("guidance ping failed")
				_ = v.conn.Close()
				return
			}
		case <-v.closed:
			return
		}
	}
}

func (v *Viewer) write(messageType int, payload []byte) error {
	if err := v.conn.SetWriteDeadline(time.Now().Add(v.writeTimeout)); err != nil {
		return err
	}
	return v.conn.WriteMessage(messageType, payload)
}

func (v *Viewer) close(hub *Hub) {
	v.once.Do(func() {
		v.state.Store(int32(StateClosing))
		close(v.closed)
		hub.Unregister(v)
		_ = v.conn.Close()
	})
}
