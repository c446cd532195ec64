package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
)

type fakeSink struct {
	mu     sync.Mutex
	state  ViewerState
	full   bool
	frames [][]byte
}

func (f *fakeSink) State() ViewerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSink) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSink) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestHubBroadcastReachesOnlyOpenViewers(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	open := []*fakeSink{{state: StateOpen}, {state: StateOpen}, {state: StateOpen}}
	others := []*fakeSink{{state: StateConnecting}, {state: StateClosing}}
	for _, s := range open {
		hub.Register(s)
	}
	for _, s := range others {
		hub.Register(s)
	}
	require.Equal(t, 5, hub.Count())

	reached := hub.Broadcast(dto.GuidanceMessageResponse{ID: "m1", Message: "hello"})
	require.Equal(t, 3, reached)

	for _, s := range open {
		require.Equal(t, 1, s.received())
	}
	for _, s := range others {
		require.Zero(t, s.received())
	}
}

func TestHubBroadcastFrameShape(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sink := &fakeSink{state: StateOpen}
	hub.Register(sink)

	parent := "p1"
	hub.Broadcast(dto.GuidanceMessageResponse{ID: "m2", Message: "Take CST-501", SenderID: "u2", ReplyToID: &parent})

	require.Equal(t, 1, sink.received())
	var frame struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(sink.frames[0], &frame))
	require.Equal(t, EventNewMessage, frame.Type)
	require.Equal(t, "m2", frame.Data["id"])
	require.Equal(t, "Take CST-501", frame.Data["message"])
	require.Equal(t, "p1", frame.Data["replyToId"])
}

func TestHubBroadcastDropsForFullQueue(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &fakeSink{state: StateOpen, full: true}
	fast := &fakeSink{state: StateOpen}
	hub.Register(slow)
	hub.Register(fast)

	require.Equal(t, 1, hub.Broadcast(dto.GuidanceMessageResponse{ID: "m3"}))
	require.Zero(t, slow.received())
	require.Equal(t, 1, fast.received())
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sink := &fakeSink{state: StateOpen}
	hub.Register(sink)
	hub.Register(sink)
	require.Equal(t, 1, hub.Count())

	hub.Unregister(sink)
	hub.Unregister(sink)
	require.Zero(t, hub.Count())

	require.Zero(t, hub.Broadcast(dto.GuidanceMessageResponse{ID: "m4"}))
	require.Zero(t, sink.received())
}

func TestHubBroadcastWithNoViewers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	require.Zero(t, hub.Broadcast(dto.GuidanceMessageResponse{ID: "m5"}))
}

func TestHubConcurrentRegisterAndBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sink := &fakeSink{state: StateOpen}
			hub.Register(sink)
			hub.Unregister(sink)
		}()
		go func() {
			defer wg.Done()
			hub.Broadcast(dto.GuidanceMessageResponse{ID: "concurrent"})
		}()
	}
	wg.Wait()
	require.Zero(t, hub.Count())
}

// pipeConn is an in-memory Conn whose reads block until Close.
type pipeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	written  chan struct{}
	closed   chan struct{}
	once     sync.Once
	writeErr error
}

func newPipeConn() *pipeConn {
	return &pipeConn{written: make(chan struct{}, 16), closed: make(chan struct{})}
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	<-p.closed
	return 0, nil, errors.New("connection closed")
}

func (p *pipeConn) WriteMessage(messageType int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return p.writeErr
	}
	if messageType == 1 {
		p.writes = append(p.writes, data)
		p.written <- struct{}{}
	}
	return nil
}

func (p *pipeConn) SetWriteDeadline(time.Time) error { return nil }

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) frames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func TestViewerLifecycleThroughHub(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newPipeConn()
	viewer := NewViewer(conn, ViewerOptions{UserID: "u1"}, zerolog.Nop())
	require.Equal(t, StateConnecting, viewer.State())
	require.False(t, viewer.Enqueue([]byte("early")), "connecting viewers accept nothing")

	done := make(chan struct{})
	go func() {
		defer close(done)
		viewer.Serve(context.Background(), hub)
	}()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, StateOpen, viewer.State())

	require.Equal(t, 1, hub.Broadcast(dto.GuidanceMessageResponse{ID: "live"}))
	select {
	case <-conn.written:
	case <-time.After(time.Second):
		t.Fatal("frame was not written")
	}
	require.Equal(t, 1, conn.frames())

	require.NoError(t, conn.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("viewer did not stop after transport close")
	}

	require.Equal(t, StateClosed, viewer.State())
	require.Zero(t, hub.Count())
	require.False(t, viewer.Enqueue([]byte("late")))
}

func TestViewerStopsWhenContextEnds(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newPipeConn()
	viewer := NewViewer(conn, ViewerOptions{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		viewer.Serve(ctx, hub)
	}()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("viewer did not stop after cancellation")
	}
	require.Zero(t, hub.Count())
}

func TestViewerWriteFailureClosesConnection(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newPipeConn()
	conn.writeErr = errors.New("broken pipe")
	viewer := NewViewer(conn, ViewerOptions{}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		viewer.Serve(context.Background(), hub)
	}()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast(dto.GuidanceMessageResponse{ID: "doomed"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("viewer did not stop after write failure")
	}
	require.Zero(t, hub.Count())
}
