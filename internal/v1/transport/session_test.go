package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/core/internal/v1/types"
)

// fakeConn is an in-memory stand-in for *websocket.Conn: WriteMessage
// appends to a slice instead of touching a socket, so writePump can run
// against it directly.
type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	closed   bool
	readErrC chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{readErrC: make(chan error, 1)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	err := <-c.readErrC
	return 0, nil, err
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), data...)
	c.written = append(c.written, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

type fakeDispatcher struct {
	mu          sync.Mutex
	connected   []*Session
	disconnects []*Session
}

func (f *fakeDispatcher) HandleConnect(s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, s)
}

func (f *fakeDispatcher) Dispatch(context.Context, *Session, types.Frame) {}

func (f *fakeDispatcher) HandleDisconnect(s *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, s)
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

// TestSession_SendPreservesEnqueueOrder is the regression test for the
// two-channel priority-lane bug: every frame, regardless of kind, must
// reach the socket in exactly the order Send was called, per spec.md
// §4.1's strict per-session FIFO guarantee.
func TestSession_SendPreservesEnqueueOrder(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn, &fakeDispatcher{}, "sess-1", "user-1", "tester", 16)
	go s.writePump()
	t.Cleanup(func() { s.CloseWithReason("test-done") })

	s.Send(types.Frame{Type: types.EventTaskUpdated, ID: "1"})
	s.Send(types.Frame{Type: types.EventTaskMoved, ID: "2"}) // was priority lane
	s.Send(types.Frame{Type: types.EventError, ID: "3"})     // was priority lane
	s.Send(types.Frame{Type: types.EventTaskCommented, ID: "4"})

	waitForCondition(t, time.Second, func() bool { return len(conn.messages()) == 4 })

	msgs := conn.messages()
	wantOrder := []string{"1", "2", "3", "4"}
	for i, raw := range msgs {
		var frame types.Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, wantOrder[i], frame.ID, "frame %d out of enqueue order", i)
	}
}

func TestSession_Send_DropsSlowConsumer(t *testing.T) {
	conn := newFakeConn()
	dispatcher := &fakeDispatcher{}
	s := NewSession(conn, dispatcher, "sess-1", "user-1", "tester", 1)

	// Fill the queue without a writePump draining it, so the next Send
	// finds it full and must close the session instead of blocking.
	s.Send(types.Frame{Type: types.EventTyping, ID: "1"})
	s.Send(types.Frame{Type: types.EventTyping, ID: "2"})

	waitForCondition(t, time.Second, func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()
		return len(dispatcher.disconnects) == 1
	})
}

func TestSession_CloseWithReason_IsIdempotentAndNotifiesDispatcher(t *testing.T) {
	conn := newFakeConn()
	dispatcher := &fakeDispatcher{}
	s := NewSession(conn, dispatcher, "sess-1", "user-1", "tester", 4)

	s.CloseWithReason("test")
	s.CloseWithReason("test-again") // must not panic on double-close

	assert.Len(t, dispatcher.disconnects, 1)
	assert.True(t, conn.closed)
}

func TestSession_Send_NoopAfterClose(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn, &fakeDispatcher{}, "sess-1", "user-1", "tester", 4)
	s.CloseWithReason("test")

	assert.NotPanics(t, func() {
		s.Send(types.Frame{Type: types.EventTyping})
	})
}

func TestSession_Accessors(t *testing.T) {
	s := NewSession(newFakeConn(), &fakeDispatcher{}, "sess-1", "user-1", "Ada", 4)
	assert.Equal(t, "sess-1", s.SessionID())
	assert.Equal(t, "user-1", s.UserID())
	assert.Equal(t, "Ada", s.DisplayName())
}
