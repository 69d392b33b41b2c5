// Package transport implements the Session Gateway (C1): one persistent
// duplex connection per authenticated client, dispatch of inbound
// frames to services, and strict per-session FIFO delivery of outbound
// frames. Grounded on the teacher's transport.Client/transport.Hub
// (gorilla/websocket read/write pumps, a single buffered send channel,
// sync.Once-guarded close), generalized from a single binary protobuf
// message type to the JSON Frame of spec.md §6. Unlike the teacher,
// which split sends across a priority and a normal channel, this
// Session uses one channel: spec.md §4.1 requires strict FIFO delivery
// within a session, which a second channel would violate whenever both
// had frames ready.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// wsConnection is the subset of *websocket.Conn the session needs,
// narrowed so tests can substitute a fake.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Dispatcher routes one decoded inbound frame from a session to the
// services that handle it (room join/leave, task commands, edit
// signals, conflict resolution). Implemented by the gateway's command
// router, kept as an interface so Session stays unit-testable without a
// live service stack, mirroring the teacher's Room.Router injection.
type Dispatcher interface {
	HandleConnect(s *Session)
	Dispatch(ctx context.Context, s *Session, frame types.Frame)
	HandleDisconnect(s *Session)
}

// Session represents one live duplex connection from one client,
// exactly as spec.md's glossary defines it. It implements room.Member.
type Session struct {
	conn        wsConnection
	dispatcher  Dispatcher
	id          string // sessionId, a fresh uuid per connection
	userID      string
	displayName string

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once

	// send is the single outbound queue: every frame, regardless of
	// kind, is written to the socket in the exact order it was
	// enqueued, per spec.md §4.1's strict per-session FIFO guarantee.
	send chan []byte

	onClose func(*Session) // optional, invoked once after the dispatcher is notified of the disconnect
}

// NewSession wraps an established connection. queueDepth sizes the
// outbound channel (config.OutboundQueueDepth).
func NewSession(conn wsConnection, dispatcher Dispatcher, sessionID, userID, displayName string, queueDepth int) *Session {
	return &Session{
		conn:        conn,
		dispatcher:  dispatcher,
		id:          sessionID,
		userID:      userID,
		displayName: displayName,
		send:        make(chan []byte, queueDepth),
	}
}

func (s *Session) SessionID() string   { return s.id }
func (s *Session) UserID() string      { return s.userID }
func (s *Session) DisplayName() string { return s.displayName }

// Send enqueues frame for delivery, non-blocking. On a full queue it
// closes the session with reason slow-consumer per spec.md §4.1; the
// caller (Room Router broadcast) is never blocked.
func (s *Session) Send(frame types.Frame) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	data, err := encodeFrame(frame)
	if err != nil {
		slog.Error("transport: failed to encode frame", "sessionId", s.id, "error", err)
		return
	}

	select {
	case s.send <- data:
		metrics.SessionEvents.WithLabelValues(frame.Type, "delivered").Inc()
	default:
		metrics.SessionEvents.WithLabelValues(frame.Type, "dropped").Inc()
		slog.Warn("transport: outbound queue full, closing slow consumer", "sessionId", s.id)
		s.CloseWithReason("slow-consumer")
	}
}

// CloseWithReason closes the underlying connection and notifies the
// dispatcher so the Room Router drops this session from every room.
func (s *Session) CloseWithReason(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		slog.Info("transport: closing session", "sessionId", s.id, "reason", reason)
		close(s.send)
		_ = s.conn.Close()

		if s.dispatcher != nil {
			s.dispatcher.HandleDisconnect(s)
		}
		if s.onClose != nil {
			s.onClose(s)
		}
		metrics.DecSession()
	})
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// readPump decodes inbound JSON frames and hands them to the dispatcher.
// Runs until the connection errors or closes.
func (s *Session) readPump() {
	defer s.CloseWithReason("client-disconnect")

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := decodeFrame(data)
		if err != nil {
			slog.Warn("transport: failed to decode frame", "sessionId", s.id, "error", err)
			continue
		}

		metrics.SessionEvents.WithLabelValues(frame.Type, "received").Inc()
		s.dispatcher.Dispatch(context.Background(), s, frame)
	}
}

// writePump serializes all outbound writes to the socket in the exact
// order frames were enqueued by Send, per spec.md §4.1.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.write(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) write(message []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		slog.Error("transport: write failed", "sessionId", s.id, "error", err)
		return err
	}
	return nil
}

func encodeFrame(frame types.Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func decodeFrame(data []byte) (types.Frame, error) {
	var frame types.Frame
	err := json.Unmarshal(data, &frame)
	return frame, err
}
