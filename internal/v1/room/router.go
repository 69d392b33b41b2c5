// Package room implements the Room Router (C2): membership tracking and
// fan-out for the four room kinds named in spec.md §4.2, generalized
// from the teacher's room.Room registry (map keyed by id, guarded by a
// single mutex, with an onEmpty callback for cleanup).
package room

import (
	"context"
	"log/slog"
	"sync"

	"k8s.io/utils/set"

	"github.com/taskboard/core/internal/v1/bus"
	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// Member is the narrow view of a session the router needs: enough to
// deliver a frame and to identify the member for except-session and
// slow-consumer handling. internal/v1/transport.Session implements this.
type Member interface {
	SessionID() string
	UserID() string
	Send(frame types.Frame)
}

// Router owns room -> member-set membership and fan-out, for a single
// gateway instance. Multiple instances stay consistent by also
// publishing every broadcast through the injected bus.Service, exactly
// as the teacher's Room published chat/state changes to Redis so every
// replica's in-process room stayed in sync.
type Router struct {
	mu    sync.RWMutex
	rooms map[types.RoomKey]map[string]Member // roomKey -> sessionID -> Member

	// memberRooms is the reverse index used by LeaveAll on disconnect.
	memberRooms map[string]map[types.RoomKey]struct{}

	busSvc *bus.Service
	selfID string
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Router. busSvc may be nil (single-instance mode); selfID
// distinguishes this instance's own publishes so Subscribe-driven replay
// doesn't echo a message back to the instance that produced it.
func New(busSvc *bus.Service, selfID string) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		rooms:       make(map[types.RoomKey]map[string]Member),
		memberRooms: make(map[string]map[types.RoomKey]struct{}),
		busSvc:      busSvc,
		selfID:      selfID,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Shutdown cancels any active cross-instance subscriptions and waits for
// their goroutines to exit.
func (r *Router) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

// Join adds member to room. Per spec.md §4.2, a frame broadcast strictly
// after Join returns is guaranteed delivery; frames in flight during the
// call are not.
func (r *Router) Join(room types.RoomKey, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]Member)
		r.subscribeRemoteLocked(room)
	}
	r.rooms[room][m.SessionID()] = m

	if r.memberRooms[m.SessionID()] == nil {
		r.memberRooms[m.SessionID()] = make(map[types.RoomKey]struct{})
	}
	r.memberRooms[m.SessionID()][room] = struct{}{}

	metrics.RoomMembers.WithLabelValues(string(types.RoomKindOf(room))).Set(float64(len(r.rooms[room])))
}

// Leave removes member from room.
func (r *Router) Leave(room types.RoomKey, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, sessionID)
}

func (r *Router) leaveLocked(room types.RoomKey, sessionID string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		} else {
			metrics.RoomMembers.WithLabelValues(string(types.RoomKindOf(room))).Set(float64(len(members)))
		}
	}
	if rooms, ok := r.memberRooms[sessionID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.memberRooms, sessionID)
		}
	}
}

// LeaveAll atomically removes sessionID from every room it belonged to.
// Called on disconnect per spec.md §4.2.
func (r *Router) LeaveAll(sessionID string) {
	r.mu.Lock()
	rooms := make([]types.RoomKey, 0, len(r.memberRooms[sessionID]))
	for room := range r.memberRooms[sessionID] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		r.leaveLocked(room, sessionID)
	}
	r.mu.Unlock()
}

// Members returns the session IDs currently in room.
func (r *Router) Members(room types.RoomKey) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	return out
}

// Users returns the distinct user ids currently holding at least one
// session in room (a user may have several sessions open at once). The
// teacher dedupes role-filtered broadcast targets with set.Set[RoleType]
// from k8s.io/utils; this is the same dedup-by-identity problem applied
// to user ids instead of roles.
func (r *Router) Users(room types.RoomKey) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := set.New[string]()
	for _, m := range r.rooms[room] {
		ids.Insert(m.UserID())
	}
	return ids.UnsortedList()
}

// Broadcast delivers frame to every member of room except exceptSession
// (pass "" to exclude nobody), then republishes to other instances via
// the bus. Broadcast never blocks on a slow member: Member.Send is
// itself required to be non-blocking (transport.Session enforces this
// with a buffered channel and drop-on-full, per spec.md §4.1).
func (r *Router) Broadcast(room types.RoomKey, frame types.Frame, exceptSession string) {
	r.mu.RLock()
	targets := make([]Member, 0, len(r.rooms[room]))
	for sessionID, m := range r.rooms[room] {
		if sessionID == exceptSession {
			continue
		}
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	for _, m := range targets {
		m.Send(frame)
	}

	metrics.SessionEvents.WithLabelValues(frame.Type, "broadcast").Inc()
	r.publishRemote(room, frame)
}

// BroadcastToUser delivers frame only to sessions in that user's private
// room (user:<userId>).
func (r *Router) BroadcastToUser(userID string, frame types.Frame) {
	r.Broadcast(types.UserRoomFromID(userID), frame, "")
}

func (r *Router) publishRemote(room types.RoomKey, frame types.Frame) {
	if r.busSvc == nil {
		return
	}
	if err := r.busSvc.Publish(context.Background(), string(room), frame.Type, frame.Data, r.selfID, nil); err != nil {
		slog.Error("room: failed to publish broadcast to bus", "room", room, "error", err)
	}
}

// subscribeRemoteLocked starts listening for frames published by other
// instances for room, the first time this instance gets a local member
// in it. Caller must hold r.mu.
func (r *Router) subscribeRemoteLocked(room types.RoomKey) {
	if r.busSvc == nil {
		return
	}
	r.busSvc.Subscribe(r.ctx, string(room), &r.wg, func(payload bus.PubSubPayload) {
		if payload.SenderID == r.selfID {
			return // avoid echoing our own publish back to our own members
		}
		frame := types.Frame{Type: payload.Event, Data: payload.Payload}
		r.mu.RLock()
		targets := make([]Member, 0, len(r.rooms[room]))
		for _, m := range r.rooms[room] {
			targets = append(targets, m)
		}
		r.mu.RUnlock()
		for _, m := range targets {
			m.Send(frame)
		}
	})
}
