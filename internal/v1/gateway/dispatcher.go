// Package gateway implements the command dispatcher that sits between
// the Session Gateway (C1) and the domain services: it decodes each
// inbound Frame, routes it to the Task Service, Conflict Controller, or
// Room Router, and turns the result back into an ack frame for the
// caller plus whatever broadcast the service already triggered.
// Grounded on the teacher's signaling dispatch switch (one handler per
// message kind, looked up from a Frame.Type string).
package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/activity"
	"github.com/taskboard/core/internal/v1/conflict"
	"github.com/taskboard/core/internal/v1/logging"
	"github.com/taskboard/core/internal/v1/room"
	"github.com/taskboard/core/internal/v1/store"
	"github.com/taskboard/core/internal/v1/taskservice"
	"github.com/taskboard/core/internal/v1/transport"
	"github.com/taskboard/core/internal/v1/types"
	"go.uber.org/zap"
)

// Dispatcher implements transport.Dispatcher, wiring one Session's
// inbound frames to the domain services.
type Dispatcher struct {
	tasks     *taskservice.Service
	conflicts *conflict.Controller
	router    *room.Router
	activity  activity.Recorder
	store     store.Store
}

// New builds a Dispatcher. router is also the types.Fanout every domain
// service was constructed with, so broadcasts the services trigger
// internally reach the same rooms this dispatcher joins sessions to.
func New(tasks *taskservice.Service, conflicts *conflict.Controller, router *room.Router, rec activity.Recorder, st store.Store) *Dispatcher {
	return &Dispatcher{tasks: tasks, conflicts: conflicts, router: router, activity: rec, store: st}
}

var _ transport.Dispatcher = (*Dispatcher)(nil)

// HandleConnect joins the new session to its board and user rooms and
// announces the membership change, per spec.md §4.2.
func (d *Dispatcher) HandleConnect(s *transport.Session) {
	d.router.Join(types.BoardRoom(), s)
	d.router.Join(types.UserRoomFromID(s.UserID()), s)
	d.broadcastUsersUpdated()
}

// HandleDisconnect drops the session from every room it belonged to and
// releases any edit locks it held.
func (d *Dispatcher) HandleDisconnect(s *transport.Session) {
	d.router.LeaveAll(s.SessionID())
	if actor, err := uuid.Parse(s.UserID()); err == nil {
		d.conflicts.EndAllEditsFor(context.Background(), actor)
	}
	d.broadcastUsersUpdated()
}

func (d *Dispatcher) broadcastUsersUpdated() {
	ids := make([]uuid.UUID, 0)
	for _, userID := range d.router.Users(types.BoardRoom()) {
		if parsed, err := uuid.Parse(userID); err == nil {
			ids = append(ids, parsed)
		}
	}
	frame, err := types.NewFrame(types.EventUsersUpdated, "", types.UsersUpdatedEvent{OnlineUserIDs: ids})
	if err != nil {
		return
	}
	d.router.Broadcast(types.BoardRoom(), frame, "")
}

// Dispatch decodes frame.Type and routes to the matching handler,
// replying to s with an ack frame carrying frame.ID as correlation id.
// Broadcasts of task changes are the domain services' responsibility; the
// typing and cursor handlers broadcast to the task room themselves,
// excluding the sender.
func (d *Dispatcher) Dispatch(ctx context.Context, s *transport.Session, frame types.Frame) {
	ctx = context.WithValue(ctx, logging.UserIDKey, s.UserID())
	if taskID, ok := taskIDFromFrame(frame); ok {
		ctx = context.WithValue(ctx, logging.TaskIDKey, taskID.String())
	}

	actor, err := uuid.Parse(s.UserID())
	if err != nil {
		d.reply(s, frame.ID, types.NewError(types.ErrUnauthenticated, "session user id is not a valid uuid"))
		return
	}

	handler, ok := handlers[frame.Type]
	if !ok {
		d.reply(s, frame.ID, types.NewError(types.ErrValidation, "unknown command"))
		return
	}

	result, herr := handler(ctx, d, s, frame, actor)
	if herr != nil {
		logging.Warn(ctx, "gateway: command failed", zap.String("type", frame.Type), zap.String("code", string(herr.Code)))
		d.reply(s, frame.ID, herr)
		return
	}
	d.reply(s, frame.ID, result)
}

// replyKindAck is the frame type for a successful command's direct
// reply to the originating session (distinct from the event kinds
// broadcast to rooms, which the domain services emit themselves).
const replyKindAck = "ack"

func (d *Dispatcher) reply(s *transport.Session, id string, payload any) {
	kind := replyKindAck
	if herr, ok := payload.(*types.Error); ok && herr != nil {
		kind = types.EventError
	}
	frame, err := types.NewFrame(kind, id, payload)
	if err != nil {
		return
	}
	s.Send(frame)
}

// taskIDFromFrame best-effort extracts a "taskId" field from frame.Data
// so Dispatch can attach it to the logging context; most command
// payloads carry one, and frames that don't just log without it.
func taskIDFromFrame(frame types.Frame) (uuid.UUID, bool) {
	if len(frame.Data) == 0 {
		return uuid.UUID{}, false
	}
	var payload struct {
		TaskID uuid.UUID `json:"taskId"`
	}
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.TaskID == uuid.Nil {
		return uuid.UUID{}, false
	}
	return payload.TaskID, true
}

func (d *Dispatcher) isAdmin(ctx context.Context, userID uuid.UUID) bool {
	u, err := d.store.GetUser(ctx, userID)
	if err != nil {
		return false
	}
	return u.Role == types.RoleAdmin
}
