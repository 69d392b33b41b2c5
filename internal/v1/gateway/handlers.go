package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/transport"
	"github.com/taskboard/core/internal/v1/types"
)

type handlerFunc func(ctx context.Context, d *Dispatcher, s *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error)

var handlers = map[string]handlerFunc{
	types.KindTaskList:        handleTaskList,
	types.KindTaskCreate:      handleTaskCreate,
	types.KindTaskUpdate:      handleTaskUpdate,
	types.KindTaskMove:        handleTaskMove,
	types.KindTaskAssign:      handleTaskAssign,
	types.KindTaskSmartAssign: handleTaskSmartAssign,
	types.KindTaskComment:     handleTaskComment,
	types.KindTaskArchive:     handleTaskArchive,
	types.KindTaskDelete:      handleTaskDelete,
	types.KindConflictResolve: handleConflictResolve,
	types.KindEditStart:       handleEditStart,
	types.KindEditEnd:         handleEditEnd,
	types.KindTyping:          handleTyping,
	types.KindCursor:          handleCursor,
	types.KindRoomJoin:        handleRoomJoin,
	types.KindRoomLeave:       handleRoomLeave,
}

func decode[T any](frame types.Frame) (T, *types.Error) {
	var v T
	if len(frame.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(frame.Data, &v); err != nil {
		return v, types.ValidationError(types.FieldError{Field: "data", Reason: "malformed request body"})
	}
	return v, nil
}

func handleTaskList(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, _ uuid.UUID) (any, *types.Error) {
	filter, derr := decode[types.TaskFilter](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.ListTasks(ctx, filter)
}

func handleTaskCreate(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	input, derr := decode[types.CreateTaskInput](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.CreateTask(ctx, input, actor)
}

func handleTaskUpdate(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.UpdateTaskRequest](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.UpdateTask(ctx, req.TaskID, req.Patch, actor, req.KnownVersion)
}

func handleTaskMove(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.MoveTaskRequest](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.MoveTask(ctx, req.TaskID, req.ToStatus, req.ToPosition, actor, req.KnownVersion)
}

func handleTaskAssign(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.AssignTaskRequest](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.AssignTask(ctx, req.TaskID, req.AssigneeID, actor, req.KnownVersion)
}

func handleTaskSmartAssign(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.SmartAssignRequest](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.SmartAssignTask(ctx, req.TaskID, actor, req.KnownVersion)
}

func handleTaskComment(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.CommentRequest](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.AddComment(ctx, req.TaskID, req.Text, actor)
}

func handleTaskArchive(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[struct {
		TaskID uuid.UUID `json:"taskId"`
	}](frame)
	if derr != nil {
		return nil, derr
	}
	return d.tasks.ArchiveTask(ctx, req.TaskID, actor, d.isAdmin(ctx, actor))
}

func handleTaskDelete(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[struct {
		TaskID uuid.UUID `json:"taskId"`
	}](frame)
	if derr != nil {
		return nil, derr
	}
	if err := d.tasks.DeleteTask(ctx, req.TaskID, actor, d.isAdmin(ctx, actor)); err != nil {
		return nil, err
	}
	return struct {
		TaskID uuid.UUID `json:"taskId"`
	}{TaskID: req.TaskID}, nil
}

func handleConflictResolve(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.ResolveConflictRequest](frame)
	if derr != nil {
		return nil, derr
	}
	return d.conflicts.Resolve(ctx, req.TaskID, req.ConflictID, req.Strategy, actor)
}

func handleEditStart(ctx context.Context, d *Dispatcher, s *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.EditStartRequest](frame)
	if derr != nil {
		return nil, derr
	}
	d.conflicts.StartEdit(ctx, req.TaskID, actor, s.SessionID())
	return struct{}{}, nil
}

func handleEditEnd(ctx context.Context, d *Dispatcher, _ *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.EditEndRequest](frame)
	if derr != nil {
		return nil, derr
	}
	d.conflicts.EndEdit(ctx, req.TaskID, actor)
	return struct{}{}, nil
}

// handleTyping and handleCursor are transient, ephemeral signals: they
// are not persisted or validated beyond decoding, and are re-broadcast
// to the task room verbatim, excluding the sender.
func handleTyping(_ context.Context, d *Dispatcher, s *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.TypingRequest](frame)
	if derr != nil {
		return nil, derr
	}
	out, err := types.NewFrame(types.EventTyping, "", struct {
		TaskID   uuid.UUID `json:"taskId"`
		UserID   uuid.UUID `json:"userId"`
		IsTyping bool      `json:"isTyping"`
	}{TaskID: req.TaskID, UserID: actor, IsTyping: req.IsTyping})
	if err == nil {
		d.router.Broadcast(types.TaskRoom(req.TaskID), out, s.SessionID())
	}
	return struct{}{}, nil
}

func handleCursor(_ context.Context, d *Dispatcher, s *transport.Session, frame types.Frame, actor uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.CursorRequest](frame)
	if derr != nil {
		return nil, derr
	}
	out, err := types.NewFrame(types.EventCursor, "", struct {
		TaskID   uuid.UUID `json:"taskId"`
		UserID   uuid.UUID `json:"userId"`
		Position any       `json:"position"`
	}{TaskID: req.TaskID, UserID: actor, Position: req.Position})
	if err == nil {
		d.router.Broadcast(types.TaskRoom(req.TaskID), out, s.SessionID())
	}
	return struct{}{}, nil
}

func handleRoomJoin(_ context.Context, d *Dispatcher, s *transport.Session, frame types.Frame, _ uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.RoomJoinRequest](frame)
	if derr != nil {
		return nil, derr
	}
	d.router.Join(roomKeyFor(req.RoomKind, req.ID), s)
	return struct{}{}, nil
}

func handleRoomLeave(_ context.Context, d *Dispatcher, s *transport.Session, frame types.Frame, _ uuid.UUID) (any, *types.Error) {
	req, derr := decode[types.RoomLeaveRequest](frame)
	if derr != nil {
		return nil, derr
	}
	d.router.Leave(roomKeyFor(req.RoomKind, req.ID), s.SessionID())
	return struct{}{}, nil
}

func roomKeyFor(kind types.RoomKind, id uuid.UUID) types.RoomKey {
	switch kind {
	case types.RoomKindTask:
		return types.TaskRoom(id)
	case types.RoomKindUser:
		return types.UserRoom(id)
	case types.RoomKindActivity:
		return types.ActivityRoom()
	default:
		return types.BoardRoom()
	}
}
