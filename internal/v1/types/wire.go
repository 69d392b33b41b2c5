package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frame is the logical shape of every bidirectional message, exactly as
// spec.md §6 defines it: { "type": "<kind>", "id": "<optional correlation
// id>", "data": { ... } }. Server-initiated frames omit Id.
type Frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a Frame, returning an error if data cannot
// be JSON-encoded; callers pass static struct literals so this never
// happens in practice.
func NewFrame(kind string, id string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame %q: %w", kind, err)
	}
	return Frame{Type: kind, ID: id, Data: raw}, nil
}

// Inbound message kinds (client -> server).
const (
	KindRoomJoin        = "room.join"
	KindRoomLeave       = "room.leave"
	KindEditStart       = "edit.start"
	KindEditEnd         = "edit.end"
	KindTyping          = "typing"
	KindConflictResolve = "conflict.resolve"
	KindCursor          = "cursor"

	KindTaskList        = "task.list"
	KindTaskCreate      = "task.create"
	KindTaskUpdate      = "task.update"
	KindTaskMove        = "task.move"
	KindTaskAssign      = "task.assign"
	KindTaskSmartAssign = "task.smartAssign"
	KindTaskComment     = "task.comment"
	KindTaskArchive     = "task.archive"
	KindTaskDelete      = "task.delete"
)

// Outbound / broadcast event kinds (server -> room or server -> caller).
const (
	EventTaskCreated    = "task.created"
	EventTaskUpdated    = "task.updated"
	EventTaskMoved      = "task.moved"
	EventTaskAssigned   = "task.assigned"
	EventTaskUnassigned = "task.unassigned"
	EventTaskDeleted    = "task.deleted"
	EventTaskArchived   = "task.archived"
	EventTaskCommented  = "task.commented"

	EventEditStarted    = "edit.started"
	EventEditEnded      = "edit.ended"
	EventEditContended  = "edit.contended"
	EventTyping         = "typing"
	EventCursor         = "cursor"
	EventUsersUpdated   = "users.updated"
	EventActivityNew    = "activity.new"
	EventConflictFound  = "conflict.detected"
	EventConflictSolved = "conflict.resolved"
	EventError          = "error"
)

// RoomKind identifies one of the four fan-out rooms of spec.md §4.2.
type RoomKind string

const (
	RoomKindBoard    RoomKind = "board"
	RoomKindTask     RoomKind = "task"
	RoomKindUser     RoomKind = "user"
	RoomKindActivity RoomKind = "activity"
)

// RoomKey is the fully qualified room identifier used as a map key by the
// Room Router, e.g. "board", "task:<taskId>", "user:<userId>", "activity".
type RoomKey string

// BoardRoom is the one singleton board room.
func BoardRoom() RoomKey { return RoomKey(RoomKindBoard) }

// ActivityRoom is the one singleton activity feed room.
func ActivityRoom() RoomKey { return RoomKey(RoomKindActivity) }

// TaskRoom returns the room key for a single task's subscribers.
func TaskRoom(taskID uuid.UUID) RoomKey {
	return RoomKey(fmt.Sprintf("%s:%s", RoomKindTask, taskID))
}

// UserRoom returns the room key for a single user's direct-message room.
func UserRoom(userID uuid.UUID) RoomKey {
	return UserRoomFromID(userID.String())
}

// UserRoomFromID is UserRoom for callers that only have the string form
// of a user id (e.g. claims extracted from a bearer token).
func UserRoomFromID(userID string) RoomKey {
	return RoomKey(fmt.Sprintf("%s:%s", RoomKindUser, userID))
}

// RoomKindOf extracts the kind prefix of a room key, for metrics
// labeling and dispatch (e.g. "task:<id>" -> RoomKindTask).
func RoomKindOf(room RoomKey) RoomKind {
	s := string(room)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return RoomKind(s[:i])
		}
	}
	return RoomKind(s)
}

// --- Request/response command payloads (spec.md §6 table) ---

// TaskFilter narrows listTasks.
type TaskFilter struct {
	Status     *Status    `json:"status,omitempty"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
	Priority   *Priority  `json:"priority,omitempty"`
}

// TaskListResult groups non-archived tasks by column, per spec.md §4.3.
type TaskListResult struct {
	Todo       []*Task `json:"todo"`
	InProgress []*Task `json:"in-progress"`
	Done       []*Task `json:"done"`
}

// CreateTaskInput is the validated input to createTask.
type CreateTaskInput struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description" binding:"max=1000"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Tags        []string   `json:"tags" binding:"max=10,dive,max=50"`
}

// TaskPatch is a partial update; nil/unset fields are left untouched.
// Pointer fields distinguish "not supplied" from "set to zero value".
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	AssignedTo  **uuid.UUID `json:"assignedTo,omitempty"`
	DueDate     **time.Time `json:"dueDate,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
}

// UpdateTaskRequest is the task.update command input.
type UpdateTaskRequest struct {
	TaskID       uuid.UUID `json:"taskId"`
	Patch        TaskPatch `json:"patch"`
	KnownVersion int       `json:"knownVersion"`
}

// MoveTaskRequest is the task.move command input.
type MoveTaskRequest struct {
	TaskID       uuid.UUID `json:"taskId"`
	ToStatus     Status    `json:"toStatus"`
	ToPosition   int       `json:"toPosition"`
	KnownVersion int       `json:"knownVersion"`
}

// AssignTaskRequest is the task.assign command input. AssigneeID is nil
// to unassign.
type AssignTaskRequest struct {
	TaskID       uuid.UUID  `json:"taskId"`
	AssigneeID   *uuid.UUID `json:"assigneeId"`
	KnownVersion int        `json:"knownVersion"`
}

// SmartAssignRequest is the task.smartAssign command input.
type SmartAssignRequest struct {
	TaskID       uuid.UUID `json:"taskId"`
	KnownVersion int       `json:"knownVersion"`
}

// SmartAssignResult wraps the mutated task with the chosen assignee, per
// spec.md §6 ("Task + {assignee}").
type SmartAssignResult struct {
	Task     *Task     `json:"task"`
	Assignee uuid.UUID `json:"assignee"`
}

// CommentRequest is the task.comment command input.
type CommentRequest struct {
	TaskID uuid.UUID `json:"taskId"`
	Text   string    `json:"text" binding:"required,max=500"`
}

// ResolveConflictRequest is the conflict.resolve command input.
type ResolveConflictRequest struct {
	TaskID     uuid.UUID        `json:"taskId"`
	ConflictID uuid.UUID        `json:"conflictId"`
	Strategy   ConflictStrategy `json:"strategy"`
}

// EditStartRequest is the edit.start signal input.
type EditStartRequest struct {
	TaskID       uuid.UUID `json:"taskId"`
	KnownVersion int       `json:"knownVersion"`
}

// EditEndRequest is the edit.end signal input.
type EditEndRequest struct {
	TaskID uuid.UUID `json:"taskId"`
}

// TypingRequest is the transient typing indicator.
type TypingRequest struct {
	TaskID    uuid.UUID `json:"taskId"`
	IsTyping  bool      `json:"isTyping"`
}

// CursorRequest is the transient cursor position indicator.
type CursorRequest struct {
	TaskID   uuid.UUID `json:"taskId"`
	Position any       `json:"position"`
}

// RoomJoinRequest/RoomLeaveRequest name a room the session wants to
// subscribe to/from beyond its automatic board + user rooms.
type RoomJoinRequest struct {
	RoomKind RoomKind  `json:"roomKind"`
	ID       uuid.UUID `json:"id,omitempty"`
}

type RoomLeaveRequest struct {
	RoomKind RoomKind  `json:"roomKind"`
	ID       uuid.UUID `json:"id,omitempty"`
}

// UsersUpdatedEvent is broadcast to the board room whenever membership of
// "active" sessions changes.
type UsersUpdatedEvent struct {
	OnlineUserIDs []uuid.UUID `json:"onlineUserIds"`
}

// TaskEvent wraps a mutated task plus before/after deltas for events that
// name them (task.updated).
type TaskEvent struct {
	Task   *Task `json:"task"`
	Before *Task `json:"before,omitempty"`
	After  *Task `json:"after,omitempty"`
}
