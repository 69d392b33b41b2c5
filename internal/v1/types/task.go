package types

import (
	"time"

	"github.com/google/uuid"
)

// Status is the column a task currently sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the three known columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority is the urgency label attached to a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const (
	MaxTitleLen   = 200
	MaxDescLen    = 1000
	MaxTags       = 10
	MaxTagLen     = 50
	MaxCommentLen = 500
)

// ReservedTitles are column names a task title may never collide with,
// case-insensitively.
var ReservedTitles = map[string]struct{}{
	"todo":        {},
	"in progress": {},
	"done":        {},
}

// Comment is one entry in a task's discussion thread. Comments do not
// carry their own version; adding one never bumps Task.Version.
type Comment struct {
	Author    uuid.UUID `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Task is the authoritative unit of work on the board. All mutation goes
// through the Task Service; this struct is the shape persisted and the
// shape returned to clients.
type Task struct {
	ID          uuid.UUID  `json:"taskId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
	CreatedBy   uuid.UUID  `json:"createdBy"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Tags        []string   `json:"tags"`
	Position    int        `json:"position"`
	Version     int        `json:"version"`

	LastModifiedAt time.Time  `json:"lastModifiedAt"`
	LastModifiedBy uuid.UUID  `json:"lastModifiedBy"`
	IsArchived     bool       `json:"isArchived"`
	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
	ArchivedBy     *uuid.UUID `json:"archivedBy,omitempty"`

	Comments []Comment `json:"comments"`

	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep-enough copy so callers (in particular the conflict
// merge path, which needs a snapshot at detection time) never mutate a
// Task shared with the store.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		clone.AssignedTo = &id
	}
	if t.DueDate != nil {
		d := *t.DueDate
		clone.DueDate = &d
	}
	if t.ArchivedAt != nil {
		a := *t.ArchivedAt
		clone.ArchivedAt = &a
	}
	if t.ArchivedBy != nil {
		a := *t.ArchivedBy
		clone.ArchivedBy = &a
	}
	clone.Tags = append([]string(nil), t.Tags...)
	clone.Comments = append([]Comment(nil), t.Comments...)
	return &clone
}

// NormalizedTitle is the case-folded form used for uniqueness and
// reserved-word comparisons (invariants I1/I2).
func NormalizedTitle(title string) string {
	return foldTitle(title)
}
