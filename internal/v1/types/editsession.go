package types

import (
	"time"

	"github.com/google/uuid"
)

// EditSession is the Conflict Controller's advisory "being edited by"
// marker for a task. It is ephemeral — never persisted, never enforced
// at the mutation path (spec §4.4).
type EditSession struct {
	TaskID    uuid.UUID
	EditorID  uuid.UUID
	StartedAt time.Time
}

// ConflictStrategy is the client's chosen resolution for a detected
// version conflict.
type ConflictStrategy string

const (
	StrategyMerge      ConflictStrategy = "merge"
	StrategyTakeMine   ConflictStrategy = "take-mine"
	StrategyTakeTheirs ConflictStrategy = "take-theirs"
)

func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyMerge, StrategyTakeMine, StrategyTakeTheirs:
		return true
	}
	return false
}

// Conflict is the descriptor attached to a Conflict error, and the
// record kept by the Conflict Controller until it is resolved or
// superseded.
type Conflict struct {
	ConflictID     uuid.UUID `json:"conflictId"`
	TaskID         uuid.UUID `json:"taskId"`
	ClientVersion  int       `json:"clientVersion"`
	ServerVersion  int       `json:"serverVersion"`
	ServerTask     *Task     `json:"serverTask"`
	LastModifiedBy uuid.UUID `json:"lastModifiedBy"`

	// BaseTask is the server state *at detection time*, used as the
	// three-way merge base by the merge resolution strategy. It is not
	// part of the wire payload sent to the client.
	BaseTask *Task `json:"-"`
	// ClientPatch is the patch the client originally attempted, kept so
	// "merge" can be computed once conflict.resolve arrives.
	ClientPatch TaskPatch `json:"-"`
}
