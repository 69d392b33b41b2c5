package activity

import "github.com/taskboard/core/internal/v1/types"

// templates maps an action name to a human-readable description. Entries
// not present fall back to the action name itself, so a new action never
// needs this table touched to be recordable.
var templates = map[string]string{
	"task.created":     "created a task",
	"task.updated":     "updated a task",
	"task.moved":       "moved a task",
	"task.assigned":    "assigned a task",
	"task.unassigned":  "unassigned a task",
	"task.archived":    "archived a task",
	"task.unarchived":  "restored a task",
	"task.deleted":     "deleted a task",
	"task.commented":   "commented on a task",
	"conflict.detected": "hit an edit conflict",
	"conflict.resolved": "resolved an edit conflict",
	"user.connected":   "joined the board",
	"user.disconnected": "left the board",
}

// Describe produces a default description for rec when the caller didn't
// supply one, per spec.md §4.6's action/description template table.
func Describe(action string, rec types.ActivityRecord) string {
	if msg, ok := templates[action]; ok {
		return msg
	}
	return action
}
