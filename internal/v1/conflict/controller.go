// Package conflict implements the Conflict Controller (C4): version
// checks, advisory per-task edit-session locks, and the three resolution
// strategies of spec.md §4.4.
package conflict

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/activity"
	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// Updater is the narrow slice of the Task Service the Conflict Controller
// needs in order to reapply a merged/take-mine patch, defined here rather
// than imported from taskservice so the two packages don't import each
// other. taskservice.Service implements this.
type Updater interface {
	ApplyResolvedUpdate(ctx context.Context, taskID uuid.UUID, patch types.TaskPatch, knownVersion int, actor uuid.UUID) (*types.Task, *types.Error)
}

// Controller tracks detected conflicts and active edit sessions.
type Controller struct {
	mu sync.Mutex

	edits     map[uuid.UUID]types.EditSession // taskId -> session
	conflicts map[uuid.UUID]*types.Conflict   // conflictId -> descriptor

	fanout   types.Fanout
	activity activity.Recorder
	updater  Updater
}

// New builds a Controller. updater may be set after construction via
// SetUpdater if the Task Service is built after the Controller (breaking
// the natural construction-order cycle between the two).
func New(fanout types.Fanout, rec activity.Recorder) *Controller {
	return &Controller{
		edits:     make(map[uuid.UUID]types.EditSession),
		conflicts: make(map[uuid.UUID]*types.Conflict),
		fanout:    fanout,
		activity:  rec,
	}
}

// SetUpdater wires the Task Service once it exists. Must be called before
// Resolve is invoked.
func (c *Controller) SetUpdater(u Updater) {
	c.updater = u
}

// CheckVersion compares knownVersion against current. If current is
// ahead, it builds a conflict descriptor, records it for later
// conflict.resolve lookup, and returns a Conflict error. base is the
// server task snapshot at detection time, kept as the three-way merge
// base; patch is the update the client originally tried to apply.
func (c *Controller) CheckVersion(ctx context.Context, current *types.Task, knownVersion int, patch types.TaskPatch, actor uuid.UUID) *types.Error {
	if knownVersion >= current.Version {
		return nil
	}

	descriptor := &types.Conflict{
		ConflictID:     uuid.New(),
		TaskID:         current.ID,
		ClientVersion:  knownVersion,
		ServerVersion:  current.Version,
		ServerTask:     current.Clone(),
		LastModifiedBy: current.LastModifiedBy,
		BaseTask:       current.Clone(),
		ClientPatch:    patch,
	}

	c.mu.Lock()
	c.conflicts[descriptor.ConflictID] = descriptor
	c.mu.Unlock()

	metrics.ConflictsDetected.WithLabelValues("detected").Inc()

	if c.activity != nil {
		c.activity.Record(ctx, types.ActivityRecord{
			Action:      "conflict.detected",
			Actor:       actor,
			Target:      &current.ID,
			TargetKind:  "task",
			Category:    types.CategoryTask,
			Severity:    types.SeverityMedium,
			ConflictID:  &descriptor.ConflictID,
			IsResolved:  false,
		})
	}

	if c.fanout != nil {
		frame, err := types.NewFrame(types.EventConflictFound, "", descriptor)
		if err == nil {
			c.fanout.Broadcast(types.TaskRoom(current.ID), frame, "")
		}
	}

	return types.ConflictError(publicConflict(descriptor))
}

// publicConflict returns a shallow copy of the descriptor so that callers
// cannot mutate the stored one. BaseTask and ClientPatch stay on the copy;
// their json:"-" tags keep them off the wire.
func publicConflict(c *types.Conflict) *types.Conflict {
	cp := *c
	return &cp
}

// StartEdit marks taskId as being edited by actor, broadcasting
// edit.started to the task room. If another user already holds the
// advisory lock, edit.contended is sent to the starting user's own room,
// so every session of that user receives it (informational, never
// blocking per spec.md §4.4).
func (c *Controller) StartEdit(ctx context.Context, taskID, actor uuid.UUID, sessionID string) {
	c.mu.Lock()
	existing, contended := c.edits[taskID]
	c.edits[taskID] = types.EditSession{TaskID: taskID, EditorID: actor, StartedAt: time.Now().UTC()}
	c.mu.Unlock()

	if contended && existing.EditorID != actor && c.fanout != nil {
		frame, err := types.NewFrame(types.EventEditContended, "", map[string]any{
			"taskId":      taskID,
			"otherEditor": existing.EditorID,
		})
		if err == nil {
			c.fanout.BroadcastToUser(actor.String(), frame)
		}
	}

	if c.fanout != nil {
		frame, err := types.NewFrame(types.EventEditStarted, "", map[string]any{
			"taskId": taskID,
			"userId": actor,
		})
		if err == nil {
			c.fanout.Broadcast(types.TaskRoom(taskID), frame, "")
		}
	}
}

// EndEdit clears the advisory lock if actor holds it, broadcasting
// edit.ended. Called explicitly on edit.end or implicitly on disconnect.
func (c *Controller) EndEdit(ctx context.Context, taskID, actor uuid.UUID) {
	c.mu.Lock()
	session, ok := c.edits[taskID]
	if ok && session.EditorID == actor {
		delete(c.edits, taskID)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	if c.fanout != nil {
		frame, err := types.NewFrame(types.EventEditEnded, "", map[string]any{
			"taskId": taskID,
			"userId": actor,
		})
		if err == nil {
			c.fanout.Broadcast(types.TaskRoom(taskID), frame, "")
		}
	}
}

// EndAllEditsFor clears every advisory lock held by actor, used on
// session disconnect since a single user may hold locks on many tasks.
func (c *Controller) EndAllEditsFor(ctx context.Context, actor uuid.UUID) {
	c.mu.Lock()
	taskIDs := make([]uuid.UUID, 0)
	for taskID, session := range c.edits {
		if session.EditorID == actor {
			taskIDs = append(taskIDs, taskID)
		}
	}
	c.mu.Unlock()

	for _, taskID := range taskIDs {
		c.EndEdit(ctx, taskID, actor)
	}
}
