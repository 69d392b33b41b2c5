package conflict

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// Resolve applies strategy to the conflict identified by conflictID, per
// spec.md §4.4. All three variants broadcast conflict.resolved to
// task:<taskId> and record an activity; take-mine only records intent
// (the client is expected to resend the mutation with knownVersion =
// current version).
func (c *Controller) Resolve(ctx context.Context, taskID, conflictID uuid.UUID, strategy types.ConflictStrategy, actor uuid.UUID) (*types.Task, *types.Error) {
	c.mu.Lock()
	descriptor, ok := c.conflicts[conflictID]
	c.mu.Unlock()
	if !ok || descriptor.TaskID != taskID {
		return nil, types.NewError(types.ErrUnknownConflict, "conflictId does not match any detected conflict")
	}

	var result *types.Task
	var resultErr *types.Error

	switch strategy {
	case types.StrategyTakeTheirs:
		result = descriptor.ServerTask

	case types.StrategyTakeMine:
		result = descriptor.ServerTask

	case types.StrategyMerge:
		if c.updater == nil {
			return nil, types.NewError(types.ErrInternal, "conflict controller has no updater wired")
		}
		merged := mergePatch(descriptor.BaseTask, descriptor.ServerTask, descriptor.ClientPatch)
		result, resultErr = c.updater.ApplyResolvedUpdate(ctx, taskID, merged, descriptor.ServerVersion, actor)
		if resultErr != nil {
			return nil, resultErr
		}

	default:
		return nil, types.NewError(types.ErrValidation, "unknown conflict resolution strategy")
	}

	c.mu.Lock()
	delete(c.conflicts, conflictID)
	c.mu.Unlock()

	metrics.ConflictsDetected.WithLabelValues(string(strategy)).Inc()

	if c.activity != nil {
		c.activity.Record(ctx, types.ActivityRecord{
			Action:     "conflict.resolved",
			Actor:      actor,
			Target:     &taskID,
			TargetKind: "task",
			Description: "resolved an edit conflict via " + string(strategy),
			Category:   types.CategoryTask,
			Severity:   types.SeverityLow,
			ConflictID: &conflictID,
			IsResolved: true,
		})
	}

	if c.fanout != nil {
		frame, err := types.NewFrame(types.EventConflictSolved, "", map[string]any{
			"taskId":     taskID,
			"conflictId": conflictID,
			"strategy":   strategy,
			"task":       result,
		})
		if err == nil {
			c.fanout.Broadcast(types.TaskRoom(taskID), frame, "")
		}
	}

	return result, nil
}

// mergePatch implements the per-field three-way merge of spec.md §4.4:
// for each field independently, if only one side changed it relative to
// base take that side; if both changed, prefer the client for scalars,
// union for tags, and concatenate non-empty differing descriptions.
func mergePatch(base, server *types.Task, clientPatch types.TaskPatch) types.TaskPatch {
	merged := types.TaskPatch{}

	if clientPatch.Title != nil {
		clientChanged := *clientPatch.Title != base.Title
		serverChanged := server.Title != base.Title
		switch {
		case clientChanged:
			merged.Title = clientPatch.Title
		case serverChanged:
			title := server.Title
			merged.Title = &title
		}
	}

	if clientPatch.Description != nil {
		clientChanged := *clientPatch.Description != base.Description
		serverChanged := server.Description != base.Description
		switch {
		case clientChanged && serverChanged && *clientPatch.Description != server.Description:
			combined := mergeDescriptions(*clientPatch.Description, server.Description)
			merged.Description = &combined
		case clientChanged:
			merged.Description = clientPatch.Description
		case serverChanged:
			desc := server.Description
			merged.Description = &desc
		}
	}

	if clientPatch.Status != nil {
		clientChanged := *clientPatch.Status != base.Status
		serverChanged := server.Status != base.Status
		switch {
		case clientChanged:
			merged.Status = clientPatch.Status
		case serverChanged:
			status := server.Status
			merged.Status = &status
		}
	}

	if clientPatch.Priority != nil {
		clientChanged := *clientPatch.Priority != base.Priority
		serverChanged := server.Priority != base.Priority
		switch {
		case clientChanged:
			merged.Priority = clientPatch.Priority
		case serverChanged:
			priority := server.Priority
			merged.Priority = &priority
		}
	}

	if clientPatch.AssignedTo != nil {
		clientVal := *clientPatch.AssignedTo
		clientChanged := !uuidPtrEqual(clientVal, base.AssignedTo)
		serverChanged := !uuidPtrEqual(server.AssignedTo, base.AssignedTo)
		switch {
		case clientChanged:
			merged.AssignedTo = clientPatch.AssignedTo
		case serverChanged:
			assignee := server.AssignedTo
			merged.AssignedTo = &assignee
		}
	}

	if clientPatch.DueDate != nil {
		clientVal := *clientPatch.DueDate
		clientChanged := !timePtrEqual(clientVal, base.DueDate)
		serverChanged := !timePtrEqual(server.DueDate, base.DueDate)
		switch {
		case clientChanged:
			merged.DueDate = clientPatch.DueDate
		case serverChanged:
			dueDate := server.DueDate
			merged.DueDate = &dueDate
		}
	}

	if clientPatch.Tags != nil {
		clientChanged := !stringSliceEqual(*clientPatch.Tags, base.Tags)
		serverChanged := !stringSliceEqual(server.Tags, base.Tags)
		switch {
		case clientChanged && serverChanged:
			union := unionTags(*clientPatch.Tags, server.Tags)
			merged.Tags = &union
		case clientChanged:
			merged.Tags = clientPatch.Tags
		case serverChanged:
			tags := append([]string(nil), server.Tags...)
			merged.Tags = &tags
		}
	}

	return merged
}

func mergeDescriptions(clientDesc, serverDesc string) string {
	if clientDesc == "" {
		return serverDesc
	}
	if serverDesc == "" {
		return clientDesc
	}
	return clientDesc + "\n---\n" + serverDesc
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, tag := range a {
		if _, ok := seen[tag]; !ok {
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	for _, tag := range b {
		if _, ok := seen[tag]; !ok {
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

